package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 512, cfg.Chunker.MaxChunkTokens)
	assert.Equal(t, 64, cfg.Chunker.OverlapTokens)
	assert.Equal(t, 10, cfg.Search.CandidateMultiplier)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Chunker, cfg.Chunker)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".retreva.yaml")
	content := `
chunker:
  max_chunk_tokens: 256
  overlap_tokens: 32
search:
  top_n: 10
  candidate_multiplier: 5
  similarity_threshold: 0.1
embeddings:
  provider: http
  endpoint: http://localhost:11434
  dimensions: 768
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.Chunker.MaxChunkTokens)
	assert.Equal(t, 32, cfg.Chunker.OverlapTokens)
	assert.Equal(t, 10, cfg.Search.TopN)
	assert.Equal(t, 5, cfg.Search.CandidateMultiplier)
	assert.InDelta(t, 0.1, cfg.Search.SimilarityThreshold, 1e-9)
	assert.Equal(t, "http", cfg.Embeddings.Provider)
	assert.Equal(t, 768, cfg.Embeddings.Dimensions)

	// Untouched sections keep their defaults
	assert.Equal(t, 50000, cfg.Lexical.MaxVocabularySize)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".retreva.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max tokens", func(c *Config) { c.Chunker.MaxChunkTokens = 0 }},
		{"negative overlap", func(c *Config) { c.Chunker.OverlapTokens = -1 }},
		{"overlap >= max", func(c *Config) { c.Chunker.OverlapTokens = c.Chunker.MaxChunkTokens }},
		{"negative vocab", func(c *Config) { c.Lexical.MaxVocabularySize = -1 }},
		{"zero top_n", func(c *Config) { c.Search.TopN = 0 }},
		{"zero multiplier", func(c *Config) { c.Search.CandidateMultiplier = 0 }},
		{"threshold above 1", func(c *Config) { c.Search.SimilarityThreshold = 1.5 }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "quantum" }},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }},
		{"zero batch size", func(c *Config) { c.Embeddings.BatchSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".retreva.yaml")

	cfg := Default()
	cfg.Chunker.MaxChunkTokens = 300
	cfg.Search.SimilarityThreshold = 0.25
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Chunker, loaded.Chunker)
	assert.Equal(t, cfg.Search, loaded.Search)
}
