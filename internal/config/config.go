// Package config defines the retreva configuration schema, defaults, and
// validation. All tunables are explicit named fields validated at load time;
// components receive the validated struct by value and never re-read files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	rerrors "github.com/retreva/retreva/internal/errors"
)

// DefaultFileName is the config file looked up at the project root.
const DefaultFileName = ".retreva.yaml"

// Config represents the complete retreva configuration.
type Config struct {
	Version    int              `yaml:"version"`
	IndexDir   string           `yaml:"index_dir"`
	Paths      PathsConfig      `yaml:"paths"`
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Lexical    LexicalConfig    `yaml:"lexical"`
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PathsConfig configures which paths to include and exclude when scanning.
type PathsConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// ChunkerConfig configures file segmentation.
type ChunkerConfig struct {
	// MaxChunkTokens is the token budget per chunk (estimate, not a real
	// tokenizer). A single line above the budget becomes an overflow chunk.
	MaxChunkTokens int `yaml:"max_chunk_tokens"`

	// OverlapTokens is the token budget carried over between adjacent chunks.
	OverlapTokens int `yaml:"overlap_tokens"`
}

// LexicalConfig configures the term-weighted lexical index.
type LexicalConfig struct {
	// MaxVocabularySize caps the vocabulary; lowest-df terms are dropped
	// first. Zero means unlimited.
	MaxVocabularySize int `yaml:"max_vocabulary_size"`
}

// SearchConfig configures the two-stage fusion retriever.
type SearchConfig struct {
	// TopN is the default number of results returned by a query.
	TopN int `yaml:"top_n"`

	// CandidateMultiplier scales TopN into the lexical candidate pool size
	// when the caller does not pass an explicit lexicalK.
	CandidateMultiplier int `yaml:"candidate_multiplier"`

	// SimilarityThreshold drops results scoring below it instead of
	// returning them as noise. Zero keeps everything.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the backend: "http" or "static".
	Provider string `yaml:"provider"`

	// Endpoint is the HTTP provider base URL (Ollama-compatible /api/embed).
	Endpoint string `yaml:"endpoint"`

	// Model is the model name passed to the HTTP provider.
	Model string `yaml:"model"`

	// Dimensions is the expected embedding dimension.
	Dimensions int `yaml:"dimensions"`

	// BatchSize is the number of texts per embedding request.
	BatchSize int `yaml:"batch_size"`

	// Timeout bounds each embedding call.
	Timeout time.Duration `yaml:"timeout"`

	// CacheSize is the LRU query-embedding cache size. Zero disables caching.
	CacheSize int `yaml:"cache_size"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// defaultExcludePatterns are always excluded from scanning.
var defaultExcludePatterns = []string{
	"node_modules",
	".git",
	"vendor",
	"__pycache__",
	"dist",
	"build",
	".retreva",
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version:  1,
		IndexDir: ".retreva",
		Paths: PathsConfig{
			Exclude: defaultExcludePatterns,
		},
		Chunker: ChunkerConfig{
			MaxChunkTokens: 512,
			OverlapTokens:  64,
		},
		Lexical: LexicalConfig{
			MaxVocabularySize: 50000,
		},
		Search: SearchConfig{
			TopN:                5,
			CandidateMultiplier: 10,
			SimilarityThreshold: 0,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Endpoint:   "http://localhost:11434",
			Model:      "embeddinggemma",
			Dimensions: 256,
			BatchSize:  32,
			Timeout:    60 * time.Second,
			CacheSize:  1024,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file, applies it over defaults, and validates.
// A missing file yields the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, rerrors.Wrap(rerrors.ErrCodeConfigNotFound, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, rerrors.ConfigError(fmt.Sprintf("parse %s", path), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration invariants. It is called at construction
// time so components can assume a valid config.
func (c *Config) Validate() error {
	if c.Chunker.MaxChunkTokens <= 0 {
		return rerrors.ConfigError("chunker.max_chunk_tokens must be positive", nil)
	}
	if c.Chunker.OverlapTokens < 0 {
		return rerrors.ConfigError("chunker.overlap_tokens must not be negative", nil)
	}
	if c.Chunker.OverlapTokens >= c.Chunker.MaxChunkTokens {
		return rerrors.ConfigError("chunker.overlap_tokens must be smaller than max_chunk_tokens", nil)
	}
	if c.Lexical.MaxVocabularySize < 0 {
		return rerrors.ConfigError("lexical.max_vocabulary_size must not be negative", nil)
	}
	if c.Search.TopN <= 0 {
		return rerrors.ConfigError("search.top_n must be positive", nil)
	}
	if c.Search.CandidateMultiplier <= 0 {
		return rerrors.ConfigError("search.candidate_multiplier must be positive", nil)
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		return rerrors.ConfigError("search.similarity_threshold must be in [0, 1]", nil)
	}
	switch c.Embeddings.Provider {
	case "http", "static":
	default:
		return rerrors.ConfigError(
			fmt.Sprintf("embeddings.provider must be http or static, got %q", c.Embeddings.Provider), nil)
	}
	if c.Embeddings.Dimensions <= 0 {
		return rerrors.ConfigError("embeddings.dimensions must be positive", nil)
	}
	if c.Embeddings.BatchSize <= 0 {
		return rerrors.ConfigError("embeddings.batch_size must be positive", nil)
	}
	return nil
}

// Save writes the config as YAML. Used by 'retreva init'.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return rerrors.ConfigError("marshal config", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return rerrors.ConfigError(fmt.Sprintf("write %s", path), err)
	}
	return nil
}
