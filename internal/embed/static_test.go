package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestStaticEmbedder_Deterministic(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	a, err := e.Embed(context.Background(), "func fetchContext(query string) error")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "func fetchContext(query string) error")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestStaticEmbedder_UnitNorm(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "def add_numbers(a, b): return a + b")
	require.NoError(t, err)
	require.Len(t, vec, StaticDimensions)
	assert.InDelta(t, 1.0, vectorNorm(vec), 1e-5)
}

func TestStaticEmbedder_EmptyTextZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "   \n\t  ")
	require.NoError(t, err)
	require.Len(t, vec, StaticDimensions)
	assert.Zero(t, vectorNorm(vec))
}

func TestStaticEmbedder_DistinctTextsDiffer(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	a, err := e.Embed(context.Background(), "parse configuration file")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "open database connection")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestStaticEmbedder_SimilarTextsCloserThanUnrelated(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	ctx := context.Background()
	query, err := e.Embed(ctx, "add two numbers together")
	require.NoError(t, err)
	related, err := e.Embed(ctx, "def add_numbers(a, b):\n    return a + b")
	require.NoError(t, err)
	unrelated, err := e.Embed(ctx, "open a websocket and stream frames")
	require.NoError(t, err)

	dot := func(a, b []float32) float64 {
		var s float64
		for i := range a {
			s += float64(a[i]) * float64(b[i])
		}
		return s
	}

	assert.Greater(t, dot(query, related), dot(query, unrelated))
}

func TestStaticEmbedder_EmbedBatch(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	texts := []string{"first chunk", "second chunk", ""}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	single, err := e.Embed(context.Background(), "first chunk")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[0])
	assert.Zero(t, vectorNorm(vecs[2]))
}

func TestStaticEmbedder_ClosedRejectsEmbed(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "anything")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

func TestSplitCamelCase(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "fetchContext", want: []string{"fetch", "Context"}},
		{in: "HTTPServer", want: []string{"HTTP", "Server"}},
		{in: "simple", want: []string{"simple"}},
		{in: "ABC", want: []string{"ABC"}},
		{in: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, splitCamelCase(tt.in))
		})
	}
}

func TestCodeTokens(t *testing.T) {
	tokens := codeTokens("func fetchContext(query_string string)")

	assert.Contains(t, tokens, "fetch")
	assert.Contains(t, tokens, "context")
	assert.Contains(t, tokens, "query")
	assert.NotContains(t, tokens, "func", "keywords must be filtered")
}
