package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/retreva/retreva/internal/errors"
)

// fakeEmbedServer serves /api/embed with fixed 4-dimensional vectors.
func fakeEmbedServer(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"embeddinggemma"}]}`))
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		n := 1
		if inputs, ok := req.Input.([]any); ok {
			n = len(inputs)
		}
		resp := embedResponse{Model: req.Model}
		for i := 0; i < n; i++ {
			resp.Embeddings = append(resp.Embeddings, []float64{3, 4, 0, 0})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testHTTPConfig(endpoint string) HTTPConfig {
	return HTTPConfig{
		Endpoint:   endpoint,
		Model:      "embeddinggemma",
		Dimensions: 4,
		BatchSize:  2,
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	}
}

func TestHTTPEmbedder_EmbedNormalizes(t *testing.T) {
	srv := fakeEmbedServer(t, nil)
	e, err := NewHTTPEmbedder(context.Background(), testHTTPConfig(srv.URL))
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "some query")
	require.NoError(t, err)
	require.Len(t, vec, 4)

	// Server returns (3,4,0,0); normalized to (0.6,0.8,0,0).
	assert.InDelta(t, 0.6, float64(vec[0]), 1e-5)
	assert.InDelta(t, 0.8, float64(vec[1]), 1e-5)
}

func TestHTTPEmbedder_DetectDimensions(t *testing.T) {
	srv := fakeEmbedServer(t, nil)
	cfg := testHTTPConfig(srv.URL)
	cfg.Dimensions = 0

	e, err := NewHTTPEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	assert.Equal(t, 4, e.Dimensions())
}

func TestHTTPEmbedder_BatchSplitsRequests(t *testing.T) {
	var calls atomic.Int64
	srv := fakeEmbedServer(t, &calls)
	e, err := NewHTTPEmbedder(context.Background(), testHTTPConfig(srv.URL))
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	calls.Store(0)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.Len(t, vecs, 5)

	// Batch size 2 over 5 texts: three API calls.
	assert.Equal(t, int64(3), calls.Load())
}

func TestHTTPEmbedder_BlankInputSkipsProvider(t *testing.T) {
	var calls atomic.Int64
	srv := fakeEmbedServer(t, &calls)
	e, err := NewHTTPEmbedder(context.Background(), testHTTPConfig(srv.URL))
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	calls.Store(0)
	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	assert.Zero(t, math.Sqrt(norm))
	assert.Zero(t, calls.Load())
}

func TestHTTPEmbedder_ServerErrorReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := testHTTPConfig(srv.URL)
	cfg.SkipHealthCheck = true
	e, err := NewHTTPEmbedder(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	_, err = e.Embed(context.Background(), "query")
	require.Error(t, err)
	assert.Equal(t, rerrors.ErrCodeEmbeddingProvider, rerrors.GetCode(err))
	assert.True(t, rerrors.IsRetryable(err))
}

func TestHTTPEmbedder_UnreachableEndpointFailsConstruction(t *testing.T) {
	cfg := testHTTPConfig("http://127.0.0.1:1")
	cfg.Dimensions = 0
	cfg.Timeout = 500 * time.Millisecond

	_, err := NewHTTPEmbedder(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, rerrors.ErrCodeEmbeddingProvider, rerrors.GetCode(err))
}

func TestHTTPEmbedder_Available(t *testing.T) {
	srv := fakeEmbedServer(t, nil)
	e, err := NewHTTPEmbedder(context.Background(), testHTTPConfig(srv.URL))
	require.NoError(t, err)

	assert.True(t, e.Available(context.Background()))
	require.NoError(t, e.Close())
	assert.False(t, e.Available(context.Background()))
}
