package embed

import (
	"context"
	"os"
	"strings"

	rerrors "github.com/retreva/retreva/internal/errors"
)

// ProviderType identifies an embedding provider.
type ProviderType string

const (
	// ProviderHTTP uses an Ollama-compatible HTTP API.
	ProviderHTTP ProviderType = "http"

	// ProviderStatic uses hash-based embeddings. No external process needed.
	ProviderStatic ProviderType = "static"
)

// Options selects and configures an embedding provider.
type Options struct {
	Provider ProviderType

	// HTTP configures the HTTP provider. Ignored for static.
	HTTP HTTPConfig

	// CacheSize is the query embedding cache size. Zero uses the default;
	// negative disables caching.
	CacheSize int
}

// NewEmbedder constructs the configured provider wrapped in an LRU cache.
// The RETREVA_EMBEDDER environment variable overrides the provider choice.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	provider := opts.Provider
	if env := os.Getenv("RETREVA_EMBEDDER"); env != "" {
		provider = ParseProvider(env)
	}

	var embedder Embedder
	switch provider {
	case ProviderStatic:
		embedder = NewStaticEmbedder()
	case ProviderHTTP:
		e, err := NewHTTPEmbedder(ctx, opts.HTTP)
		if err != nil {
			return nil, err
		}
		embedder = e
	default:
		return nil, rerrors.ValidationError("unknown embedding provider: "+string(provider), nil).
			WithSuggestion("use one of: " + strings.Join(ValidProviders(), ", "))
	}

	if opts.CacheSize < 0 {
		return embedder, nil
	}
	return NewCachedEmbedder(embedder, opts.CacheSize), nil
}

// ParseProvider converts a string to a ProviderType. Unrecognized values
// map to the static provider so an index command always has a vector path.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "http", "ollama":
		return ProviderHTTP
	case "static":
		return ProviderStatic
	default:
		return ProviderStatic
	}
}

// ValidProviders lists all recognized provider names.
func ValidProviders() []string {
	return []string{string(ProviderHTTP), string(ProviderStatic)}
}

// IsValidProvider reports whether s names a known provider.
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}
