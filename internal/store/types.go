// Package store holds the two retrieval indexes and their persistence: a
// TF-IDF lexical index, an HNSW-backed vector index with exact lookup, and
// the versioned on-disk bundles both are published through.
package store

import (
	"context"
)

// ChunkMeta is the per-chunk metadata carried alongside both indexes so a
// query result can be rendered without re-reading source files.
type ChunkMeta struct {
	FilePath  string
	StartLine int
	EndLine   int
	Text      string
}

// Document is a chunk prepared for indexing.
type Document struct {
	ID      string
	Content string
	Meta    ChunkMeta
}

// LexicalResult is a single lexical query hit.
type LexicalResult struct {
	ChunkID string
	Score   float64
}

// LexicalStats describes the state of a lexical index.
type LexicalStats struct {
	DocumentCount int
	TermCount     int
}

// LexicalIndex is a term-weighted index over chunk texts supporting cosine
// similarity queries and, after a full build, frozen-vocabulary additions.
type LexicalIndex interface {
	// Build replaces the entire index contents, recomputing the vocabulary.
	Build(ctx context.Context, docs []Document) error

	// Add projects docs into the existing vocabulary without rebuilding it.
	// Terms unseen at build time carry no weight until the next Build.
	Add(ctx context.Context, docs []Document) error

	// Remove drops documents by chunk ID.
	Remove(ctx context.Context, ids []string) error

	// Query returns up to k chunks by descending cosine similarity.
	// Ties are broken by ascending chunk ID.
	Query(ctx context.Context, query string, k int) ([]LexicalResult, error)

	// Meta returns the stored metadata for a chunk ID.
	Meta(id string) (ChunkMeta, bool)

	// Count returns the number of indexed documents.
	Count() int

	// Stats returns index statistics.
	Stats() LexicalStats
}

// VectorRecord associates a chunk with its embedding and metadata.
type VectorRecord struct {
	ChunkID   string
	Embedding []float32
	Meta      ChunkMeta
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	ChunkID string
	Score   float64
}

// VectorReader is the query-side view of the vector index. Get exists
// because the fusion reranker scores an explicit lexical candidate list;
// approximate nearest-neighbor recall alone could silently drop a valid
// candidate.
type VectorReader interface {
	// Get returns the stored records for the given chunk IDs. Missing IDs
	// are absent from the result.
	Get(ids []string) map[string]VectorRecord

	// Search finds the k approximate nearest neighbors of query.
	Search(ctx context.Context, query []float32, k int) ([]VectorResult, error)

	// Count returns the number of stored records.
	Count() int
}

var (
	_ LexicalIndex = (*TFIDFIndex)(nil)
	_ VectorReader = (*VectorIndex)(nil)
)
