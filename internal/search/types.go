// Package search implements two-stage fusion retrieval: cheap lexical
// candidate generation over the whole corpus, then precise embedding-based
// reranking of just those candidates.
package search

import (
	"time"

	"github.com/retreva/retreva/internal/store"
)

// Retrieval defaults.
const (
	// DefaultTopN is the number of results returned when unspecified.
	DefaultTopN = 5

	// DefaultCandidateMultiplier sizes the lexical candidate pool relative
	// to topN, so the rerank stage has enough material.
	DefaultCandidateMultiplier = 10

	// DefaultEmbedTimeout bounds the query embedding call.
	DefaultEmbedTimeout = 30 * time.Second
)

// Result is one ranked chunk returned to the caller.
type Result struct {
	ChunkID   string  `json:"chunk_id"`
	FilePath  string  `json:"file_path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

// Response carries the ranked results plus how they were produced.
type Response struct {
	Results []Result `json:"results"`

	// Generation identifies the index snapshot the query read.
	Generation string `json:"generation"`

	// Degraded is true when the embedding provider failed and results are
	// ranked by lexical score alone.
	Degraded bool `json:"degraded"`
}

// IndexProvider yields a consistent view of the current index generation.
// Both indexes returned by one call belong to the same generation.
type IndexProvider interface {
	CurrentIndex() (store.LexicalIndex, store.VectorReader, string, error)
}
