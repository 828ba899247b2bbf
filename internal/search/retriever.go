package search

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/retreva/retreva/internal/embed"
	"github.com/retreva/retreva/internal/store"
)

// Config tunes the retriever.
type Config struct {
	// TopN is the default result count.
	TopN int

	// CandidateMultiplier sizes the lexical stage: lexicalK = topN * multiplier.
	CandidateMultiplier int

	// SimilarityThreshold drops reranked results scoring below it. Zero
	// keeps everything.
	SimilarityThreshold float64

	// EmbedTimeout bounds the query embedding call.
	EmbedTimeout time.Duration
}

// DefaultConfig returns the standard retrieval settings.
func DefaultConfig() Config {
	return Config{
		TopN:                DefaultTopN,
		CandidateMultiplier: DefaultCandidateMultiplier,
		SimilarityThreshold: 0,
		EmbedTimeout:        DefaultEmbedTimeout,
	}
}

// Retriever answers queries against the current index generation.
type Retriever struct {
	provider IndexProvider
	embedder embed.Embedder
	config   Config
	logger   *slog.Logger
}

// NewRetriever creates a retriever over the given index provider and
// query embedder.
func NewRetriever(provider IndexProvider, embedder embed.Embedder, cfg Config, logger *slog.Logger) *Retriever {
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = DefaultCandidateMultiplier
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultEmbedTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		provider: provider,
		embedder: embedder,
		config:   cfg,
		logger:   logger,
	}
}

// FetchContext runs the two-stage query. topN and lexicalK fall back to
// configured defaults when non-positive.
//
// Stage one queries the lexical index for lexicalK candidates. Stage two
// embeds the query once, fetches each candidate's stored embedding by
// explicit ID, and reranks by cosine similarity. If the embedding call
// fails or times out, the lexical ranking is returned as-is with
// Degraded set; a query never fails because the embedding provider did.
func (r *Retriever) FetchContext(ctx context.Context, query string, topN, lexicalK int) (*Response, error) {
	if topN <= 0 {
		topN = r.config.TopN
	}
	if lexicalK <= 0 {
		lexicalK = topN * r.config.CandidateMultiplier
	}
	if lexicalK < topN {
		lexicalK = topN
	}

	lexical, vectors, generation, err := r.provider.CurrentIndex()
	if err != nil {
		return nil, err
	}

	candidates, err := lexical.Query(ctx, query, lexicalK)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &Response{Results: []Result{}, Generation: generation}, nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, r.config.EmbedTimeout)
	queryVec, embedErr := r.embedder.Embed(embedCtx, query)
	cancel()

	if embedErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("query embedding failed, serving lexical-only results",
			slog.String("error", embedErr.Error()),
			slog.Int("candidates", len(candidates)))
		return &Response{
			Results:    r.lexicalResults(lexical, candidates, topN),
			Generation: generation,
			Degraded:   true,
		}, nil
	}

	results := r.rerank(lexical, vectors, candidates, queryVec, topN)
	return &Response{Results: results, Generation: generation}, nil
}

// rerank scores each lexical candidate by cosine similarity between the
// query embedding and the candidate's stored embedding.
func (r *Retriever) rerank(lexical store.LexicalIndex, vectors store.VectorReader, candidates []store.LexicalResult, queryVec []float32, topN int) []Result {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}
	records := vectors.Get(ids)

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		rec, ok := records[c.ChunkID]
		if !ok {
			// A candidate without a vector record means the indexes
			// disagree; drop it rather than invent a score.
			r.logger.Warn("lexical candidate missing from vector index",
				slog.String("chunk_id", c.ChunkID))
			continue
		}

		score := store.CosineSimilarity(queryVec, rec.Embedding)
		if r.config.SimilarityThreshold > 0 && score < r.config.SimilarityThreshold {
			continue
		}
		results = append(results, r.toResult(lexical, c.ChunkID, rec.Meta, score))
	}

	sortResults(results)
	if len(results) > topN {
		results = results[:topN]
	}
	return results
}

// lexicalResults converts first-stage hits directly into results, used in
// degraded mode. The similarity threshold is not applied: lexical scores
// live on a different scale, and degraded mode prefers returning
// something ranked over returning nothing.
func (r *Retriever) lexicalResults(lexical store.LexicalIndex, candidates []store.LexicalResult, topN int) []Result {
	results := make([]Result, 0, min(topN, len(candidates)))
	for _, c := range candidates {
		if len(results) == topN {
			break
		}
		meta, ok := lexical.Meta(c.ChunkID)
		if !ok {
			continue
		}
		results = append(results, r.toResult(lexical, c.ChunkID, meta, c.Score))
	}
	return results
}

func (r *Retriever) toResult(lexical store.LexicalIndex, chunkID string, fallback store.ChunkMeta, score float64) Result {
	meta, ok := lexical.Meta(chunkID)
	if !ok {
		meta = fallback
	}
	return Result{
		ChunkID:   chunkID,
		FilePath:  meta.FilePath,
		StartLine: meta.StartLine,
		EndLine:   meta.EndLine,
		Text:      meta.Text,
		Score:     score,
	}
}

// sortResults orders by descending score, ties by ascending chunk ID.
func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}
