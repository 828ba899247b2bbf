package store

import (
	"context"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/coder/hnsw"

	rerrors "github.com/retreva/retreva/internal/errors"
)

// VectorIndexConfig configures the vector index.
type VectorIndexConfig struct {
	// Dimensions is the embedding width. Required.
	Dimensions int

	// M is the HNSW max connections per layer.
	M int

	// EfSearch is the HNSW query-time search width.
	EfSearch int
}

// DefaultVectorIndexConfig returns standard HNSW settings for dimensions.
func DefaultVectorIndexConfig(dimensions int) VectorIndexConfig {
	return VectorIndexConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   20,
	}
}

// VectorIndex stores chunk embeddings twice: in an HNSW graph for
// approximate nearest-neighbor search, and in an exact record map for
// lookup by explicit ID set. The graph accelerates corpus-wide queries;
// the map serves the fusion reranker, which must never lose a candidate
// to approximate recall.
type VectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorIndexConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	records map[string]VectorRecord
}

// NewVectorIndex creates an empty vector index.
func NewVectorIndex(cfg VectorIndexConfig) (*VectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, rerrors.ValidationError("vector index requires positive dimensions", nil)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &VectorIndex{
		graph:   graph,
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		records: make(map[string]VectorRecord),
	}, nil
}

// Add inserts records, replacing any existing record with the same chunk
// ID. Replacement uses lazy deletion: the old graph node is orphaned
// rather than removed, because deleting nodes destabilizes the graph.
func (v *VectorIndex) Add(ctx context.Context, records []VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, rec := range records {
		if len(rec.Embedding) != v.config.Dimensions {
			return dimensionMismatch(v.config.Dimensions, len(rec.Embedding))
		}
	}

	for _, rec := range records {
		if existingKey, exists := v.idMap[rec.ChunkID]; exists {
			delete(v.keyMap, existingKey)
			delete(v.idMap, rec.ChunkID)
		}

		key := v.nextKey
		v.nextKey++

		vec := make([]float32, len(rec.Embedding))
		copy(vec, rec.Embedding)
		normalizeInPlace(vec)

		v.graph.Add(hnsw.MakeNode(key, vec))
		v.idMap[rec.ChunkID] = key
		v.keyMap[key] = rec.ChunkID

		rec.Embedding = vec
		v.records[rec.ChunkID] = rec
	}
	return nil
}

// Get returns stored records for the given IDs. Missing IDs are absent
// from the result.
func (v *VectorIndex) Get(ids []string) map[string]VectorRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[string]VectorRecord, len(ids))
	for _, id := range ids {
		if rec, ok := v.records[id]; ok {
			out[id] = rec
		}
	}
	return out
}

// Search finds the k approximate nearest neighbors of query by cosine
// similarity. Orphaned graph nodes left by lazy deletion are skipped.
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(query) != v.config.Dimensions {
		return nil, dimensionMismatch(v.config.Dimensions, len(query))
	}
	if v.graph.Len() == 0 || k <= 0 {
		return []VectorResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := v.graph.Search(normalized, k)

	results := make([]VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := v.keyMap[node.Key]
		if !exists {
			continue
		}
		distance := v.graph.Distance(normalized, node.Value)
		results = append(results, VectorResult{
			ChunkID: id,
			Score:   float64(1 - distance/2),
		})
	}
	return results, nil
}

// Delete removes records by chunk ID using lazy graph deletion.
func (v *VectorIndex) Delete(_ context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, id := range ids {
		if key, exists := v.idMap[id]; exists {
			delete(v.keyMap, key)
			delete(v.idMap, id)
			delete(v.records, id)
		}
	}
	return nil
}

// Clone returns an independent copy with a freshly built graph. Stored
// embeddings are already normalized, so records are reinserted as-is;
// orphaned nodes from lazy deletion do not survive the copy.
func (v *VectorIndex) Clone() (*VectorIndex, error) {
	v.mu.RLock()
	records := make([]VectorRecord, 0, len(v.records))
	for _, rec := range v.records {
		records = append(records, rec)
	}
	cfg := v.config
	v.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].ChunkID < records[j].ChunkID })

	clone, err := NewVectorIndex(cfg)
	if err != nil {
		return nil, err
	}
	if err := clone.Add(context.Background(), records); err != nil {
		return nil, err
	}
	return clone, nil
}

// Contains reports whether a chunk ID is stored.
func (v *VectorIndex) Contains(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, exists := v.records[id]
	return exists
}

// Count returns the number of stored records.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.records)
}

// AllIDs returns every stored chunk ID, sorted.
func (v *VectorIndex) AllIDs() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	ids := make([]string, 0, len(v.records))
	for id := range v.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dimensions returns the configured embedding width.
func (v *VectorIndex) Dimensions() int {
	return v.config.Dimensions
}

// CosineSimilarity computes cosine similarity between two vectors.
// A zero-norm vector on either side scores 0 rather than dividing by zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// normalizeInPlace scales v to unit length. Zero vectors are left alone.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

func dimensionMismatch(expected, got int) error {
	return rerrors.New(rerrors.ErrCodeDimensionMismatch, "embedding dimension mismatch", nil).
		WithDetail("expected", strconv.Itoa(expected)).
		WithDetail("got", strconv.Itoa(got)).
		WithSuggestion("rebuild the index with 'retreva index <root>'")
}
