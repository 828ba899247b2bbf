package store

import (
	"context"
	"math"
	"sort"
	"sync"

	rerrors "github.com/retreva/retreva/internal/errors"
)

// DefaultMaxVocabulary caps the lexical vocabulary size.
const DefaultMaxVocabulary = 50000

// sparseVec is a column -> weight mapping for one document.
type sparseVec map[int]float64

// TFIDFIndex is a term-weighted lexical index. Term frequency is scaled
// sublinearly (1 + ln tf), multiplied by smoothed inverse document
// frequency (ln((1+N)/(1+df)) + 1), and each document vector is
// L2-normalized so query scoring reduces to a sparse dot product.
//
// TF-IDF was chosen over BM25 for its closed-form vector representation:
// document weights are fixed at build time, queries are a projection into
// the same space, and cosine similarity needs no per-query iteration over
// corpus statistics.
type TFIDFIndex struct {
	mu       sync.RWMutex
	maxVocab int

	vocab map[string]int // term -> column
	terms []string       // column -> term
	idf   []float64      // column -> inverse document frequency

	rows  map[string]sparseVec // chunk ID -> normalized weights
	meta  map[string]ChunkMeta // chunk ID -> metadata
	built bool
}

// NewTFIDFIndex creates an empty lexical index. maxVocab bounds the
// vocabulary; zero or negative uses the default.
func NewTFIDFIndex(maxVocab int) *TFIDFIndex {
	if maxVocab <= 0 {
		maxVocab = DefaultMaxVocabulary
	}
	return &TFIDFIndex{
		maxVocab: maxVocab,
		vocab:    make(map[string]int),
		rows:     make(map[string]sparseVec),
		meta:     make(map[string]ChunkMeta),
	}
}

// Build replaces the index contents. The vocabulary is recomputed from the
// given documents; when it exceeds the cap, lowest-df terms are dropped
// first, ties by term, so the kept vocabulary is deterministic.
func (x *TFIDFIndex) Build(ctx context.Context, docs []Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	df := make(map[string]int)
	docTerms := make([]map[string]int, len(docs))
	for i, doc := range docs {
		tf := make(map[string]int)
		for _, term := range TokenizeCode(doc.Content) {
			tf[term]++
		}
		docTerms[i] = tf
		for term := range tf {
			df[term]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	if len(terms) > x.maxVocab {
		sort.Slice(terms, func(i, j int) bool {
			if df[terms[i]] != df[terms[j]] {
				return df[terms[i]] > df[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:x.maxVocab]
	}
	sort.Strings(terms)

	vocab := make(map[string]int, len(terms))
	for col, term := range terms {
		vocab[term] = col
	}

	n := float64(len(docs))
	idf := make([]float64, len(terms))
	for col, term := range terms {
		idf[col] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	rows := make(map[string]sparseVec, len(docs))
	meta := make(map[string]ChunkMeta, len(docs))
	for i, doc := range docs {
		rows[doc.ID] = weightVector(docTerms[i], vocab, idf)
		meta[doc.ID] = doc.Meta
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.vocab = vocab
	x.terms = terms
	x.idf = idf
	x.rows = rows
	x.meta = meta
	x.built = true
	return nil
}

// Add projects documents into the frozen vocabulary. Terms outside the
// build-time vocabulary are silently dropped, a documented staleness
// window that lasts until the next full Build.
func (x *TFIDFIndex) Add(ctx context.Context, docs []Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.built {
		return rerrors.IndexNotReady()
	}

	for _, doc := range docs {
		tf := make(map[string]int)
		for _, term := range TokenizeCode(doc.Content) {
			tf[term]++
		}
		x.rows[doc.ID] = weightVector(tf, x.vocab, x.idf)
		x.meta[doc.ID] = doc.Meta
	}
	return nil
}

// Remove drops documents by chunk ID. Unknown IDs are ignored.
func (x *TFIDFIndex) Remove(_ context.Context, ids []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, id := range ids {
		delete(x.rows, id)
		delete(x.meta, id)
	}
	return nil
}

// Query tokenizes the query into the index's term space and returns up to
// k documents by descending cosine similarity, ties by ascending chunk ID.
// Out-of-vocabulary query terms are ignored; a query with no known terms
// returns no results.
func (x *TFIDFIndex) Query(ctx context.Context, query string, k int) ([]LexicalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.built {
		return nil, rerrors.IndexNotReady()
	}
	if k <= 0 {
		return []LexicalResult{}, nil
	}

	tf := make(map[string]int)
	for _, term := range TokenizeCode(query) {
		tf[term]++
	}
	qvec := weightVector(tf, x.vocab, x.idf)
	if len(qvec) == 0 {
		return []LexicalResult{}, nil
	}

	results := make([]LexicalResult, 0, len(x.rows))
	for id, row := range x.rows {
		score := sparseDot(qvec, row)
		if score > 0 {
			results = append(results, LexicalResult{ChunkID: id, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Meta returns the stored metadata for a chunk ID.
func (x *TFIDFIndex) Meta(id string) (ChunkMeta, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	m, ok := x.meta[id]
	return m, ok
}

// Count returns the number of indexed documents.
func (x *TFIDFIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.rows)
}

// Stats returns index statistics.
func (x *TFIDFIndex) Stats() LexicalStats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return LexicalStats{
		DocumentCount: len(x.rows),
		TermCount:     len(x.terms),
	}
}

// Clone returns an independent copy sharing the frozen vocabulary. Row
// vectors are immutable once stored, so the row and metadata maps are
// copied shallowly; Add and Remove on the clone leave the original
// untouched.
func (x *TFIDFIndex) Clone() *TFIDFIndex {
	x.mu.RLock()
	defer x.mu.RUnlock()

	rows := make(map[string]sparseVec, len(x.rows))
	for id, row := range x.rows {
		rows[id] = row
	}
	meta := make(map[string]ChunkMeta, len(x.meta))
	for id, m := range x.meta {
		meta[id] = m
	}

	return &TFIDFIndex{
		maxVocab: x.maxVocab,
		vocab:    x.vocab,
		terms:    x.terms,
		idf:      x.idf,
		rows:     rows,
		meta:     meta,
		built:    x.built,
	}
}

// IDsForFile returns the chunk IDs indexed for a file path, sorted. The
// index itself is the authority on which chunks a file currently owns,
// so retirement never depends on external bookkeeping staying in sync.
func (x *TFIDFIndex) IDsForFile(path string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var ids []string
	for id, m := range x.meta {
		if m.FilePath == path {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// AllIDs returns every indexed chunk ID.
func (x *TFIDFIndex) AllIDs() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ids := make([]string, 0, len(x.rows))
	for id := range x.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// weightVector converts raw term frequencies into an L2-normalized sparse
// TF-IDF vector over the given vocabulary.
func weightVector(tf map[string]int, vocab map[string]int, idf []float64) sparseVec {
	vec := make(sparseVec)
	var sumSquares float64
	for term, count := range tf {
		col, ok := vocab[term]
		if !ok {
			continue
		}
		w := (1 + math.Log(float64(count))) * idf[col]
		vec[col] = w
		sumSquares += w * w
	}

	if sumSquares > 0 {
		norm := math.Sqrt(sumSquares)
		for col, w := range vec {
			vec[col] = w / norm
		}
	}
	return vec
}

// sparseDot computes the dot product of two sparse vectors, iterating the
// smaller one.
func sparseDot(a, b sparseVec) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for col, w := range a {
		if bw, ok := b[col]; ok {
			sum += w * bw
		}
	}
	return sum
}
