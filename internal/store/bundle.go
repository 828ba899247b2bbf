package store

import (
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	rerrors "github.com/retreva/retreva/internal/errors"
)

// BundleFormatVersion is bumped on any incompatible change to the
// persisted bundle layout.
const BundleFormatVersion = 1

// Bundle file names inside the index directory.
const (
	LexicalBundleName = "lexical.bundle"
	VectorBundleName  = "vectors.bundle"
)

// bundleHeader prefixes every bundle. Generation ties the lexical and
// vector bundles of one publish together.
type bundleHeader struct {
	FormatVersion int
	Generation    string
	CreatedAt     time.Time
}

// lexicalSnapshot is the persisted form of a TFIDFIndex.
type lexicalSnapshot struct {
	Header   bundleHeader
	MaxVocab int
	Terms    []string
	IDF      []float64
	Rows     map[string]map[int]float64
	Meta     map[string]ChunkMeta
}

// vectorSnapshot is the persisted form of a VectorIndex. Only the records
// are stored; the HNSW graph is rebuilt on load, which also drops any
// orphans accumulated by lazy deletion.
type vectorSnapshot struct {
	Header     bundleHeader
	Dimensions int
	Records    []VectorRecord
}

// SaveBundles persists both indexes under dir as one generation. Each
// bundle is zstd-compressed gob written to a temp file and renamed into
// place, so a reader never observes a partial bundle.
func SaveBundles(dir, generation string, lex *TFIDFIndex, vec *VectorIndex) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return rerrors.New(rerrors.ErrCodeBundleWrite, "create index directory", err)
	}

	header := bundleHeader{
		FormatVersion: BundleFormatVersion,
		Generation:    generation,
		CreatedAt:     time.Now().UTC(),
	}

	lexPath := filepath.Join(dir, LexicalBundleName)
	vecPath := filepath.Join(dir, VectorBundleName)
	lexTmp := lexPath + ".tmp"
	vecTmp := vecPath + ".tmp"

	if err := writeBundle(lexTmp, lexicalToSnapshot(header, lex)); err != nil {
		return err
	}
	if err := writeBundle(vecTmp, vectorToSnapshot(header, vec)); err != nil {
		_ = os.Remove(lexTmp)
		return err
	}

	// Both temp files are complete; publish with back-to-back renames to
	// keep the window where generations can diverge as small as possible.
	if err := os.Rename(lexTmp, lexPath); err != nil {
		_ = os.Remove(lexTmp)
		_ = os.Remove(vecTmp)
		return rerrors.New(rerrors.ErrCodeBundleWrite, "publish lexical bundle", err)
	}
	if err := os.Rename(vecTmp, vecPath); err != nil {
		_ = os.Remove(vecTmp)
		return rerrors.New(rerrors.ErrCodeBundleWrite, "publish vector bundle", err)
	}
	return nil
}

// LoadBundles loads both indexes from dir and returns them with their
// shared generation. Missing bundles yield an index-not-ready error; a
// half-present pair or mismatched generations yield a corrupt-index error,
// signaling that a full rebuild is required.
func LoadBundles(dir string) (*TFIDFIndex, *VectorIndex, string, error) {
	lexPath := filepath.Join(dir, LexicalBundleName)
	vecPath := filepath.Join(dir, VectorBundleName)

	lexExists := fileExists(lexPath)
	vecExists := fileExists(vecPath)
	if !lexExists && !vecExists {
		return nil, nil, "", rerrors.IndexNotReady()
	}
	if lexExists != vecExists {
		return nil, nil, "", rerrors.CorruptIndexError("index bundle pair is incomplete", nil).
			WithDetail("dir", dir)
	}

	var lexSnap lexicalSnapshot
	if err := readBundle(lexPath, &lexSnap); err != nil {
		return nil, nil, "", err
	}
	var vecSnap vectorSnapshot
	if err := readBundle(vecPath, &vecSnap); err != nil {
		return nil, nil, "", err
	}

	if lexSnap.Header.FormatVersion != BundleFormatVersion || vecSnap.Header.FormatVersion != BundleFormatVersion {
		return nil, nil, "", rerrors.CorruptIndexError("unsupported bundle format version", nil).
			WithDetail("dir", dir)
	}
	if lexSnap.Header.Generation != vecSnap.Header.Generation {
		return nil, nil, "", rerrors.CorruptIndexError("lexical and vector bundles are from different generations", nil).
			WithDetail("lexical_generation", lexSnap.Header.Generation).
			WithDetail("vector_generation", vecSnap.Header.Generation)
	}

	lex := lexicalFromSnapshot(lexSnap)
	vec, err := vectorFromSnapshot(vecSnap)
	if err != nil {
		return nil, nil, "", err
	}
	return lex, vec, lexSnap.Header.Generation, nil
}

// BundlesExist reports whether a complete bundle pair is present in dir.
func BundlesExist(dir string) bool {
	return fileExists(filepath.Join(dir, LexicalBundleName)) &&
		fileExists(filepath.Join(dir, VectorBundleName))
}

func lexicalToSnapshot(header bundleHeader, lex *TFIDFIndex) lexicalSnapshot {
	lex.mu.RLock()
	defer lex.mu.RUnlock()

	rows := make(map[string]map[int]float64, len(lex.rows))
	for id, row := range lex.rows {
		rows[id] = map[int]float64(row)
	}
	return lexicalSnapshot{
		Header:   header,
		MaxVocab: lex.maxVocab,
		Terms:    lex.terms,
		IDF:      lex.idf,
		Rows:     rows,
		Meta:     lex.meta,
	}
}

func lexicalFromSnapshot(snap lexicalSnapshot) *TFIDFIndex {
	lex := NewTFIDFIndex(snap.MaxVocab)
	lex.terms = snap.Terms
	lex.idf = snap.IDF
	for col, term := range snap.Terms {
		lex.vocab[term] = col
	}
	for id, row := range snap.Rows {
		lex.rows[id] = sparseVec(row)
	}
	if snap.Meta != nil {
		lex.meta = snap.Meta
	}
	lex.built = true
	return lex
}

func vectorToSnapshot(header bundleHeader, vec *VectorIndex) vectorSnapshot {
	vec.mu.RLock()
	defer vec.mu.RUnlock()

	records := make([]VectorRecord, 0, len(vec.records))
	for _, rec := range vec.records {
		records = append(records, rec)
	}
	return vectorSnapshot{
		Header:     header,
		Dimensions: vec.config.Dimensions,
		Records:    records,
	}
}

func vectorFromSnapshot(snap vectorSnapshot) (*VectorIndex, error) {
	dims := snap.Dimensions
	if dims <= 0 {
		return nil, rerrors.CorruptIndexError("vector bundle has no dimension", nil)
	}
	vec, err := NewVectorIndex(DefaultVectorIndexConfig(dims))
	if err != nil {
		return nil, err
	}
	if err := vec.Add(context.Background(), snap.Records); err != nil {
		return nil, rerrors.CorruptIndexError("vector bundle records are inconsistent", err)
	}
	return vec, nil
}

// writeBundle gob-encodes payload through zstd into path.
func writeBundle(path string, payload any) error {
	file, err := os.Create(path)
	if err != nil {
		return rerrors.New(rerrors.ErrCodeBundleWrite, "create bundle file", err)
	}

	zw, err := zstd.NewWriter(file)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return rerrors.New(rerrors.ErrCodeBundleWrite, "init bundle compressor", err)
	}

	if err := gob.NewEncoder(zw).Encode(payload); err != nil {
		_ = zw.Close()
		_ = file.Close()
		_ = os.Remove(path)
		return rerrors.New(rerrors.ErrCodeBundleWrite, "encode bundle", err)
	}
	if err := zw.Close(); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return rerrors.New(rerrors.ErrCodeBundleWrite, "flush bundle", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return rerrors.New(rerrors.ErrCodeBundleWrite, "close bundle file", err)
	}
	return nil
}

// readBundle decodes a zstd-compressed gob bundle into out.
func readBundle(path string, out any) error {
	file, err := os.Open(path)
	if err != nil {
		return rerrors.CorruptIndexError("open bundle", err).WithDetail("path", path)
	}
	defer func() { _ = file.Close() }()

	zr, err := zstd.NewReader(file)
	if err != nil {
		return rerrors.CorruptIndexError("bundle is not a valid archive", err).WithDetail("path", path)
	}
	defer zr.Close()

	if err := gob.NewDecoder(zr).Decode(out); err != nil {
		return rerrors.CorruptIndexError("decode bundle", err).WithDetail("path", path)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
