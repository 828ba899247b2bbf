// Package index builds and maintains the on-disk retrieval index. The
// Updater owns the indexing lifecycle: full rebuilds, incremental
// per-file updates, and atomic generation publishing. Readers always see
// a complete generation or the previous one, never a half-written index.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/retreva/retreva/internal/chunk"
	"github.com/retreva/retreva/internal/config"
	"github.com/retreva/retreva/internal/embed"
	rerrors "github.com/retreva/retreva/internal/errors"
	"github.com/retreva/retreva/internal/scanner"
	"github.com/retreva/retreva/internal/search"
	"github.com/retreva/retreva/internal/store"
)

var _ search.IndexProvider = (*Updater)(nil)

// State is the updater lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateChunking   State = "chunking"
	StateEmbedding  State = "embedding"
	StatePublishing State = "publishing"
	StateFailed     State = "failed"
)

// CatalogName is the file catalog database inside the index directory.
const CatalogName = "catalog.db"

// lockFileName guards generation publishing against concurrent writers.
const lockFileName = "index.lock"

// generation is one published index snapshot. The pointer swap in
// Updater.current is the only mutation readers can observe.
type generation struct {
	id      string
	lexical *store.TFIDFIndex
	vectors *store.VectorIndex
}

// BuildStats summarizes a full index build.
type BuildStats struct {
	Files      int
	Chunks     int
	Generation string
	Elapsed    time.Duration
}

// Status reports the updater's current state.
type Status struct {
	State      State
	Generation string
	FileCount  int
	ChunkCount int
	LastError  string
}

// Updater builds, loads, and incrementally updates the index for one
// project root. Mutating operations are serialized; CurrentIndex is
// lock-free and safe from any goroutine.
type Updater struct {
	root     string
	indexDir string
	cfg      *config.Config
	embedder embed.Embedder
	scan     *scanner.Scanner
	catalog  *store.Catalog
	logger   *slog.Logger

	current atomic.Pointer[generation]

	// mu serializes mutating operations; stateMu guards the observable
	// state so Status never blocks behind a running build.
	mu      sync.Mutex
	stateMu sync.Mutex
	state   State
	lastErr error
}

// NewUpdater creates an updater rooted at the project directory. The
// index directory and catalog are created eagerly; bundles are not
// loaded until Load or a build publishes a generation.
func NewUpdater(root string, cfg *config.Config, embedder embed.Embedder, logger *slog.Logger) (*Updater, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, rerrors.New(rerrors.ErrCodeInvalidPath, "resolve project root", err)
	}

	indexDir := cfg.IndexDir
	if !filepath.IsAbs(indexDir) {
		indexDir = filepath.Join(absRoot, indexDir)
	}
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, rerrors.New(rerrors.ErrCodeBundleWrite, "create index directory", err)
	}

	catalog, err := store.OpenCatalog(filepath.Join(indexDir, CatalogName))
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Updater{
		root:     absRoot,
		indexDir: indexDir,
		cfg:      cfg,
		embedder: embedder,
		scan: scanner.New(scanner.Options{
			IncludePatterns: cfg.Paths.Include,
			ExcludePatterns: cfg.Paths.Exclude,
		}),
		catalog: catalog,
		logger:  logger.With("component", "index"),
		state:   StateIdle,
	}, nil
}

// Load reads published bundles from disk and makes them the current
// generation. Returns IndexNotReady when no index has been built yet and
// CorruptIndex when the bundles are unreadable or inconsistent.
func (u *Updater) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lex, vec, gen, err := store.LoadBundles(u.indexDir)
	if err != nil {
		return err
	}

	u.current.Store(&generation{id: gen, lexical: lex, vectors: vec})
	u.logger.Info("index loaded",
		"generation", gen,
		"chunks", lex.Count(),
	)
	return nil
}

// CurrentIndex returns the active generation for querying. Readers keep
// working against the snapshot they received even while a new generation
// is being built.
func (u *Updater) CurrentIndex() (store.LexicalIndex, store.VectorReader, string, error) {
	gen := u.current.Load()
	if gen == nil {
		return nil, nil, "", rerrors.IndexNotReady()
	}
	return gen.lexical, gen.vectors, gen.id, nil
}

// Generation returns the current generation ID, or empty when no
// generation is published.
func (u *Updater) Generation() string {
	if gen := u.current.Load(); gen != nil {
		return gen.id
	}
	return ""
}

// State returns the current lifecycle state.
func (u *Updater) State() State {
	u.stateMu.Lock()
	defer u.stateMu.Unlock()
	return u.state
}

// Status reports lifecycle state and index counts.
func (u *Updater) Status(ctx context.Context) Status {
	u.stateMu.Lock()
	st := Status{State: u.state}
	if u.lastErr != nil {
		st.LastError = u.lastErr.Error()
	}
	u.stateMu.Unlock()

	if gen := u.current.Load(); gen != nil {
		st.Generation = gen.id
		st.ChunkCount = gen.lexical.Count()
	}
	if n, err := u.catalog.FileCount(ctx); err == nil {
		st.FileCount = n
	}
	return st
}

// Close releases the catalog.
func (u *Updater) Close() error {
	return u.catalog.Close()
}

// IndexCodebase scans the project root and rebuilds the index from
// scratch: every file is chunked and embedded, the vocabulary is
// recomputed, and the result replaces the current generation atomically.
func (u *Updater) IndexCodebase(ctx context.Context) (*BuildStats, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	start := time.Now()
	u.setState(StateChunking)

	files, chunks, err := u.scanAndChunk(ctx)
	if err != nil {
		return nil, u.fail(err)
	}

	u.setState(StateEmbedding)
	embeddings, err := u.embedChunks(ctx, chunks)
	if err != nil {
		return nil, u.fail(err)
	}

	lex := store.NewTFIDFIndex(u.cfg.Lexical.MaxVocabularySize)
	docs := make([]store.Document, len(chunks))
	records := make([]store.VectorRecord, len(chunks))
	for i, c := range chunks {
		meta := chunkMeta(c)
		docs[i] = store.Document{ID: c.ID, Content: c.Text, Meta: meta}
		records[i] = store.VectorRecord{ChunkID: c.ID, Embedding: embeddings[i], Meta: meta}
	}
	if err := lex.Build(ctx, docs); err != nil {
		return nil, u.fail(err)
	}

	vec, err := store.NewVectorIndex(store.DefaultVectorIndexConfig(u.embedder.Dimensions()))
	if err != nil {
		return nil, u.fail(err)
	}
	if err := vec.Add(ctx, records); err != nil {
		return nil, u.fail(err)
	}

	u.setState(StatePublishing)
	gen := &generation{id: uuid.NewString(), lexical: lex, vectors: vec}
	if err := u.publish(gen); err != nil {
		return nil, u.fail(err)
	}

	if err := u.catalog.Clear(ctx); err != nil {
		return nil, u.fail(err)
	}
	byFile := chunkIDsByFile(chunks)
	for _, f := range files {
		entry := store.FileEntry{
			Path:        f.Path,
			Size:        f.Size,
			ModTime:     f.ModTime,
			ContentHash: f.hash,
			ChunkIDs:    byFile[f.Path],
			Generation:  gen.id,
			IndexedAt:   time.Now(),
		}
		if err := u.catalog.SaveFile(ctx, entry); err != nil {
			return nil, u.fail(err)
		}
	}

	u.setState(StateIdle)
	stats := &BuildStats{
		Files:      len(files),
		Chunks:     len(chunks),
		Generation: gen.id,
		Elapsed:    time.Since(start),
	}
	u.logger.Info("index built",
		"files", stats.Files,
		"chunks", stats.Chunks,
		"generation", stats.Generation,
		"elapsed", stats.Elapsed,
	)
	return stats, nil
}

// UpdateFile reindexes one file relative to the project root. Unchanged
// content is a no-op. A deleted file retires its chunks. On embedding
// failure the current generation stays published and the error is
// returned.
func (u *Updater) UpdateFile(ctx context.Context, relPath string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	relPath = filepath.ToSlash(relPath)
	absPath := filepath.Join(u.root, filepath.FromSlash(relPath))

	prev, err := u.catalog.GetFile(ctx, relPath)
	if err != nil {
		return u.fail(err)
	}

	content, statInfo, err := readFileIfPresent(absPath)
	if err != nil {
		return u.fail(err)
	}
	if content == nil {
		// File deleted. Nothing to do unless it was indexed.
		cur := u.current.Load()
		if cur == nil {
			if prev == nil {
				return nil
			}
			return rerrors.IndexNotReady()
		}
		return u.retireFile(ctx, relPath, cur)
	}

	hash := contentHash(content)
	if prev != nil && prev.ContentHash == hash {
		u.logger.Debug("file unchanged", "path", relPath)
		return nil
	}

	cur := u.current.Load()
	if cur == nil {
		return rerrors.IndexNotReady()
	}

	u.setState(StateChunking)
	chunks := chunk.Split(relPath, string(content), u.cfg.Chunker.MaxChunkTokens, u.cfg.Chunker.OverlapTokens)

	u.setState(StateEmbedding)
	embeddings, err := u.embedChunks(ctx, chunks)
	if err != nil {
		return u.fail(err)
	}

	lex := cur.lexical.Clone()
	vec, err := cur.vectors.Clone()
	if err != nil {
		return u.fail(err)
	}

	// Retire whatever the live generation holds for this path. The catalog
	// row can lag behind a published generation if its write failed, so it
	// is never trusted as the retirement source.
	if old := cur.lexical.IDsForFile(relPath); len(old) > 0 {
		if err := lex.Remove(ctx, old); err != nil {
			return u.fail(err)
		}
		if err := vec.Delete(ctx, old); err != nil {
			return u.fail(err)
		}
	}

	docs := make([]store.Document, len(chunks))
	records := make([]store.VectorRecord, len(chunks))
	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		meta := chunkMeta(c)
		docs[i] = store.Document{ID: c.ID, Content: c.Text, Meta: meta}
		records[i] = store.VectorRecord{ChunkID: c.ID, Embedding: embeddings[i], Meta: meta}
		chunkIDs[i] = c.ID
	}
	if err := lex.Add(ctx, docs); err != nil {
		return u.fail(err)
	}
	if err := vec.Add(ctx, records); err != nil {
		return u.fail(err)
	}

	u.setState(StatePublishing)
	gen := &generation{id: uuid.NewString(), lexical: lex, vectors: vec}
	if err := u.publish(gen); err != nil {
		return u.fail(err)
	}

	entry := store.FileEntry{
		Path:        relPath,
		Size:        statInfo.Size(),
		ModTime:     statInfo.ModTime(),
		ContentHash: hash,
		ChunkIDs:    chunkIDs,
		Generation:  gen.id,
		IndexedAt:   time.Now(),
	}
	if err := u.catalog.SaveFile(ctx, entry); err != nil {
		return u.fail(err)
	}

	u.setState(StateIdle)
	u.logger.Info("file reindexed",
		"path", relPath,
		"chunks", len(chunks),
		"generation", gen.id,
	)
	return nil
}

// retireFile removes a deleted file's chunks and publishes the shrunken
// generation.
func (u *Updater) retireFile(ctx context.Context, relPath string, cur *generation) error {
	chunkIDs := cur.lexical.IDsForFile(relPath)
	if len(chunkIDs) == 0 {
		// Never indexed, or already retired. Clear any stale catalog row.
		return u.catalog.DeleteFile(ctx, relPath)
	}

	lex := cur.lexical.Clone()
	vec, err := cur.vectors.Clone()
	if err != nil {
		return u.fail(err)
	}
	if err := lex.Remove(ctx, chunkIDs); err != nil {
		return u.fail(err)
	}
	if err := vec.Delete(ctx, chunkIDs); err != nil {
		return u.fail(err)
	}

	u.setState(StatePublishing)
	gen := &generation{id: uuid.NewString(), lexical: lex, vectors: vec}
	if err := u.publish(gen); err != nil {
		return u.fail(err)
	}
	if err := u.catalog.DeleteFile(ctx, relPath); err != nil {
		return u.fail(err)
	}

	u.setState(StateIdle)
	u.logger.Info("file retired",
		"path", relPath,
		"chunks", len(chunkIDs),
		"generation", gen.id,
	)
	return nil
}

// publish persists a generation to disk and swaps it in. The file lock
// rejects a second concurrent publisher rather than queueing it.
func (u *Updater) publish(gen *generation) error {
	lock := flock.New(filepath.Join(u.indexDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return rerrors.New(rerrors.ErrCodeBundleWrite, "acquire index lock", err)
	}
	if !locked {
		return rerrors.PublishConflict("another process is publishing to this index")
	}
	defer func() { _ = lock.Unlock() }()

	if err := store.SaveBundles(u.indexDir, gen.id, gen.lexical, gen.vectors); err != nil {
		return err
	}
	u.current.Store(gen)
	return nil
}

// scannedFile pairs scan metadata with the content hash computed while
// chunking, so the catalog records both in one pass.
type scannedFile struct {
	scanner.FileInfo
	hash string
}

// scanAndChunk walks the project root and chunks every indexable file.
func (u *Updater) scanAndChunk(ctx context.Context) ([]scannedFile, []chunk.Chunk, error) {
	results, err := u.scan.Scan(ctx, u.root)
	if err != nil {
		return nil, nil, err
	}

	var files []scannedFile
	var chunks []chunk.Chunk
	for r := range results {
		if r.Err != nil {
			return nil, nil, rerrors.New(rerrors.ErrCodeUpdateFailed, "scan project root", r.Err)
		}

		content, err := os.ReadFile(r.File.AbsPath)
		if err != nil {
			u.logger.Warn("skipping unreadable file", "path", r.File.Path, "error", err)
			continue
		}

		fileChunks := chunk.Split(r.File.Path, string(content), u.cfg.Chunker.MaxChunkTokens, u.cfg.Chunker.OverlapTokens)
		chunks = append(chunks, fileChunks...)
		files = append(files, scannedFile{FileInfo: *r.File, hash: contentHash(content)})
	}
	return files, chunks, nil
}

// embedChunks embeds chunk texts in parallel batches, preserving order.
func (u *Updater) embedChunks(ctx context.Context, chunks []chunk.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	batchSize := u.cfg.Embeddings.BatchSize
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}

	embeddings := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = chunks[i].Text
			}
			vecs, err := u.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return rerrors.InternalError(
					fmt.Sprintf("embedder returned %d vectors for %d texts", len(vecs), end-start), nil)
			}
			copy(embeddings[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

func (u *Updater) setState(s State) {
	u.stateMu.Lock()
	u.state = s
	if s != StateFailed {
		u.lastErr = nil
	}
	u.stateMu.Unlock()
}

func (u *Updater) fail(err error) error {
	u.stateMu.Lock()
	u.state = StateFailed
	u.lastErr = err
	u.stateMu.Unlock()
	u.logger.Error("index operation failed", "error", err)
	return err
}

func chunkMeta(c chunk.Chunk) store.ChunkMeta {
	return store.ChunkMeta{
		FilePath:  c.FilePath,
		StartLine: c.StartLine,
		EndLine:   c.EndLine,
		Text:      c.Text,
	}
}

func chunkIDsByFile(chunks []chunk.Chunk) map[string][]string {
	byFile := make(map[string][]string)
	for _, c := range chunks {
		byFile[c.FilePath] = append(byFile[c.FilePath], c.ID)
	}
	return byFile
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// readFileIfPresent returns (nil, nil, nil) when the file does not
// exist, distinguishing deletion from read failure.
func readFileIfPresent(path string) ([]byte, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, rerrors.New(rerrors.ErrCodeUpdateFailed, "stat file", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, rerrors.New(rerrors.ErrCodeUpdateFailed, "read file", err)
	}
	return content, info, nil
}
