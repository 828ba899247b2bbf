package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	rerrors "github.com/retreva/retreva/internal/errors"
)

// FileEntry tracks one indexed file: what content the index currently
// reflects and which chunks it produced. The incremental updater uses it
// to skip unchanged files and to retire a changed file's old chunks.
type FileEntry struct {
	Path        string
	Size        int64
	ModTime     time.Time
	ContentHash string
	ChunkIDs    []string
	Generation  string
	IndexedAt   time.Time
}

// Catalog is the SQLite-backed file catalog kept next to the index bundles.
type Catalog struct {
	db *sql.DB
}

const catalogSchema = `
CREATE TABLE IF NOT EXISTS files (
	path         TEXT PRIMARY KEY,
	size         INTEGER NOT NULL,
	mod_time     INTEGER NOT NULL,
	content_hash TEXT NOT NULL,
	chunk_ids    TEXT NOT NULL,
	generation   TEXT NOT NULL,
	indexed_at   INTEGER NOT NULL
);
`

// OpenCatalog opens or creates the catalog database at path.
func OpenCatalog(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, rerrors.New(rerrors.ErrCodeBundleWrite, "open catalog database", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, rerrors.New(rerrors.ErrCodeBundleWrite, "configure catalog database", err)
		}
	}

	if _, err := db.Exec(catalogSchema); err != nil {
		_ = db.Close()
		return nil, rerrors.New(rerrors.ErrCodeBundleWrite, "create catalog schema", err)
	}

	return &Catalog{db: db}, nil
}

// SaveFile inserts or replaces the entry for a file path.
func (c *Catalog) SaveFile(ctx context.Context, entry FileEntry) error {
	chunkIDs, err := json.Marshal(entry.ChunkIDs)
	if err != nil {
		return rerrors.InternalError("encode chunk IDs", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO files (path, size, mod_time, content_hash, chunk_ids, generation, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mod_time = excluded.mod_time,
			content_hash = excluded.content_hash,
			chunk_ids = excluded.chunk_ids,
			generation = excluded.generation,
			indexed_at = excluded.indexed_at`,
		entry.Path, entry.Size, entry.ModTime.UnixNano(), entry.ContentHash,
		string(chunkIDs), entry.Generation, entry.IndexedAt.UnixNano())
	if err != nil {
		return rerrors.New(rerrors.ErrCodeBundleWrite, "save catalog entry", err)
	}
	return nil
}

// GetFile returns the entry for a path, or (nil, nil) when unknown.
func (c *Catalog) GetFile(ctx context.Context, path string) (*FileEntry, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT path, size, mod_time, content_hash, chunk_ids, generation, indexed_at
		FROM files WHERE path = ?`, path)

	entry, err := scanFileEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, rerrors.New(rerrors.ErrCodeCorruptIndex, "read catalog entry", err)
	}
	return entry, nil
}

// DeleteFile removes the entry for a path. Unknown paths are a no-op.
func (c *Catalog) DeleteFile(ctx context.Context, path string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return rerrors.New(rerrors.ErrCodeBundleWrite, "delete catalog entry", err)
	}
	return nil
}

// ListFiles returns all entries ordered by path.
func (c *Catalog) ListFiles(ctx context.Context) ([]FileEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT path, size, mod_time, content_hash, chunk_ids, generation, indexed_at
		FROM files ORDER BY path`)
	if err != nil {
		return nil, rerrors.New(rerrors.ErrCodeCorruptIndex, "list catalog entries", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []FileEntry
	for rows.Next() {
		entry, err := scanFileEntry(rows)
		if err != nil {
			return nil, rerrors.New(rerrors.ErrCodeCorruptIndex, "read catalog entry", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, rerrors.New(rerrors.ErrCodeCorruptIndex, "iterate catalog entries", err)
	}
	return entries, nil
}

// FileCount returns the number of tracked files.
func (c *Catalog) FileCount(ctx context.Context) (int, error) {
	var count int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&count); err != nil {
		return 0, rerrors.New(rerrors.ErrCodeCorruptIndex, "count catalog entries", err)
	}
	return count, nil
}

// Clear removes every entry. Used when a full rebuild starts from scratch.
func (c *Catalog) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM files`); err != nil {
		return rerrors.New(rerrors.ErrCodeBundleWrite, "clear catalog", err)
	}
	return nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileEntry(row rowScanner) (*FileEntry, error) {
	var entry FileEntry
	var modTime, indexedAt int64
	var chunkIDs string

	if err := row.Scan(&entry.Path, &entry.Size, &modTime, &entry.ContentHash,
		&chunkIDs, &entry.Generation, &indexedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(chunkIDs), &entry.ChunkIDs); err != nil {
		return nil, err
	}
	entry.ModTime = time.Unix(0, modTime)
	entry.IndexedAt = time.Unix(0, indexedAt)
	return &entry, nil
}
