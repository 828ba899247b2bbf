package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	cat, err := OpenCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	return cat
}

func TestCatalog_SaveAndGet(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	entry := FileEntry{
		Path:        "src/app.py",
		Size:        1234,
		ModTime:     time.Now().Truncate(time.Millisecond),
		ContentHash: "abc123",
		ChunkIDs:    []string{"c1", "c2"},
		Generation:  "gen-1",
		IndexedAt:   time.Now().Truncate(time.Millisecond),
	}
	require.NoError(t, cat.SaveFile(ctx, entry))

	got, err := cat.GetFile(ctx, "src/app.py")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, entry.Path, got.Path)
	assert.Equal(t, entry.ContentHash, got.ContentHash)
	assert.Equal(t, entry.ChunkIDs, got.ChunkIDs)
	assert.Equal(t, entry.Generation, got.Generation)
	assert.True(t, entry.ModTime.Equal(got.ModTime))
}

func TestCatalog_GetUnknownPath(t *testing.T) {
	cat := openTestCatalog(t)

	got, err := cat.GetFile(context.Background(), "missing.py")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCatalog_UpsertReplaces(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	entry := FileEntry{Path: "a.py", ContentHash: "v1", ChunkIDs: []string{"c1"}, Generation: "gen-1"}
	require.NoError(t, cat.SaveFile(ctx, entry))

	entry.ContentHash = "v2"
	entry.ChunkIDs = []string{"c9", "c10"}
	entry.Generation = "gen-2"
	require.NoError(t, cat.SaveFile(ctx, entry))

	got, err := cat.GetFile(ctx, "a.py")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "v2", got.ContentHash)
	assert.Equal(t, []string{"c9", "c10"}, got.ChunkIDs)

	count, err := cat.FileCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCatalog_DeleteAndList(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.SaveFile(ctx, FileEntry{Path: "b.py", ChunkIDs: []string{}, Generation: "g"}))
	require.NoError(t, cat.SaveFile(ctx, FileEntry{Path: "a.py", ChunkIDs: []string{}, Generation: "g"}))

	entries, err := cat.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.py", entries[0].Path)
	assert.Equal(t, "b.py", entries[1].Path)

	require.NoError(t, cat.DeleteFile(ctx, "a.py"))
	entries, err = cat.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.py", entries[0].Path)

	require.NoError(t, cat.Clear(ctx))
	count, err := cat.FileCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
