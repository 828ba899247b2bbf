package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string, opts Options) *Watcher {
	t.Helper()
	w, err := New(opts, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { _ = w.Stop() })

	go func() { _ = w.Start(ctx, root) }()
	// Give the watch registration a moment before mutating the tree.
	time.Sleep(50 * time.Millisecond)
	return w
}

func waitForPath(t *testing.T, w *Watcher, path string) FileEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case batch, ok := <-w.Events():
			require.True(t, ok, "event channel closed before %s arrived", path)
			for _, ev := range batch {
				if ev.Path == path {
					return ev
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event on %s", path)
		}
	}
}

func TestWatcherSeesCreatedFile(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, Options{DebounceWindow: 30 * time.Millisecond})

	require.NoError(t, os.WriteFile(filepath.Join(root, "new.go"), []byte("package x\n"), 0o644))

	ev := waitForPath(t, w, "new.go")
	assert.Equal(t, OpCreate, ev.Operation)
}

func TestWatcherSeesModifiedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "app.go")
	require.NoError(t, os.WriteFile(path, []byte("package x\n"), 0o644))

	w := startWatcher(t, root, Options{DebounceWindow: 30 * time.Millisecond})

	require.NoError(t, os.WriteFile(path, []byte("package x\n\nvar y int\n"), 0o644))

	ev := waitForPath(t, w, "app.go")
	assert.Contains(t, []Operation{OpModify, OpCreate}, ev.Operation)
}

func TestWatcherSeesDeletedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "old.go")
	require.NoError(t, os.WriteFile(path, []byte("package x\n"), 0o644))

	w := startWatcher(t, root, Options{DebounceWindow: 30 * time.Millisecond})

	require.NoError(t, os.Remove(path))

	ev := waitForPath(t, w, "old.go")
	assert.Equal(t, OpDelete, ev.Operation)
}

func TestWatcherIgnoresIndexDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".retreva"), 0o755))

	w := startWatcher(t, root, Options{DebounceWindow: 30 * time.Millisecond})

	require.NoError(t, os.WriteFile(filepath.Join(root, ".retreva", "catalog.db"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "visible.go"), []byte("package x\n"), 0o644))

	ev := waitForPath(t, w, "visible.go")
	assert.Equal(t, "visible.go", ev.Path)

	// Nothing from the index directory should ever surface.
	select {
	case batch := <-w.Events():
		for _, got := range batch {
			assert.NotContains(t, got.Path, ".retreva")
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherExcludePatterns(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root, Options{
		DebounceWindow:  30 * time.Millisecond,
		ExcludePatterns: []string{"*.log"},
	})

	require.NoError(t, os.WriteFile(filepath.Join(root, "noise.log"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "code.go"), []byte("package x\n"), 0o644))

	ev := waitForPath(t, w, "code.go")
	assert.Equal(t, "code.go", ev.Path)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, err := New(Options{}, nil)
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, open := <-w.Events()
	assert.False(t, open)
}
