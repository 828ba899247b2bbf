// Package watcher observes a project tree for changes and emits
// debounced file events that drive incremental reindexing.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	rerrors "github.com/retreva/retreva/internal/errors"
	"github.com/retreva/retreva/internal/scanner"
)

// Operation is a file system operation type.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

// String returns a human-readable operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change, with Path relative to the watch
// root and slash-normalized.
type FileEvent struct {
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow is how long to coalesce events before emitting.
	DebounceWindow time.Duration

	// EventBufferSize bounds the output channel.
	EventBufferSize int

	// ExcludePatterns skip matching paths in addition to the scanner's
	// built-in exclusions.
	ExcludePatterns []string
}

// DefaultDebounceWindow balances save-burst coalescing against update
// latency.
const DefaultDebounceWindow = 200 * time.Millisecond

// Watcher emits debounced batches of file events for a project root.
// New directories are added to the watch as they appear.
type Watcher struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	events    chan []FileEvent
	errs      chan error
	opts      Options
	logger    *slog.Logger

	rootPath string
	stopCh   chan struct{}

	mu      sync.Mutex
	stopped bool
}

// New creates a watcher. Start must be called before events flow.
func New(opts Options, logger *slog.Logger) (*Watcher, error) {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	if opts.EventBufferSize <= 0 {
		opts.EventBufferSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, rerrors.InternalError("create file watcher", err)
	}

	return &Watcher{
		fsw:       fsw,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errs:      make(chan error, 10),
		opts:      opts,
		logger:    logger.With("component", "watcher"),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start watches root recursively until ctx is cancelled or Stop is
// called. It blocks on the event loop.
func (w *Watcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return rerrors.New(rerrors.ErrCodeInvalidPath, "resolve watch root", err)
	}
	w.rootPath = absRoot

	if err := w.addRecursive(absRoot); err != nil {
		return rerrors.InternalError("watch project directories", err)
	}

	go w.forwardBatches(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// Events returns the channel of debounced event batches.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns the channel of non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Stop shuts the watcher down and closes both channels. Safe to call
// multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	_ = w.fsw.Close()
	close(w.events)
	close(w.errs)
	return nil
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.rootPath, event.Name)
	if err != nil {
		return
	}
	relPath = filepath.ToSlash(relPath)
	if relPath == "." {
		return
	}

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	if w.shouldIgnore(relPath) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			_ = w.fsw.Add(event.Name)
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	if isDir && op != OpDelete {
		return
	}

	w.debouncer.Add(FileEvent{
		Path:      relPath,
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

func (w *Watcher) forwardBatches(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emitBatch(batch)
		}
	}
}

func (w *Watcher) emitBatch(batch []FileEvent) {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped || len(batch) == 0 {
		return
	}

	select {
	case w.events <- batch:
	default:
		w.logger.Warn("event buffer full, dropping batch", "batch_size", len(batch))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	select {
	case w.errs <- err:
	default:
	}
}

// addRecursive registers root and every non-excluded subdirectory.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}

		relPath, _ := filepath.Rel(root, path)
		if relPath == "." {
			return w.fsw.Add(path)
		}
		relPath = filepath.ToSlash(relPath)

		if w.shouldIgnore(relPath) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) shouldIgnore(relPath string) bool {
	for _, part := range strings.Split(relPath, "/") {
		if scanner.IsDefaultExcludedDir(part) {
			return true
		}
	}
	for _, pattern := range w.opts.ExcludePatterns {
		if scanner.MatchPattern(relPath, pattern) {
			return true
		}
	}
	return false
}
