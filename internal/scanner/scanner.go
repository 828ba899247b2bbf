// Package scanner discovers indexable source files under a project root.
// The walk is lexically ordered and therefore deterministic; binaries,
// oversized files, and common vendored or generated directories are
// skipped before chunking ever sees them.
package scanner

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	rerrors "github.com/retreva/retreva/internal/errors"
)

// DefaultMaxFileSize caps indexable file size at 2 MiB.
const DefaultMaxFileSize = 2 * 1024 * 1024

// defaultExcludeDirs are never descended into.
var defaultExcludeDirs = []string{
	".git", ".hg", ".svn",
	"node_modules", "vendor", "dist", "build", "target",
	".venv", "venv", "__pycache__", ".idea", ".vscode",
	".retreva",
}

// defaultExcludeFiles are skipped wherever they appear.
var defaultExcludeFiles = []string{
	".DS_Store", "*.min.js", "*.min.css", "*.lock", "*.log",
	"*.pyc", "*.exe", "*.dll", "*.so", "*.dylib",
}

// sensitiveFilePatterns never enter the index.
var sensitiveFilePatterns = []string{
	".env*", "*.pem", "*.key", "id_rsa*", "*.p12",
}

// FileInfo describes one discovered file.
type FileInfo struct {
	// Path is slash-normalized and relative to the scan root.
	Path    string
	AbsPath string
	Size    int64
	ModTime time.Time
}

// Result is one unit streamed from Scan: a file or a traversal error.
type Result struct {
	File *FileInfo
	Err  error
}

// Options configures a scan.
type Options struct {
	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int64

	// IncludePatterns, when set, keep only matching files.
	IncludePatterns []string

	// ExcludePatterns skip matching files and directories in addition to
	// the built-in exclusions.
	ExcludePatterns []string
}

// Scanner walks a project tree and streams indexable files.
type Scanner struct {
	opts Options
}

// New creates a scanner.
func New(opts Options) *Scanner {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	return &Scanner{opts: opts}
}

// Scan streams indexable files under root. The channel closes when the
// walk finishes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, root string) (<-chan Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, rerrors.New(rerrors.ErrCodeInvalidPath, "resolve scan root", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, rerrors.New(rerrors.ErrCodeFileNotFound, "stat scan root", err).
			WithDetail("root", root)
	}
	if !info.IsDir() {
		return nil, rerrors.New(rerrors.ErrCodeInvalidPath, "scan root is not a directory", nil).
			WithDetail("root", root)
	}

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, results)
	}()
	return results, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, results chan<- Result) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return nil // unreadable entry, keep walking
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if s.excludeDir(relPath) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if s.excludeFile(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > s.opts.MaxFileSize {
			return nil
		}
		if isBinaryFile(path) {
			return nil
		}
		if len(s.opts.IncludePatterns) > 0 && !matchesAny(relPath, s.opts.IncludePatterns) {
			return nil
		}

		select {
		case results <- Result{File: &FileInfo{
			Path:    relPath,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- Result{Err: err}:
		default:
		}
	}
}

func (s *Scanner) excludeDir(relPath string) bool {
	if IsDefaultExcludedDir(filepath.Base(relPath)) {
		return true
	}
	for _, pattern := range s.opts.ExcludePatterns {
		if MatchPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

func (s *Scanner) excludeFile(relPath string) bool {
	for _, pattern := range sensitiveFilePatterns {
		if MatchPattern(relPath, pattern) {
			return true
		}
	}
	for _, pattern := range defaultExcludeFiles {
		if MatchPattern(relPath, pattern) {
			return true
		}
	}
	for _, pattern := range s.opts.ExcludePatterns {
		if MatchPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

// MatchPattern matches a relative path against one pattern. Supported
// forms: "dir/**" prefixes, "**/name" components, globs applied to the
// base name, ".env*" style prefixes, and exact base-name matches.
func MatchPattern(relPath, pattern string) bool {
	baseName := filepath.Base(relPath)

	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return relPath == prefix || strings.HasPrefix(relPath, prefix+"/")
	}

	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		for _, part := range strings.Split(relPath, "/") {
			if ok, _ := filepath.Match(suffix, part); ok {
				return true
			}
		}
		return false
	}

	if strings.HasSuffix(pattern, "*") && !strings.HasPrefix(pattern, "*") {
		return strings.HasPrefix(baseName, strings.TrimSuffix(pattern, "*"))
	}

	if ok, _ := filepath.Match(pattern, baseName); ok {
		return true
	}
	return baseName == pattern
}

// IsDefaultExcludedDir reports whether a directory name is always
// skipped, regardless of configured patterns.
func IsDefaultExcludedDir(name string) bool {
	for _, dir := range defaultExcludeDirs {
		if name == dir {
			return true
		}
	}
	return false
}

func matchesAny(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		if MatchPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

// isBinaryFile sniffs the first 512 bytes for a NUL.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil || n == 0 {
		return false
	}
	return bytes.Contains(buf[:n], []byte{0})
}
