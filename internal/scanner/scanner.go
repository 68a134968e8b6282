// Package scanner walks a repository tree, applying the configured
// exclusion patterns and yielding candidate files for indexing.
package scanner

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// FileInfo describes one candidate file.
type FileInfo struct {
	// Path is canonical and repo-relative, slash-separated.
	Path    string
	Size    int64
	ModTime time.Time
}

// Scanner walks the repository applying exclusion globs.
type Scanner struct {
	root     string
	excludes []glob.Glob
	maxSize  int64
}

// New creates a scanner rooted at root. Patterns use glob syntax with `**`
// crossing separators; invalid patterns are rejected.
func New(root string, excludedPaths []string, maxFileSize int64) (*Scanner, error) {
	excludes := make([]glob.Glob, 0, len(excludedPaths))
	for _, pattern := range excludedPaths {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclusion pattern %q: %w", pattern, err)
		}
		excludes = append(excludes, g)
	}

	return &Scanner{
		root:     root,
		excludes: excludes,
		maxSize:  maxFileSize,
	}, nil
}

// IsExcluded reports whether a repo-relative path matches any exclusion.
// Only the given path is matched; callers test a directory itself (with a
// trailing slash) and skip its whole subtree when it is excluded.
func (s *Scanner) IsExcluded(relPath string) bool {
	clean := filepath.ToSlash(relPath)
	for _, g := range s.excludes {
		if g.Match(clean) {
			return true
		}
	}
	// Hidden files and directories are never indexed.
	for _, segment := range strings.Split(clean, "/") {
		if strings.HasPrefix(segment, ".") && segment != "." && segment != ".." {
			return true
		}
	}
	return false
}

// Scan walks the tree and returns candidate files sorted by path.
// Oversized and binary files are skipped.
func (s *Scanner) Scan() ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}

		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if s.IsExcluded(rel+"/") || s.IsExcluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if s.IsExcluded(rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if s.maxSize > 0 && info.Size() > s.maxSize {
			return nil
		}

		files = append(files, FileInfo{
			Path:    rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ReadFile reads a repo-relative file, rejecting binary content.
func (s *Scanner) ReadFile(relPath string) ([]byte, error) {
	content, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, err
	}
	if IsBinary(content) {
		return nil, fmt.Errorf("binary file: %s", relPath)
	}
	return content, nil
}

// Root returns the scanner's repository root.
func (s *Scanner) Root() string {
	return s.root
}

// IsBinary sniffs content for null bytes in the leading window.
func IsBinary(content []byte) bool {
	window := content
	if len(window) > 8000 {
		window = window[:8000]
	}
	return bytes.IndexByte(window, 0) >= 0
}
