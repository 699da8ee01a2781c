package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Walker collects indexable files from a source tree. Excluded
// directories are pruned without descending into them.
type Walker struct {
	extensions  map[string]bool
	excludeDirs map[string]bool
	maxFileSize int64
}

// NewWalker creates a walker for the given extension and exclusion lists.
func NewWalker(extensions, excludeDirs []string, maxFileSize int64) *Walker {
	extSet := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		extSet[strings.ToLower(ext)] = true
	}
	dirSet := make(map[string]bool, len(excludeDirs))
	for _, dir := range excludeDirs {
		dirSet[dir] = true
	}
	return &Walker{
		extensions:  extSet,
		excludeDirs: dirSet,
		maxFileSize: maxFileSize,
	}
}

// Walk returns the paths of all indexable files under root. Traversal
// uses an explicit stack so deeply nested trees cannot overflow.
func (w *Walker) Walk(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		if w.Indexable(root, info.Size()) {
			return []string{root}, nil
		}
		return nil, nil
	}

	var files []string
	stack := []string{root}

	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			// Unreadable directories are skipped, not fatal.
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			full := filepath.Join(dir, name)

			if entry.IsDir() {
				if w.excludeDirs[name] {
					continue
				}
				stack = append(stack, full)
				continue
			}

			fi, err := entry.Info()
			if err != nil {
				continue
			}
			if w.Indexable(full, fi.Size()) {
				files = append(files, full)
			}
		}
	}

	return files, nil
}

// Indexable reports whether a file should be indexed based on its
// extension and size.
func (w *Walker) Indexable(path string, size int64) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !w.extensions[ext] {
		return false
	}
	if w.maxFileSize > 0 && size > w.maxFileSize {
		return false
	}
	return true
}

// Excluded reports whether any path component is an excluded directory.
// Used by the watcher to filter events arriving for pruned subtrees.
func (w *Walker) Excluded(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if w.excludeDirs[part] {
			return true
		}
	}
	return false
}
