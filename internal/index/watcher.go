package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a source tree and re-indexes files as they change.
type Watcher struct {
	indexer    *Indexer
	projectDir string
	logger     *slog.Logger

	watcher *fsnotify.Watcher

	// Debouncing
	pendingMu    sync.Mutex
	pendingFiles map[string]time.Time
	debounceTime time.Duration
}

// WatcherConfig contains watcher configuration.
type WatcherConfig struct {
	ProjectDir   string
	Indexer      *Indexer
	Logger       *slog.Logger
	DebounceTime time.Duration // Default: 500ms
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounceTime := cfg.DebounceTime
	if debounceTime == 0 {
		debounceTime = 500 * time.Millisecond
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		indexer:      cfg.Indexer,
		projectDir:   cfg.ProjectDir,
		logger:       logger,
		watcher:      watcher,
		pendingFiles: make(map[string]time.Time),
		debounceTime: debounceTime,
	}, nil
}

// Watch starts watching for file changes.
// It blocks until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.addWatchDirs(); err != nil {
		return err
	}

	w.logger.Info("watching for file changes", "dir", w.projectDir)

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping watcher")
			return w.watcher.Close()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// addWatchDirs recursively adds directories to watch, skipping
// excluded and hidden directories.
func (w *Watcher) addWatchDirs() error {
	walker := w.indexer.Walker()
	return filepath.WalkDir(w.projectDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if path != w.projectDir {
				if walker.excludeDirs[d.Name()] {
					return filepath.SkipDir
				}
				if strings.HasPrefix(d.Name(), ".") && d.Name() != ".codectx" {
					return filepath.SkipDir
				}
			}
			if err := w.watcher.Add(path); err != nil {
				w.logger.Warn("failed to watch directory", "path", path, "error", err)
			}
		}
		return nil
	})
}

// handleEvent queues a relevant file event for debounced processing.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	path := event.Name
	walker := w.indexer.Walker()

	if walker.Excluded(path) {
		return
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !walker.extensions[ext] {
		return
	}

	w.pendingMu.Lock()
	w.pendingFiles[path] = time.Now()
	w.pendingMu.Unlock()

	w.logger.Debug("file changed", "path", path, "op", event.Op.String())
}

// processDebounced processes pending files after the debounce period.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPendingFiles(ctx)
		}
	}
}

// processPendingFiles processes files that have been stable for the
// debounce period.
func (w *Watcher) processPendingFiles(ctx context.Context) {
	w.pendingMu.Lock()
	now := time.Now()
	var toProcess []string
	for path, changedAt := range w.pendingFiles {
		if now.Sub(changedAt) >= w.debounceTime {
			toProcess = append(toProcess, path)
			delete(w.pendingFiles, path)
		}
	}
	w.pendingMu.Unlock()

	if len(toProcess) == 0 {
		return
	}

	w.reindexFiles(ctx, toProcess)
}

// reindexFiles re-indexes the given files, removing entries for files
// that no longer exist.
func (w *Watcher) reindexFiles(ctx context.Context, paths []string) {
	w.logger.Info("re-indexing changed files", "count", len(paths))

	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}

		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			if err := w.indexer.Remove(ctx, path); err != nil {
				w.logger.Warn("failed to remove deleted file", "file", path, "error", err)
			} else {
				w.logger.Info("removed deleted file from index", "file", path)
			}
			continue
		}
		if err != nil {
			w.logger.Warn("failed to stat file", "file", path, "error", err)
			continue
		}
		if info.IsDir() {
			continue
		}

		if err := w.indexer.IndexFile(ctx, path); err != nil {
			w.logger.Warn("failed to index file", "file", path, "error", err)
		}
	}
}

// Close closes the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
