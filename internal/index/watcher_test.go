package index

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spetr/codectx/pkg/types"
)

func newTestWatcher(t *testing.T, root string, store *memStore) *Watcher {
	t.Helper()

	w, err := NewWatcher(WatcherConfig{
		ProjectDir:   root,
		Indexer:      newTestIndexer(store, &stubEmbedder{}),
		DebounceTime: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	t.Cleanup(func() {
		w.Close()
	})
	return w
}

func (w *Watcher) pendingCount() int {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	return len(w.pendingFiles)
}

func TestWatcherReindexesChangedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.js", "const x = 1\n")
	path := filepath.Join(root, "app.js")

	store := newMemStore()
	w := newTestWatcher(t, root, store)

	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	if w.pendingCount() != 1 {
		t.Fatalf("pending = %d, want 1", w.pendingCount())
	}

	time.Sleep(5 * time.Millisecond)
	w.processPendingFiles(context.Background())

	if w.pendingCount() != 0 {
		t.Errorf("pending = %d, want 0 after processing", w.pendingCount())
	}
	if _, err := store.Get(context.Background(), path); err != nil {
		t.Errorf("changed file not indexed: %v", err)
	}
}

func TestWatcherRemovesDeletedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.js")

	store := newMemStore()
	doc := &types.Document{Path: path, Content: "const x = 1\n"}
	doc.Hash = doc.ComputeHash()
	if err := store.Upsert(context.Background(), doc, nil); err != nil {
		t.Fatal(err)
	}

	w := newTestWatcher(t, root, store)

	// The file never existed on disk, modelling a deletion that raced
	// ahead of the event.
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Remove})
	time.Sleep(5 * time.Millisecond)
	w.processPendingFiles(context.Background())

	if _, err := store.Get(context.Background(), path); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get after remove = %v, want ErrNotFound", err)
	}
	if store.count() != 0 {
		t.Errorf("documents = %d, want 0", store.count())
	}
}

func TestWatcherFiltersEvents(t *testing.T) {
	root := t.TempDir()
	store := newMemStore()
	w := newTestWatcher(t, root, store)

	cases := []struct {
		name  string
		event fsnotify.Event
	}{
		{"unsupported extension", fsnotify.Event{Name: filepath.Join(root, "main.go"), Op: fsnotify.Write}},
		{"excluded directory", fsnotify.Event{Name: filepath.Join(root, "node_modules", "m", "i.js"), Op: fsnotify.Write}},
		{"chmod only", fsnotify.Event{Name: filepath.Join(root, "app.js"), Op: fsnotify.Chmod}},
	}
	for _, tc := range cases {
		w.handleEvent(tc.event)
		if w.pendingCount() != 0 {
			t.Errorf("%s: event was queued", tc.name)
		}
	}
}

func TestWatcherDebounceHoldsRecentChanges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.js", "const x = 1\n")
	path := filepath.Join(root, "app.js")

	store := newMemStore()
	w := newTestWatcher(t, root, store)
	w.debounceTime = time.Minute

	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.processPendingFiles(context.Background())

	if w.pendingCount() != 1 {
		t.Errorf("pending = %d, want 1 while inside debounce window", w.pendingCount())
	}
	if store.count() != 0 {
		t.Errorf("documents = %d, want 0 while inside debounce window", store.count())
	}
}
