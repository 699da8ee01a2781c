package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/spetr/codectx/internal/config"
	"github.com/spetr/codectx/pkg/provider"
	"github.com/spetr/codectx/pkg/types"
)

// memStore is an in-memory ContextStore for indexer tests.
type memStore struct {
	mu   sync.Mutex
	docs map[string]*types.DocumentRefs
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]*types.DocumentRefs)}
}

func (m *memStore) Name() string           { return "mem" }
func (m *memStore) Init(path string) error { return nil }
func (m *memStore) Close() error           { return nil }

func (m *memStore) Upsert(ctx context.Context, doc *types.Document, refs []*types.VariableReference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.Path] = &types.DocumentRefs{Document: doc, References: refs}
	return nil
}

func (m *memStore) Get(ctx context.Context, path string) (*types.DocumentRefs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dr, ok := m.docs[path]
	if !ok {
		return nil, types.ErrNotFound
	}
	return dr, nil
}

func (m *memStore) All(ctx context.Context) ([]*types.DocumentRefs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.DocumentRefs, 0, len(m.docs))
	for _, dr := range m.docs {
		out = append(out, dr)
	}
	return out, nil
}

func (m *memStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, path)
	return nil
}

func (m *memStore) GetHash(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dr, ok := m.docs[path]
	if !ok {
		return "", nil
	}
	return dr.Document.Hash, nil
}

func (m *memStore) Stats(ctx context.Context) (*types.StoreStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &types.StoreStats{TotalDocuments: len(m.docs)}, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// stubEmbedder returns a fixed vector, optionally failing for contents
// containing a marker string.
type stubEmbedder struct {
	failOn string

	mu    sync.Mutex
	calls int
}

func (s *stubEmbedder) Name() string    { return "stub" }
func (s *stubEmbedder) Dimensions() int { return 2 }
func (s *stubEmbedder) Close() error    { return nil }

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return nil, fmt.Errorf("%w: stub failure", types.ErrEmbeddingUnavailable)
	}
	return []float32{1, 0}, nil
}

func (s *stubEmbedder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubExtractor emits one declaration reference per file.
type stubExtractor struct{}

func (stubExtractor) Name() string              { return "stub" }
func (stubExtractor) Supports(path string) bool { return true }
func (stubExtractor) Extract(source []byte, path string) []*types.VariableReference {
	return []*types.VariableReference{
		{VariableName: "stub", FilePath: path, LineNumber: 1, RefType: types.RefDeclaration},
	}
}

var (
	_ provider.ContextStore       = (*memStore)(nil)
	_ provider.EmbeddingProvider  = (*stubEmbedder)(nil)
	_ provider.ReferenceExtractor = (stubExtractor{})
)

func testConfig(workers int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Index.Workers = workers
	return cfg
}

func newTestIndexer(store provider.ContextStore, embedder provider.EmbeddingProvider) *Indexer {
	return New(store, embedder, stubExtractor{}, testConfig(2), nil)
}

func TestRunIndexesTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.js", "const a = 1\n")
	writeFile(t, root, "sub/b.ts", "const b = 2\n")
	writeFile(t, root, "node_modules/skip.js", "skip\n")
	writeFile(t, root, "notes.txt", "skip\n")

	store := newMemStore()
	ix := newTestIndexer(store, &stubEmbedder{})

	report, err := ix.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Processed != 2 {
		t.Errorf("processed = %d, want 2", report.Processed)
	}
	if report.Failed != 0 {
		t.Errorf("failed = %d, want 0", report.Failed)
	}
	if store.count() != 2 {
		t.Errorf("stored docs = %d, want 2", store.count())
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.js", "const ok = 1\n")
	writeFile(t, root, "bad.js", "POISON\n")
	writeFile(t, root, "also.js", "const fine = 2\n")

	store := newMemStore()
	ix := newTestIndexer(store, &stubEmbedder{failOn: "POISON"})

	report, err := ix.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Processed != 2 {
		t.Errorf("processed = %d, want 2", report.Processed)
	}
	if report.Failed != 1 {
		t.Fatalf("failed = %d, want 1", report.Failed)
	}
	if !errors.Is(report.Errors[0], types.ErrEmbeddingUnavailable) {
		t.Errorf("error = %v, want ErrEmbeddingUnavailable", report.Errors[0])
	}
	if !strings.HasSuffix(report.Errors[0].Path, "bad.js") {
		t.Errorf("failed path = %s, want bad.js", report.Errors[0].Path)
	}
	if store.count() != 2 {
		t.Errorf("stored docs = %d, want 2", store.count())
	}
}

func TestRunSkipsUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "same.js", "const same = 1\n")

	store := newMemStore()
	embedder := &stubEmbedder{}
	ix := newTestIndexer(store, embedder)

	ctx := context.Background()
	if _, err := ix.Run(ctx, root); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	firstCalls := embedder.callCount()

	report, err := ix.Run(ctx, root)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if report.Skipped != 1 || report.Processed != 0 {
		t.Errorf("report = %d processed / %d skipped, want 0/1", report.Processed, report.Skipped)
	}
	if embedder.callCount() != firstCalls {
		t.Error("unchanged file was re-embedded")
	}

	// Changing the file forces a re-embed.
	writeFile(t, root, "same.js", "const same = 2\n")
	report, err = ix.Run(ctx, root)
	if err != nil {
		t.Fatalf("third Run failed: %v", err)
	}
	if report.Processed != 1 {
		t.Errorf("processed = %d, want 1 after change", report.Processed)
	}
}

func TestIndexFileMissing(t *testing.T) {
	store := newMemStore()
	ix := newTestIndexer(store, &stubEmbedder{})

	err := ix.IndexFile(context.Background(), "/does/not/exist.js")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRemove(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "gone.js", "const g = 1\n")

	store := newMemStore()
	ix := newTestIndexer(store, &stubEmbedder{})

	ctx := context.Background()
	if _, err := ix.Run(ctx, root); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if store.count() != 1 {
		t.Fatalf("stored docs = %d, want 1", store.count())
	}

	if err := ix.Remove(ctx, store.paths()[0]); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if store.count() != 0 {
		t.Errorf("stored docs = %d, want 0 after remove", store.count())
	}
}

func (m *memStore) paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.docs))
	for p := range m.docs {
		out = append(out, p)
	}
	return out
}

func TestRunCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, root, fmt.Sprintf("f%02d.js", i), "const x = 1\n")
	}

	store := newMemStore()
	ix := newTestIndexer(store, &stubEmbedder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := ix.Run(ctx, root)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if report == nil {
		t.Fatal("expected partial report on cancellation")
	}
	if report.Duration <= 0 {
		t.Errorf("duration = %v, want > 0 on cancelled run", report.Duration)
	}
}
