package sqlitevec

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spetr/codectx/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store := New()
	dbPath := filepath.Join(t.TempDir(), "index.db")
	if err := store.Init(dbPath); err != nil {
		t.Skipf("sqlite-vec not available: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func testDoc(path string, embedding []float32) *types.Document {
	doc := &types.Document{
		Path:        path,
		Content:     "const x = 1\n",
		Embedding:   embedding,
		LastUpdated: time.Now().UTC(),
	}
	doc.Hash = doc.ComputeHash()
	return doc
}

func TestUpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := testDoc("src/app.js", []float32{0.1, 0.2, 0.3})
	refs := []*types.VariableReference{
		{VariableName: "React", FilePath: doc.Path, LineNumber: 1, RefType: types.RefImport, SourcePath: "react"},
		{VariableName: "App", FilePath: doc.Path, LineNumber: 3, RefType: types.RefDeclaration},
		{VariableName: "App", FilePath: doc.Path, LineNumber: 10, RefType: types.RefExport},
	}

	if err := store.Upsert(ctx, doc, refs); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.Get(ctx, doc.Path)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Document.Content != doc.Content {
		t.Errorf("content = %q, want %q", got.Document.Content, doc.Content)
	}
	if got.Document.Hash != doc.Hash {
		t.Errorf("hash = %q, want %q", got.Document.Hash, doc.Hash)
	}
	if len(got.Document.Embedding) != 3 {
		t.Errorf("embedding length = %d, want 3", len(got.Document.Embedding))
	}
	if len(got.References) != 3 {
		t.Fatalf("references = %d, want 3", len(got.References))
	}

	var importRef *types.VariableReference
	for _, r := range got.References {
		if r.RefType == types.RefImport {
			importRef = r
		}
	}
	if importRef == nil {
		t.Fatal("import reference not found")
	}
	if importRef.VariableName != "React" || importRef.SourcePath != "react" {
		t.Errorf("import ref = %s from %q, want React from \"react\"", importRef.VariableName, importRef.SourcePath)
	}
}

func TestUpsertReplacesPrevious(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := testDoc("src/util.js", []float32{1, 0, 0})
	oldRefs := []*types.VariableReference{
		{VariableName: "oldName", FilePath: doc.Path, LineNumber: 1, RefType: types.RefDeclaration},
		{VariableName: "oldName", FilePath: doc.Path, LineNumber: 2, RefType: types.RefUsage},
	}
	if err := store.Upsert(ctx, doc, oldRefs); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}

	doc.Content = "const newName = 2\n"
	doc.Hash = doc.ComputeHash()
	newRefs := []*types.VariableReference{
		{VariableName: "newName", FilePath: doc.Path, LineNumber: 1, RefType: types.RefDeclaration},
	}
	if err := store.Upsert(ctx, doc, newRefs); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	got, err := store.Get(ctx, doc.Path)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.References) != 1 {
		t.Fatalf("references = %d, want 1 after replacement", len(got.References))
	}
	if got.References[0].VariableName != "newName" {
		t.Errorf("reference = %s, want newName", got.References[0].VariableName)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalDocuments != 1 {
		t.Errorf("documents = %d, want 1", stats.TotalDocuments)
	}
}

func TestDimensionMismatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := testDoc("a.js", []float32{0.1, 0.2, 0.3})
	if err := store.Upsert(ctx, first, nil); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}

	second := testDoc("b.js", []float32{0.1, 0.2, 0.3, 0.4})
	err := store.Upsert(ctx, second, nil)
	if !errors.Is(err, types.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}

	// The failed upsert must not disturb existing data.
	if _, err := store.Get(ctx, first.Path); err != nil {
		t.Errorf("first document lost after failed upsert: %v", err)
	}
	if _, err := store.Get(ctx, second.Path); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("second document err = %v, want ErrNotFound", err)
	}
}

func TestFailedFirstUpsertLeavesDimensionsUnset(t *testing.T) {
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := testDoc("a.js", []float32{0.1, 0.2, 0.3})
	if err := store.Upsert(ctx, doc, nil); err == nil {
		t.Fatal("expected error from cancelled upsert")
	}
	if dims := store.Dimensions(); dims != 0 {
		t.Fatalf("dimensions = %d, want 0 after failed first upsert", dims)
	}

	// The store is still free to adopt any dimensionality.
	other := testDoc("b.js", []float32{0.1, 0.2, 0.3, 0.4})
	if err := store.Upsert(context.Background(), other, nil); err != nil {
		t.Fatalf("Upsert after failed first attempt: %v", err)
	}
	if dims := store.Dimensions(); dims != 4 {
		t.Errorf("dimensions = %d, want 4", dims)
	}
}

func TestUpsertValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("nil document", func(t *testing.T) {
		if err := store.Upsert(ctx, nil, nil); err == nil {
			t.Error("expected error for nil document")
		}
	})

	t.Run("empty path", func(t *testing.T) {
		doc := testDoc("", []float32{1})
		if err := store.Upsert(ctx, doc, nil); err == nil {
			t.Error("expected error for empty path")
		}
	})

	t.Run("missing embedding", func(t *testing.T) {
		doc := testDoc("c.js", nil)
		if err := store.Upsert(ctx, doc, nil); err == nil {
			t.Error("expected error for missing embedding")
		}
	})
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "missing.js")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := testDoc("hash.js", []float32{1, 2})
	if err := store.Upsert(ctx, doc, nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	hash, err := store.GetHash(ctx, doc.Path)
	if err != nil {
		t.Fatalf("GetHash failed: %v", err)
	}
	if hash != doc.Hash {
		t.Errorf("hash = %q, want %q", hash, doc.Hash)
	}

	missing, err := store.GetHash(ctx, "missing.js")
	if err != nil {
		t.Fatalf("GetHash for missing path failed: %v", err)
	}
	if missing != "" {
		t.Errorf("hash = %q, want empty for unindexed path", missing)
	}
}

func TestAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	paths := []string{"one.js", "two.js", "three.js"}
	for i, path := range paths {
		doc := testDoc(path, []float32{float32(i + 1), 0})
		refs := []*types.VariableReference{
			{VariableName: "v" + path, FilePath: path, LineNumber: 1, RefType: types.RefDeclaration},
		}
		if err := store.Upsert(ctx, doc, refs); err != nil {
			t.Fatalf("Upsert %s failed: %v", path, err)
		}
	}

	docs, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("documents = %d, want 3", len(docs))
	}

	for _, dr := range docs {
		if len(dr.Document.Embedding) != 2 {
			t.Errorf("%s: embedding length = %d, want 2", dr.Document.Path, len(dr.Document.Embedding))
		}
		if len(dr.References) != 1 {
			t.Errorf("%s: references = %d, want 1", dr.Document.Path, len(dr.References))
		}
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	doc := testDoc("gone.js", []float32{1})
	refs := []*types.VariableReference{
		{VariableName: "x", FilePath: doc.Path, LineNumber: 1, RefType: types.RefDeclaration},
	}
	if err := store.Upsert(ctx, doc, refs); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := store.Delete(ctx, doc.Path); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := store.Get(ctx, doc.Path); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound after delete", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalDocuments != 0 || stats.TotalReferences != 0 {
		t.Errorf("stats = %d docs / %d refs, want 0/0", stats.TotalDocuments, stats.TotalReferences)
	}
}

func TestReopenRestoresDimensions(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")

	store := New()
	if err := store.Init(dbPath); err != nil {
		t.Skipf("sqlite-vec not available: %v", err)
	}

	ctx := context.Background()
	doc := testDoc("persist.js", []float32{0.5, 0.5, 0.5, 0.5})
	if err := store.Upsert(ctx, doc, nil); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := New()
	if err := reopened.Init(dbPath); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	if reopened.Dimensions() != 4 {
		t.Errorf("dimensions = %d, want 4 after reopen", reopened.Dimensions())
	}

	got, err := reopened.Get(ctx, doc.Path)
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if len(got.Document.Embedding) != 4 {
		t.Errorf("embedding length = %d, want 4", len(got.Document.Embedding))
	}
}

func TestFloatsRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3.75, 0}
	out := bytesToFloats(floatsToBytes(in))
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: %v != %v", i, in[i], out[i])
		}
	}
}
