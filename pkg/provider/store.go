package provider

import (
	"context"

	"github.com/spetr/codectx/pkg/types"
)

// ContextStore persists documents and their variable references.
// Implementations are safe for one logical indexing/search session at a time;
// concurrent writers racing on the same path are out of scope.
type ContextStore interface {
	// Name returns the store name (e.g., "sqlitevec").
	Name() string

	// Init opens (creating if absent) the store at the given path and
	// creates the schema. Schema creation is idempotent.
	Init(path string) error

	// Upsert atomically replaces the document at doc.Path together with all
	// its references. Within one transaction: existing references and the
	// existing document row are deleted, then the new document and references
	// are inserted. On any failure the transaction rolls back and the store
	// is left exactly as it was before the call.
	Upsert(ctx context.Context, doc *types.Document, refs []*types.VariableReference) error

	// Get returns the document at path with its references, or
	// types.ErrNotFound.
	Get(ctx context.Context, path string) (*types.DocumentRefs, error)

	// All returns every stored document with its references.
	All(ctx context.Context) ([]*types.DocumentRefs, error)

	// Delete removes the document at path and all its references.
	Delete(ctx context.Context, path string) error

	// GetHash returns the stored content hash for path, or "" if the path
	// is not indexed. Used for incremental indexing.
	GetHash(ctx context.Context, path string) (string, error)

	// Stats returns store statistics.
	Stats(ctx context.Context) (*types.StoreStats, error)

	// Close releases the store handle.
	Close() error
}
