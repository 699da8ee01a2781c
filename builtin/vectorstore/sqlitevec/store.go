// Package sqlitevec implements ContextStore using SQLite with the sqlite-vec
// extension for native fixed-size vector columns.
package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/spetr/codectx/pkg/provider"
	"github.com/spetr/codectx/pkg/types"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// Ensure sqlite-vec Auto() is called exactly once before any db connection
	vecAutoOnce sync.Once
)

// SchemaVersion is incremented when schema changes require reindexing.
const SchemaVersion = 1

// Store implements the ContextStore interface using sqlite-vec.
type Store struct {
	db         *sql.DB
	path       string
	dimensions int
}

// New creates a new sqlite-vec store.
func New() *Store {
	return &Store{}
}

// Name returns the store name.
func (s *Store) Name() string {
	return "sqlitevec"
}

// Init opens the store at the given path, creating it and its schema if
// absent. Schema creation is idempotent.
func (s *Store) Init(path string) error {
	s.path = path

	// Register sqlite-vec extension before opening any database connection.
	// This must be called once before sql.Open() to ensure vec_* functions are available.
	vecAutoOnce.Do(func() {
		sqlite_vec.Auto()
	})

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %v", types.ErrStoreUnavailable, err)
	}

	// WAL mode for concurrent reads, busy_timeout to wait for locks instead of failing immediately
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("%w: failed to open database: %v", types.ErrStoreUnavailable, err)
	}
	s.db = db

	if _, err := db.Exec("SELECT vec_version()"); err != nil {
		return fmt.Errorf("%w: sqlite-vec extension not available: %v", types.ErrStoreUnavailable, err)
	}

	if err := s.createSchema(); err != nil {
		return fmt.Errorf("%w: failed to create schema: %v", types.ErrStoreUnavailable, err)
	}

	// Restore established dimensionality from a previous session, if any.
	if dims, err := s.getMetaInt("dimensions"); err == nil && dims > 0 {
		if err := s.createVectorTable(dims); err != nil {
			return fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err)
		}
	}

	return nil
}

// createSchema creates all necessary tables and indices.
func (s *Store) createSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			path TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			hash TEXT NOT NULL,
			last_updated DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS variable_refs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			variable_name TEXT NOT NULL,
			file_path TEXT NOT NULL,
			line_number INTEGER NOT NULL,
			ref_type TEXT NOT NULL,
			source_path TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_refs_variable_name ON variable_refs(variable_name)`,
		`CREATE INDEX IF NOT EXISTS idx_refs_file_path ON variable_refs(file_path)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// createVectorTable creates the vector table for a dimensionality already
// recorded in metadata by a previous session.
func (s *Store) createVectorTable(dimensions int) error {
	_, err := s.db.Exec(fmt.Sprintf(vectorTableDDL, dimensions))
	if err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}
	s.dimensions = dimensions
	return nil
}

const vectorTableDDL = `
	CREATE VIRTUAL TABLE IF NOT EXISTS document_embeddings USING vec0(
		path TEXT PRIMARY KEY,
		embedding float[%d]
	)
`

// establishDimensions creates the vector table and records the store's
// dimensionality inside the current transaction, so a first upsert that
// fails before commit leaves the store dimensionless.
func (s *Store) establishDimensions(ctx context.Context, tx *sql.Tx, dimensions int) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(vectorTableDDL, dimensions)); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)
	`, "dimensions", strconv.Itoa(dimensions))
	return err
}

// Close releases resources and closes connections.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Dimensions returns the established embedding dimensionality, 0 if no
// document has been stored yet.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// Upsert atomically replaces the document at doc.Path and all of its
// references. Delete-then-insert within one transaction: a rollback restores
// the pre-call state rather than leaving a gap.
func (s *Store) Upsert(ctx context.Context, doc *types.Document, refs []*types.VariableReference) error {
	if doc == nil || doc.Path == "" {
		return fmt.Errorf("%w: document path is required", types.ErrStoreTransaction)
	}
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("%w: document embedding is required", types.ErrStoreTransaction)
	}

	// Dimensionality is established by the first committed document and
	// enforced for every later one.
	dims := len(doc.Embedding)
	if s.dimensions != 0 && dims != s.dimensions {
		return fmt.Errorf("%w: store has %d dimensions, got %d", types.ErrDimensionMismatch, s.dimensions, dims)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreTransaction, err)
	}
	defer tx.Rollback()

	if s.dimensions == 0 {
		if err := s.establishDimensions(ctx, tx, dims); err != nil {
			return fmt.Errorf("%w: %v", types.ErrStoreTransaction, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM variable_refs WHERE file_path = ?", doc.Path); err != nil {
		return fmt.Errorf("%w: delete refs: %v", types.ErrStoreTransaction, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM document_embeddings WHERE path = ?", doc.Path); err != nil {
		return fmt.Errorf("%w: delete embedding: %v", types.ErrStoreTransaction, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE path = ?", doc.Path); err != nil {
		return fmt.Errorf("%w: delete document: %v", types.ErrStoreTransaction, err)
	}

	hash := doc.Hash
	if hash == "" {
		hash = doc.ComputeHash()
	}
	updated := doc.LastUpdated
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (path, content, hash, last_updated)
		VALUES (?, ?, ?, ?)
	`, doc.Path, doc.Content, hash, updated); err != nil {
		return fmt.Errorf("%w: insert document: %v", types.ErrStoreTransaction, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO document_embeddings (path, embedding) VALUES (?, ?)
	`, doc.Path, floatsToBytes(doc.Embedding)); err != nil {
		return fmt.Errorf("%w: insert embedding: %v", types.ErrStoreTransaction, err)
	}

	if len(refs) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO variable_refs (variable_name, file_path, line_number, ref_type, source_path)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrStoreTransaction, err)
		}
		defer stmt.Close()

		for _, ref := range refs {
			var source sql.NullString
			if ref.SourcePath != "" {
				source = sql.NullString{String: ref.SourcePath, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx,
				ref.VariableName, doc.Path, ref.LineNumber, string(ref.RefType), source,
			); err != nil {
				return fmt.Errorf("%w: insert reference %s: %v", types.ErrStoreTransaction, ref.VariableName, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreTransaction, err)
	}
	s.dimensions = dims
	return nil
}

// Get returns the document at path with its references.
func (s *Store) Get(ctx context.Context, path string) (*types.DocumentRefs, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT path, content, hash, last_updated FROM documents WHERE path = ?
	`, path)

	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if doc.Embedding, err = s.loadEmbedding(ctx, path); err != nil {
		return nil, err
	}

	refs, err := s.loadRefs(ctx, path)
	if err != nil {
		return nil, err
	}

	return &types.DocumentRefs{Document: doc, References: refs}, nil
}

// All returns every stored document with its references, grouped by path.
func (s *Store) All(ctx context.Context) ([]*types.DocumentRefs, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, content, hash, last_updated FROM documents ORDER BY path
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*types.DocumentRefs
	byPath := make(map[string]*types.DocumentRefs)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		dr := &types.DocumentRefs{Document: doc}
		docs = append(docs, dr)
		byPath[doc.Path] = dr
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.attachEmbeddings(ctx, byPath); err != nil {
		return nil, err
	}

	refRows, err := s.db.QueryContext(ctx, `
		SELECT variable_name, file_path, line_number, ref_type, source_path
		FROM variable_refs ORDER BY file_path, line_number
	`)
	if err != nil {
		return nil, err
	}
	defer refRows.Close()

	for refRows.Next() {
		ref, err := scanRef(refRows)
		if err != nil {
			return nil, err
		}
		if dr, ok := byPath[ref.FilePath]; ok {
			dr.References = append(dr.References, ref)
		}
	}
	return docs, refRows.Err()
}

// Delete removes the document at path together with its embedding and
// references.
func (s *Store) Delete(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreTransaction, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM variable_refs WHERE file_path = ?", path); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreTransaction, err)
	}
	if s.dimensions > 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM document_embeddings WHERE path = ?", path); err != nil {
			return fmt.Errorf("%w: %v", types.ErrStoreTransaction, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE path = ?", path); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreTransaction, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStoreTransaction, err)
	}
	return nil
}

// GetHash returns the stored content hash for path, "" if not indexed.
func (s *Store) GetHash(ctx context.Context, path string) (string, error) {
	row := s.db.QueryRowContext(ctx, "SELECT hash FROM documents WHERE path = ?", path)

	var hash string
	err := row.Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// Stats returns store statistics.
func (s *Store) Stats(ctx context.Context) (*types.StoreStats, error) {
	stats := &types.StoreStats{Dimensions: s.dimensions}

	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents")
	if err := row.Scan(&stats.TotalDocuments); err != nil {
		return nil, err
	}

	row = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM variable_refs")
	if err := row.Scan(&stats.TotalReferences); err != nil {
		return nil, err
	}

	row = s.db.QueryRowContext(ctx, "SELECT last_updated FROM documents ORDER BY last_updated DESC LIMIT 1")
	var last time.Time
	if err := row.Scan(&last); err == nil {
		stats.LastUpdated = last
	}

	if info, err := os.Stat(s.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}

	return stats, nil
}

// loadRefs reads all references belonging to one file.
func (s *Store) loadRefs(ctx context.Context, path string) ([]*types.VariableReference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT variable_name, file_path, line_number, ref_type, source_path
		FROM variable_refs WHERE file_path = ? ORDER BY line_number
	`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []*types.VariableReference
	for rows.Next() {
		ref, err := scanRef(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// loadEmbedding reads one embedding vector back from the vec0 table.
func (s *Store) loadEmbedding(ctx context.Context, path string) ([]float32, error) {
	if s.dimensions == 0 {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, "SELECT embedding FROM document_embeddings WHERE path = ?", path)

	var blob []byte
	err := row.Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return bytesToFloats(blob), nil
}

// attachEmbeddings fills in Document.Embedding for every entry in byPath.
func (s *Store) attachEmbeddings(ctx context.Context, byPath map[string]*types.DocumentRefs) error {
	if s.dimensions == 0 || len(byPath) == 0 {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, "SELECT path, embedding FROM document_embeddings")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var path string
		var blob []byte
		if err := rows.Scan(&path, &blob); err != nil {
			return err
		}
		if dr, ok := byPath[path]; ok {
			dr.Document.Embedding = bytesToFloats(blob)
		}
	}
	return rows.Err()
}

func (s *Store) getMetaInt(key string) (int, error) {
	row := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key)

	var value string
	if err := row.Scan(&value); err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*types.Document, error) {
	var doc types.Document
	if err := row.Scan(&doc.Path, &doc.Content, &doc.Hash, &doc.LastUpdated); err != nil {
		return nil, err
	}
	return &doc, nil
}

func scanRef(row scanner) (*types.VariableReference, error) {
	var ref types.VariableReference
	var refType string
	var source sql.NullString
	if err := row.Scan(&ref.VariableName, &ref.FilePath, &ref.LineNumber, &refType, &source); err != nil {
		return nil, err
	}
	ref.RefType = types.RefType(refType)
	ref.SourcePath = source.String
	return &ref, nil
}

// Helper functions

// floatsToBytes converts a float32 slice to bytes for sqlite-vec.
func floatsToBytes(floats []float32) []byte {
	bytes := make([]byte, len(floats)*4)
	for i, f := range floats {
		bits := math.Float32bits(f)
		bytes[i*4] = byte(bits)
		bytes[i*4+1] = byte(bits >> 8)
		bytes[i*4+2] = byte(bits >> 16)
		bytes[i*4+3] = byte(bits >> 24)
	}
	return bytes
}

// bytesToFloats is the inverse of floatsToBytes.
func bytesToFloats(b []byte) []float32 {
	floats := make([]float32, len(b)/4)
	for i := range floats {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		floats[i] = math.Float32frombits(bits)
	}
	return floats
}

// Ensure Store implements ContextStore interface
var _ provider.ContextStore = (*Store)(nil)
