// Package types contains shared data types used across the codectx project.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Document represents one indexed source file with its embedding.
type Document struct {
	Path        string    // Unique identifier: repo-relative or absolute file path
	Content     string    // Full file text at last index time
	Embedding   []float32 // Fixed-dimensionality semantic vector
	Hash        string    // SHA256 of content, for incremental indexing
	LastUpdated time.Time // Timestamp of last write
}

// ComputeHash calculates the SHA256 hash of the document content.
func (d *Document) ComputeHash() string {
	h := sha256.Sum256([]byte(d.Content))
	return hex.EncodeToString(h[:])
}

// RefType classifies an identifier reference.
type RefType string

const (
	RefDeclaration RefType = "declaration"
	RefImport      RefType = "import"
	RefExport      RefType = "export"
	RefUsage       RefType = "usage"
)

// VariableReference is one identifier occurrence in a source file.
// References are owned by their Document and replaced with it as a unit.
type VariableReference struct {
	VariableName string  // Identifier text
	FilePath     string  // Foreign key into Document.Path
	LineNumber   int     // 1-based source line
	RefType      RefType // declaration, import, export, usage
	SourcePath   string  // Module specifier for imports, empty otherwise
}

// DocumentRefs pairs a stored document with all of its references.
type DocumentRefs struct {
	Document   *Document
	References []*VariableReference
}

// RefOccurrence is one aggregated reference site surfaced in search results.
type RefOccurrence struct {
	Line   int     `json:"line"`
	Type   RefType `json:"type"`
	Source string  `json:"source,omitempty"`
}

// SearchResult is one ranked document returned by the retriever.
type SearchResult struct {
	Document   *Document                  `json:"-"`
	Path       string                     `json:"path"`
	Score      float32                    `json:"score"`
	References map[string][]RefOccurrence `json:"references,omitempty"`
}

// StoreStats contains statistics about the context store.
type StoreStats struct {
	TotalDocuments  int
	TotalReferences int
	Dimensions      int
	LastUpdated     time.Time
	DBSizeBytes     int64
}
