package provider

import (
	"github.com/spetr/codectx/pkg/types"
)

// ReferenceExtractor parses source text into identifier references.
type ReferenceExtractor interface {
	// Name returns the extractor name (e.g., "treesitter").
	Name() string

	// Supports reports whether the extractor handles the file at path,
	// judged by extension.
	Supports(path string) bool

	// Extract parses source into references. It never fails: unparsable
	// input logs a warning and yields zero references, so the file can
	// still be embedded and stored.
	Extract(source []byte, path string) []*types.VariableReference
}
