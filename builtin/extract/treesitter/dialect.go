package treesitter

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	tstype "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// dialectForPath selects a grammar from the file extension. The javascript
// grammar covers JSX; .tsx needs the dedicated tsx grammar because TS type
// assertions are ambiguous with JSX elements.
func dialectForPath(path string) (*sitter.Language, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs", ".cjs", ".jsx":
		return javascript.GetLanguage(), true
	case ".ts", ".mts", ".cts":
		return tstype.GetLanguage(), true
	case ".tsx":
		return tsx.GetLanguage(), true
	default:
		return nil, false
	}
}
