// Package treesitter implements reference extraction for JavaScript and
// TypeScript sources using Tree-sitter.
package treesitter

import (
	"context"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/spetr/codectx/pkg/provider"
	"github.com/spetr/codectx/pkg/types"
)

// nodeKind is the closed set of syntax node kinds the extractor cares about.
// Everything else is traversed transparently.
type nodeKind int

const (
	kindOther nodeKind = iota
	kindImport
	kindExport
	kindVarDeclaration
	kindFuncDeclaration
	kindClassDeclaration
	kindMethodDefinition
	kindTypeDeclaration
	kindFormalParameters
	kindPairPattern
	kindIdentifier
)

// classifyNode maps a Tree-sitter node type string onto the closed kind set.
func classifyNode(nodeType string) nodeKind {
	switch nodeType {
	case "import_statement":
		return kindImport
	case "export_statement":
		return kindExport
	case "lexical_declaration", "variable_declaration":
		return kindVarDeclaration
	case "function_declaration", "generator_function_declaration":
		return kindFuncDeclaration
	case "class_declaration", "abstract_class_declaration":
		return kindClassDeclaration
	case "method_definition":
		return kindMethodDefinition
	case "interface_declaration", "type_alias_declaration", "enum_declaration":
		return kindTypeDeclaration
	case "formal_parameters":
		return kindFormalParameters
	case "pair_pattern":
		return kindPairPattern
	case "identifier", "property_identifier", "shorthand_property_identifier",
		"shorthand_property_identifier_pattern":
		return kindIdentifier
	default:
		return kindOther
	}
}

// refMode controls how identifiers encountered during a walk are classified.
type refMode int

const (
	modeUsage   refMode = iota // plain identifier occurrence
	modeDeclare                // identifier is a declaration site
	modeExport                 // identifier is an exported binding
)

// Extractor implements ReferenceExtractor for JS/JSX/TS/TSX sources.
type Extractor struct{}

// New creates a new Tree-sitter reference extractor.
func New() *Extractor {
	return &Extractor{}
}

// Name returns the extractor name.
func (e *Extractor) Name() string {
	return "treesitter"
}

// Supports reports whether the file extension maps to a known dialect.
func (e *Extractor) Supports(path string) bool {
	_, ok := dialectForPath(path)
	return ok
}

// Extract parses source and returns all identifier references. It never
// fails: parse errors log a warning and yield zero references so the file
// can still be embedded and stored.
func (e *Extractor) Extract(source []byte, path string) []*types.VariableReference {
	language, ok := dialectForPath(path)
	if !ok {
		return nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(language)
	defer parser.Close()

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		slog.Warn("parse failure, indexing without references",
			"file", path, "error", types.ErrParseFailure)
		return nil
	}
	defer tree.Close()

	// Tree-sitter recovers from syntax errors instead of failing; a tree
	// containing error nodes is treated as a parse failure so the caller
	// gets a clean all-or-nothing contract.
	if tree.RootNode().HasError() {
		slog.Warn("parse failure, indexing without references",
			"file", path, "error", types.ErrParseFailure)
		return nil
	}

	w := &walker{source: source, path: path}
	w.walk(tree.RootNode(), modeUsage)
	return w.refs
}

// walker accumulates references during an explicit AST traversal.
type walker struct {
	source []byte
	path   string
	refs   []*types.VariableReference
}

func (w *walker) walk(node *sitter.Node, mode refMode) {
	switch classifyNode(node.Type()) {
	case kindImport:
		w.handleImport(node)

	case kindExport:
		w.handleExport(node)

	case kindVarDeclaration:
		w.handleVarDeclaration(node, mode)

	case kindFuncDeclaration, kindClassDeclaration:
		w.handleNamedDeclaration(node, mode)

	case kindMethodDefinition:
		// Method name is a declaration site; parameters and body follow
		// the usual rules.
		if name := node.ChildByFieldName("name"); name != nil {
			w.emit(name, modeDeclare, "")
		}
		if params := node.ChildByFieldName("parameters"); params != nil {
			w.walkChildren(params, modeDeclare)
		}
		if body := node.ChildByFieldName("body"); body != nil {
			w.walk(body, modeUsage)
		}

	case kindTypeDeclaration:
		// Type-level declarations contribute only their name; member
		// signatures are not variable references.
		if name := node.ChildByFieldName("name"); name != nil {
			w.emit(name, declarationMode(mode), "")
		}

	case kindFormalParameters:
		w.walkChildren(node, modeDeclare)

	case kindPairPattern:
		// `const { a: b } = obj` binds b; the key a is only a property name.
		if value := node.ChildByFieldName("value"); value != nil {
			w.walk(value, mode)
		}

	case kindIdentifier:
		w.emit(node, mode, "")

	default:
		w.walkChildren(node, mode)
	}
}

func (w *walker) walkChildren(node *sitter.Node, mode refMode) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.walk(node.NamedChild(i), mode)
	}
}

// handleImport records each imported binding with its module specifier.
func (w *walker) handleImport(node *sitter.Node) {
	source := ""
	if src := node.ChildByFieldName("source"); src != nil {
		source = unquote(w.text(src))
	}

	var collect func(n *sitter.Node)
	collect = func(n *sitter.Node) {
		switch n.Type() {
		case "import_specifier":
			// `import { a as b }` binds b locally; `import { a }` binds a.
			local := n.ChildByFieldName("alias")
			if local == nil {
				local = n.ChildByFieldName("name")
			}
			if local != nil {
				w.emitTyped(local, types.RefImport, source)
			}
		case "namespace_import":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				if child := n.NamedChild(i); child.Type() == "identifier" {
					w.emitTyped(child, types.RefImport, source)
				}
			}
		case "identifier":
			// Default import: `import foo from "x"`.
			w.emitTyped(n, types.RefImport, source)
		default:
			for i := 0; i < int(n.NamedChildCount()); i++ {
				collect(n.NamedChild(i))
			}
		}
	}

	if clause := findNamedChild(node, "import_clause"); clause != nil {
		collect(clause)
	}
}

// handleExport records exported bindings and keeps walking initializers and
// bodies for usages.
func (w *walker) handleExport(node *sitter.Node) {
	// `export { a, b }` and `export { a } from "x"`.
	if clause := findNamedChild(node, "export_clause"); clause != nil {
		for i := 0; i < int(clause.NamedChildCount()); i++ {
			spec := clause.NamedChild(i)
			if spec.Type() != "export_specifier" {
				continue
			}
			if name := spec.ChildByFieldName("name"); name != nil {
				w.emitTyped(name, types.RefExport, "")
			}
		}
		return
	}

	// `export const/function/class/interface ...`: the declared names become
	// export references, everything nested follows the usual rules.
	if decl := node.ChildByFieldName("declaration"); decl != nil {
		w.walk(decl, modeExport)
		return
	}

	// `export default <expression>`.
	if value := node.ChildByFieldName("value"); value != nil {
		w.walk(value, modeUsage)
		return
	}
	w.walkChildren(node, modeUsage)
}

// handleVarDeclaration classifies declarator names and walks initializers
// for usages.
func (w *walker) handleVarDeclaration(node *sitter.Node, mode refMode) {
	declMode := declarationMode(mode)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		declarator := node.NamedChild(i)
		if declarator.Type() != "variable_declarator" {
			continue
		}
		if name := declarator.ChildByFieldName("name"); name != nil {
			// Destructuring patterns contain several bound identifiers;
			// all of them are declaration (or export) sites.
			w.walk(name, declMode)
		}
		if value := declarator.ChildByFieldName("value"); value != nil {
			w.walk(value, modeUsage)
		}
	}
}

// handleNamedDeclaration covers function and class declarations.
func (w *walker) handleNamedDeclaration(node *sitter.Node, mode refMode) {
	if name := node.ChildByFieldName("name"); name != nil {
		w.emit(name, declarationMode(mode), "")
	}
	if params := node.ChildByFieldName("parameters"); params != nil {
		w.walkChildren(params, modeDeclare)
	}
	if body := node.ChildByFieldName("body"); body != nil {
		w.walk(body, modeUsage)
	}
}

// declarationMode promotes a declaration site to an export reference when
// the declaration sits under an export statement.
func declarationMode(mode refMode) refMode {
	if mode == modeExport {
		return modeExport
	}
	return modeDeclare
}

func (w *walker) emit(node *sitter.Node, mode refMode, source string) {
	refType := types.RefUsage
	switch mode {
	case modeDeclare:
		refType = types.RefDeclaration
	case modeExport:
		refType = types.RefExport
	}
	w.emitTyped(node, refType, source)
}

func (w *walker) emitTyped(node *sitter.Node, refType types.RefType, source string) {
	name := w.text(node)
	if name == "" {
		return
	}
	w.refs = append(w.refs, &types.VariableReference{
		VariableName: name,
		FilePath:     w.path,
		LineNumber:   int(node.StartPoint().Row) + 1,
		RefType:      refType,
		SourcePath:   source,
	})
}

func (w *walker) text(node *sitter.Node) string {
	return string(w.source[node.StartByte():node.EndByte()])
}

// findNamedChild returns the first named child of the given type.
func findNamedChild(node *sitter.Node, childType string) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == childType {
			return child
		}
	}
	return nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		switch s[0] {
		case '"', '\'', '`':
			if s[len(s)-1] == s[0] {
				return s[1 : len(s)-1]
			}
		}
	}
	return s
}

// Ensure Extractor implements ReferenceExtractor interface
var _ provider.ReferenceExtractor = (*Extractor)(nil)
