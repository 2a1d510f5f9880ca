package parser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/starford/ansuz/internal/models"
)

// Python extracts imports and top-level declarations with tree-sitter.
// A fresh sitter.Parser is created per call, so Python is safe for
// concurrent use.
type Python struct{}

// NewPython returns the Python parser.
func NewPython() *Python { return &Python{} }

// Summarize implements Parser.
func (p *Python) Summarize(ctx context.Context, path string, content []byte) (Summary, error) {
	sp := sitter.NewParser()
	sp.SetLanguage(python.GetLanguage())

	tree, err := sp.ParseCtx(ctx, nil, content)
	if err != nil {
		return Summary{}, fmt.Errorf("parser: tree-sitter %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return Summary{}, fmt.Errorf("parser: %s: empty syntax tree", path)
	}

	var s Summary
	if root.HasError() {
		s.ParseError = "source contains syntax errors"
	}
	w := pyWalker{src: content, path: path, out: &s}
	w.imports(root)
	w.declarations(root)
	return s, nil
}

type pyWalker struct {
	src  []byte
	path string
	out  *Summary
}

func (w *pyWalker) text(n *sitter.Node) string {
	return string(w.src[n.StartByte():n.EndByte()])
}

func line(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }

// imports visits the whole tree so that imports nested in functions,
// conditionals and try blocks are reported too.
func (w *pyWalker) imports(n *sitter.Node) {
	switch n.Type() {
	case "import_statement":
		w.importStatement(n)
		return
	case "import_from_statement":
		w.importFrom(n)
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.imports(n.NamedChild(i))
	}
}

func (w *pyWalker) add(kind models.ImportKind, module string, n *sitter.Node) {
	w.out.Imports = append(w.out.Imports, models.ImportDescriptor{
		Kind:       kind,
		Module:     module,
		SourceFile: w.path,
		Line:       line(n),
	})
}

// importStatement handles "import a.b" and "import a.b as c".
func (w *pyWalker) importStatement(n *sitter.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "dotted_name":
			w.add(models.ImportAbsolute, w.text(c), n)
		case "aliased_import":
			if name := c.ChildByFieldName("name"); name != nil {
				w.add(models.ImportAbsolute, w.text(name), n)
			}
		}
	}
}

// importFrom handles "from a.b import c" and "from ..x import y".
// Only the module part is recorded; the resolver maps it to a file. When
// the module part is bare dots, as in "from . import util", each imported
// name is also recorded as a relative module.
func (w *pyWalker) importFrom(n *sitter.Node) {
	bare := ""
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "import":
			if bare == "" {
				return
			}
			w.importedNames(n, i+1, bare)
			return
		case "relative_import":
			var prefix, name string
			for j := 0; j < int(c.ChildCount()); j++ {
				g := c.Child(j)
				switch g.Type() {
				case "import_prefix":
					prefix = strings.TrimSpace(w.text(g))
				case "dotted_name":
					name = w.text(g)
				}
			}
			if prefix == "" {
				prefix = "."
			}
			w.add(models.ImportRelative, prefix+name, n)
			if name != "" {
				return
			}
			bare = prefix
		case "dotted_name":
			w.add(models.ImportAbsolute, w.text(c), n)
			return
		}
	}
}

// importedNames records prefix+name for the names of a from-import,
// starting at child index from.
func (w *pyWalker) importedNames(n *sitter.Node, from int, prefix string) {
	for i := from; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "dotted_name":
			w.add(models.ImportRelative, prefix+w.text(c), n)
		case "aliased_import":
			if name := c.ChildByFieldName("name"); name != nil {
				w.add(models.ImportRelative, prefix+w.text(name), n)
			}
		}
	}
}

// declarations records module-level functions, classes with their methods,
// and module-level assignments.
func (w *pyWalker) declarations(root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		c := root.NamedChild(i)
		switch c.Type() {
		case "function_definition":
			w.symbol(c, "function", "")
		case "class_definition":
			w.class(c)
		case "decorated_definition":
			if def := c.ChildByFieldName("definition"); def != nil {
				switch def.Type() {
				case "function_definition":
					w.symbol(def, "function", "")
				case "class_definition":
					w.class(def)
				}
			}
		case "expression_statement":
			w.assignment(c)
		}
	}
}

func (w *pyWalker) symbol(n *sitter.Node, kind, parent string) string {
	name := n.ChildByFieldName("name")
	if name == nil {
		return ""
	}
	s := w.text(name)
	w.out.Symbols = append(w.out.Symbols, models.Symbol{
		Name:   s,
		Kind:   kind,
		Line:   line(n),
		Parent: parent,
	})
	return s
}

func (w *pyWalker) class(n *sitter.Node) {
	cls := w.symbol(n, "class", "")
	if cls == "" {
		return
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		c := body.NamedChild(i)
		switch c.Type() {
		case "function_definition":
			w.symbol(c, "method", cls)
		case "decorated_definition":
			if def := c.ChildByFieldName("definition"); def != nil && def.Type() == "function_definition" {
				w.symbol(def, "method", cls)
			}
		}
	}
}

func (w *pyWalker) assignment(stmt *sitter.Node) {
	if stmt.NamedChildCount() == 0 {
		return
	}
	a := stmt.NamedChild(0)
	if a.Type() != "assignment" {
		return
	}
	left := a.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return
	}
	w.out.Symbols = append(w.out.Symbols, models.Symbol{
		Name: w.text(left),
		Kind: "variable",
		Line: line(stmt),
	})
}
