package parser

import (
	"context"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// languageSpec declares how one grammar maps onto the uniform element model.
// The generic astAnalyzer drives extraction from these tables so each
// language only supplies node-type names and small hooks.
type languageSpec struct {
	name      string
	separator string
	grammar   *sitter.Language

	// declKinds maps declaration node types to element kinds.
	declKinds map[string]ElementKind

	// containerTypes are declaration node types whose members are visited
	// with the container pushed onto the scope path.
	containerTypes map[string]bool

	// bodyTypes are the node types holding a container's members.
	bodyTypes map[string]bool

	// nameOf extracts a declaration's name.
	nameOf func(n *Node, src []byte) string

	// visibilityOf determines a declaration's visibility.
	visibilityOf func(n *Node, name string, src []byte) Visibility

	// docOf extracts the doc comment attached to a declaration.
	// prev is the preceding sibling, nil at the start of a scope.
	docOf func(n, prev *Node, src []byte) string

	// kindOf optionally refines the mapped kind (e.g. Go type_spec into
	// struct vs trait, test functions).
	kindOf func(n *Node, name string, kind ElementKind, src []byte) ElementKind

	// genericsOf extracts generic parameter names, optional.
	genericsOf func(n *Node, src []byte) []string

	// attributesOf extracts decorators/attributes, optional.
	attributesOf func(n, prev *Node, src []byte) []string

	// collectRefs appends the references found inside a declaration.
	collectRefs func(n *Node, src []byte, out *[]Reference)

	// collectImports extracts the file's imports from the root.
	collectImports func(root *Node, src []byte) []Import
}

// astAnalyzer is the generic tree-sitter-backed Analyzer.
type astAnalyzer struct {
	spec   languageSpec
	parser *tsParser
}

func newASTAnalyzer(spec languageSpec, budget Budget) *astAnalyzer {
	return &astAnalyzer{
		spec: spec,
		parser: &tsParser{
			language: spec.grammar,
			name:     spec.name,
			budget:   budget,
		},
	}
}

// Separator returns the language's FQN separator.
func (a *astAnalyzer) Separator() string {
	return a.spec.separator
}

// ExtractElements walks the AST and returns declarations in source order.
func (a *astAnalyzer) ExtractElements(ctx context.Context, source []byte) ([]Element, error) {
	tree, err := a.parser.parse(ctx, source)
	if err != nil {
		return nil, err
	}

	var elements []Element
	a.visitScope(tree.Root, source, nil, &elements)

	sort.SliceStable(elements, func(i, j int) bool {
		if elements[i].StartLine != elements[j].StartLine {
			return elements[i].StartLine < elements[j].StartLine
		}
		return elements[i].EndLine > elements[j].EndLine
	})
	return elements, nil
}

// ExtractImports parses the file and returns its import declarations.
func (a *astAnalyzer) ExtractImports(ctx context.Context, source []byte) ([]Import, error) {
	tree, err := a.parser.parse(ctx, source)
	if err != nil {
		return nil, err
	}
	if a.spec.collectImports == nil {
		return nil, nil
	}
	return a.spec.collectImports(tree.Root, source), nil
}

// visitScope extracts declarations among the children of node, recursing
// into container bodies with the container name pushed onto scope.
func (a *astAnalyzer) visitScope(node *Node, src []byte, scope []string, out *[]Element) {
	var prev *Node
	for _, child := range node.Children {
		// Fold a run of adjacent // comments into one node so doc
		// extractors see the whole block, not only its last line.
		if prev != nil && prev.Type == child.Type &&
			(child.Type == "comment" || child.Type == "line_comment") &&
			int(child.StartRow)-int(prev.EndRow) <= 1 &&
			strings.HasPrefix(prev.Content(src), "//") && strings.HasPrefix(child.Content(src), "//") {
			merged := *child
			merged.StartByte, merged.StartRow = prev.StartByte, prev.StartRow
			prev = &merged
			continue
		}
		if kind, ok := a.spec.declKinds[child.Type]; ok {
			a.emit(child, prev, src, scope, kind, out)
		} else if a.spec.bodyTypes[child.Type] || isTransparent(child.Type) {
			// Unwrap transparent wrappers (export statements, decorated
			// definitions) without extending the scope path.
			a.visitScope(child, src, scope, out)
		}
		prev = child
	}
}

// isTransparent reports wrapper nodes whose children should be scanned as
// if they were direct members of the enclosing scope.
func isTransparent(nodeType string) bool {
	switch nodeType {
	case "export_statement", "decorated_definition", "declaration_list",
		"ambient_declaration", "module", "program", "source_file", "block":
		return true
	default:
		return false
	}
}

// emit converts one declaration node into an Element and recurses into its
// body for nested declarations.
func (a *astAnalyzer) emit(n, prev *Node, src []byte, scope []string, kind ElementKind, out *[]Element) {
	name := ""
	if a.spec.nameOf != nil {
		name = a.spec.nameOf(n, src)
	}

	if a.spec.kindOf != nil {
		kind = a.spec.kindOf(n, name, kind, src)
	}

	visibility := VisibilityPrivate
	if a.spec.visibilityOf != nil {
		visibility = a.spec.visibilityOf(n, name, src)
	}

	elem := Element{
		Kind:       kind,
		Visibility: visibility,
		Name:       name,
		ScopePath:  append([]string(nil), scope...),
		StartLine:  lineOf(n.StartRow),
		EndLine:    lineOf(n.EndRow),
		Content:    n.Content(src),
	}

	if a.spec.docOf != nil {
		elem.DocComment = a.spec.docOf(n, prev, src)
	}
	if a.spec.genericsOf != nil {
		elem.Generics = a.spec.genericsOf(n, src)
	}
	if a.spec.attributesOf != nil {
		elem.Attributes = a.spec.attributesOf(n, prev, src)
	}
	if a.spec.collectRefs != nil {
		a.spec.collectRefs(n, src, &elem.References)
	}

	*out = append(*out, elem)

	// Containers contribute their members as nested elements.
	if a.spec.containerTypes[n.Type] {
		childScope := scope
		if name != "" {
			childScope = append(append([]string(nil), scope...), name)
		}
		for _, child := range n.Children {
			if a.spec.bodyTypes[child.Type] {
				a.visitScope(child, src, childScope, out)
			}
		}
	}
}

// identifierName returns the content of the name-field child, trying the
// common field first and falling back to the first identifier-ish child.
func identifierName(n *Node, src []byte) string {
	if name := n.ChildByField("name"); name != nil {
		return name.Content(src)
	}
	for _, child := range n.Children {
		switch child.Type {
		case "identifier", "type_identifier", "field_identifier",
			"property_identifier":
			return child.Content(src)
		}
	}
	return ""
}

// dedupeRefs removes duplicate (name, kind) pairs, keeping first occurrence.
func dedupeRefs(refs []Reference) []Reference {
	seen := make(map[string]bool, len(refs))
	result := refs[:0]
	for _, r := range refs {
		key := string(r.Kind) + "\x00" + r.Name
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, r)
	}
	return result
}

// stripQuotes removes surrounding string quotes from an import path.
func stripQuotes(s string) string {
	return strings.Trim(s, "\"'`")
}
