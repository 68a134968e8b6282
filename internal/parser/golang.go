package parser

import (
	"strings"
	"unicode"

	"github.com/smacker/go-tree-sitter/golang"
)

// newGoAnalyzer builds the Go analyzer. Visibility follows the exported
// identifier convention; tests are detected by the Test/Benchmark/Fuzz
// naming convention.
func newGoAnalyzer(budget Budget) Analyzer {
	spec := languageSpec{
		name:      "go",
		separator: ".",
		grammar:   golang.GetLanguage(),
		declKinds: map[string]ElementKind{
			"function_declaration": KindFunction,
			"method_declaration":   KindFunction,
			"type_declaration":     KindType,
			"const_declaration":    KindConst,
			"var_declaration":      KindOther,
		},
		containerTypes: map[string]bool{},
		bodyTypes:      map[string]bool{},
		nameOf:         goNameOf,
		visibilityOf: func(_ *Node, name string, _ []byte) Visibility {
			return goVisibility(name)
		},
		kindOf:         goKindOf,
		docOf:          lineCommentDoc("//"),
		genericsOf:     goGenerics,
		collectRefs:    goRefs,
		collectImports: goImports,
	}
	return newASTAnalyzer(spec, budget)
}

// goNameOf handles the type_declaration wrapper around type_spec.
func goNameOf(n *Node, src []byte) string {
	if n.Type == "type_declaration" {
		if spec := n.FindChildByType("type_spec"); spec != nil {
			return identifierName(spec, src)
		}
	}
	if n.Type == "const_declaration" || n.Type == "var_declaration" {
		// First spec's first identifier names the group.
		for _, child := range n.Children {
			if child.Type == "const_spec" || child.Type == "var_spec" {
				return identifierName(child, src)
			}
		}
	}
	return identifierName(n, src)
}

// goVisibility maps the exported-identifier convention.
func goVisibility(name string) Visibility {
	if name == "" {
		return VisibilityPrivate
	}
	for _, r := range name {
		if unicode.IsUpper(r) {
			return VisibilityPublic
		}
		return VisibilityPrivate
	}
	return VisibilityPrivate
}

// goKindOf refines type declarations into struct/trait and functions into
// tests.
func goKindOf(n *Node, name string, kind ElementKind, _ []byte) ElementKind {
	switch n.Type {
	case "type_declaration":
		if spec := n.FindChildByType("type_spec"); spec != nil {
			if spec.FindChildByType("struct_type") != nil {
				return KindStruct
			}
			if spec.FindChildByType("interface_type") != nil {
				return KindTrait
			}
		}
		return KindType
	case "function_declaration":
		if strings.HasPrefix(name, "Test") || strings.HasPrefix(name, "Benchmark") ||
			strings.HasPrefix(name, "Fuzz") {
			return KindTest
		}
	}
	return kind
}

// goGenerics extracts type parameter names.
func goGenerics(n *Node, src []byte) []string {
	params := n.ChildByField("type_parameters")
	if params == nil {
		params = n.FindChildByType("type_parameter_list")
	}
	if params == nil {
		return nil
	}

	var names []string
	params.Walk(func(c *Node) bool {
		if c.Type == "type_identifier" || c.Type == "identifier" {
			names = append(names, c.Content(src))
			return false
		}
		return true
	})
	return names
}

// goRefs collects call sites, type references, and embedded supertypes.
func goRefs(n *Node, src []byte, out *[]Reference) {
	n.Walk(func(c *Node) bool {
		switch c.Type {
		case "call_expression":
			if fn := c.ChildByField("function"); fn != nil {
				name := fn.Content(src)
				if name != "" {
					*out = append(*out, Reference{
						Name: name,
						Kind: RefCall,
						Line: lineOf(c.StartRow),
					})
				}
			}
		case "type_identifier", "qualified_type":
			name := c.Content(src)
			if name != "" {
				*out = append(*out, Reference{
					Name: name,
					Kind: RefType,
					Line: lineOf(c.StartRow),
				})
			}
		case "struct_type":
			// Embedded fields act as extends edges.
			for _, field := range c.FindAllByType("field_declaration") {
				if field.ChildByField("name") == nil {
					if t := field.ChildByField("type"); t != nil {
						*out = append(*out, Reference{
							Name: strings.TrimPrefix(t.Content(src), "*"),
							Kind: RefExtends,
							Line: lineOf(field.StartRow),
						})
					}
				}
			}
		}
		return true
	})
	*out = dedupeRefs(*out)
}

// goImports extracts import specs, including named and grouped forms.
func goImports(root *Node, src []byte) []Import {
	var imports []Import
	for _, decl := range root.FindAllByType("import_spec") {
		path := decl.ChildByField("path")
		if path == nil {
			path = decl.FindChildByType("interpreted_string_literal")
		}
		if path == nil {
			continue
		}
		imports = append(imports, Import{
			Path: stripQuotes(path.Content(src)),
			Line: lineOf(decl.StartRow),
		})
	}
	return imports
}

// lineCommentDoc builds a doc extractor for languages whose doc comments
// are consecutive line comments directly above the declaration.
func lineCommentDoc(marker string) func(n, prev *Node, src []byte) string {
	return func(n, prev *Node, src []byte) string {
		if prev == nil || prev.Type != "comment" && prev.Type != "line_comment" {
			return ""
		}
		// Adjacent only: the comment must end on the line above.
		if int(n.StartRow)-int(prev.EndRow) > 1 {
			return ""
		}
		text := prev.Content(src)
		var lines []string
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			line = strings.TrimPrefix(line, marker)
			lines = append(lines, strings.TrimSpace(line))
		}
		return strings.TrimSpace(strings.Join(lines, "\n"))
	}
}
