package parser

import (
	"strings"

	"github.com/smacker/go-tree-sitter/python"
)

// newPythonAnalyzer builds the Python analyzer. Visibility follows the
// leading-underscore convention; docstrings come from the first statement
// of a body.
func newPythonAnalyzer(budget Budget) Analyzer {
	spec := languageSpec{
		name:      "python",
		separator: ".",
		grammar:   python.GetLanguage(),
		declKinds: map[string]ElementKind{
			"function_definition": KindFunction,
			"class_definition":    KindClass,
		},
		containerTypes: map[string]bool{
			"class_definition": true,
		},
		bodyTypes: map[string]bool{
			"block": true,
		},
		nameOf: identifierName,
		visibilityOf: func(_ *Node, name string, _ []byte) Visibility {
			if strings.HasPrefix(name, "_") {
				return VisibilityPrivate
			}
			return VisibilityPublic
		},
		kindOf: func(_ *Node, name string, kind ElementKind, _ []byte) ElementKind {
			if kind == KindFunction && strings.HasPrefix(name, "test_") {
				return KindTest
			}
			return kind
		},
		docOf:          pythonDocstring,
		attributesOf:   pythonDecorators,
		collectRefs:    pythonRefs,
		collectImports: pythonImports,
	}
	return newASTAnalyzer(spec, budget)
}

// pythonDocstring extracts the leading string literal of a body.
func pythonDocstring(n, _ *Node, src []byte) string {
	body := n.ChildByField("body")
	if body == nil {
		body = n.FindChildByType("block")
	}
	if body == nil || len(body.Children) == 0 {
		return ""
	}

	first := body.Children[0]
	if first.Type != "expression_statement" {
		return ""
	}
	str := first.FindChildByType("string")
	if str == nil {
		return ""
	}

	text := str.Content(src)
	text = strings.Trim(text, "\"'")
	return strings.TrimSpace(text)
}

// pythonDecorators collects decorator names above a definition. Decorated
// definitions are wrapped in decorated_definition, which visitScope treats
// as transparent; the decorators are siblings inside the wrapper, so they
// surface as preceding siblings here.
func pythonDecorators(n, prev *Node, src []byte) []string {
	var decorators []string
	if prev != nil && prev.Type == "decorator" {
		decorators = append(decorators, strings.TrimPrefix(prev.Content(src), "@"))
	}
	for _, child := range n.Children {
		if child.Type == "decorator" {
			decorators = append(decorators, strings.TrimPrefix(child.Content(src), "@"))
		}
	}
	return decorators
}

// pythonRefs collects calls, attribute access, and superclass references.
func pythonRefs(n *Node, src []byte, out *[]Reference) {
	// Superclasses from the argument list of a class definition.
	if n.Type == "class_definition" {
		if supers := n.ChildByField("superclasses"); supers != nil {
			for _, child := range supers.Children {
				switch child.Type {
				case "identifier", "attribute":
					*out = append(*out, Reference{
						Name: child.Content(src),
						Kind: RefExtends,
						Line: lineOf(child.StartRow),
					})
				}
			}
		}
	}

	n.Walk(func(c *Node) bool {
		switch c.Type {
		case "call":
			if fn := c.ChildByField("function"); fn != nil {
				*out = append(*out, Reference{
					Name: fn.Content(src),
					Kind: RefCall,
					Line: lineOf(c.StartRow),
				})
			}
		case "type":
			*out = append(*out, Reference{
				Name: c.Content(src),
				Kind: RefType,
				Line: lineOf(c.StartRow),
			})
		}
		return true
	})
	*out = dedupeRefs(*out)
}

// pythonImports extracts import and from-import statements.
func pythonImports(root *Node, src []byte) []Import {
	var imports []Import

	for _, stmt := range root.FindAllByType("import_statement") {
		for _, child := range stmt.Children {
			switch child.Type {
			case "dotted_name", "aliased_import":
				name := child
				if child.Type == "aliased_import" {
					if inner := child.ChildByField("name"); inner != nil {
						name = inner
					}
				}
				imports = append(imports, Import{
					Path: name.Content(src),
					Line: lineOf(stmt.StartRow),
				})
			}
		}
	}

	for _, stmt := range root.FindAllByType("import_from_statement") {
		module := stmt.ChildByField("module_name")
		if module == nil {
			continue
		}
		imp := Import{
			Path: module.Content(src),
			Line: lineOf(stmt.StartRow),
		}
		for _, child := range stmt.Children {
			if child == module {
				continue
			}
			switch child.Type {
			case "dotted_name", "identifier":
				imp.Names = append(imp.Names, child.Content(src))
			case "aliased_import":
				if inner := child.ChildByField("name"); inner != nil {
					imp.Names = append(imp.Names, inner.Content(src))
				}
			}
		}
		imports = append(imports, imp)
	}

	return imports
}
