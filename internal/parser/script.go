package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// newScriptAnalyzer builds an analyzer for the ECMAScript family
// (JavaScript, TypeScript, TSX). The three grammars share node type names
// for everything this extractor touches.
func newScriptAnalyzer(name string, grammar *sitter.Language, budget Budget) Analyzer {
	spec := languageSpec{
		name:      name,
		separator: ".",
		grammar:   grammar,
		declKinds: map[string]ElementKind{
			"function_declaration":           KindFunction,
			"generator_function_declaration": KindFunction,
			"method_definition":              KindFunction,
			"class_declaration":              KindClass,
			"interface_declaration":          KindTrait,
			"type_alias_declaration":         KindType,
			"enum_declaration":               KindType,
			"lexical_declaration":            KindConst,
			"variable_declaration":           KindOther,
			"abstract_class_declaration":     KindClass,
		},
		containerTypes: map[string]bool{
			"class_declaration":          true,
			"abstract_class_declaration": true,
			"interface_declaration":      true,
		},
		bodyTypes: map[string]bool{
			"class_body":  true,
			"object_type": true,
		},
		nameOf:         scriptNameOf,
		visibilityOf:   scriptVisibility,
		kindOf:         scriptKindOf,
		docOf:          scriptDoc,
		genericsOf:     scriptGenerics,
		collectRefs:    scriptRefs,
		collectImports: scriptImports,
	}
	return newASTAnalyzer(spec, budget)
}

// scriptNameOf handles declarator-based declarations (const x = ...).
func scriptNameOf(n *Node, src []byte) string {
	switch n.Type {
	case "lexical_declaration", "variable_declaration":
		if decl := n.FindChildByType("variable_declarator"); decl != nil {
			return identifierName(decl, src)
		}
		return ""
	}
	return identifierName(n, src)
}

// scriptVisibility maps accessibility modifiers and the #private prefix.
func scriptVisibility(n *Node, name string, src []byte) Visibility {
	if strings.HasPrefix(name, "#") || strings.HasPrefix(name, "_") {
		return VisibilityPrivate
	}
	for _, child := range n.Children {
		if child.Type == "accessibility_modifier" {
			switch child.Content(src) {
			case "private", "protected":
				return VisibilityPrivate
			}
		}
	}
	return VisibilityPublic
}

// scriptKindOf flags test declarations by conventional naming.
func scriptKindOf(_ *Node, name string, kind ElementKind, _ []byte) ElementKind {
	if kind == KindFunction {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "test") || strings.HasSuffix(lower, "spec") {
			return KindTest
		}
	}
	return kind
}

// scriptDoc extracts a preceding JSDoc block comment.
func scriptDoc(n, prev *Node, src []byte) string {
	if prev == nil || prev.Type != "comment" {
		return ""
	}
	if int(n.StartRow)-int(prev.EndRow) > 1 {
		return ""
	}

	text := prev.Content(src)
	if !strings.HasPrefix(text, "/**") {
		return ""
	}
	text = strings.TrimPrefix(text, "/**")
	text = strings.TrimSuffix(text, "*/")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "*")
		lines = append(lines, strings.TrimSpace(line))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// scriptGenerics extracts type parameter names.
func scriptGenerics(n *Node, src []byte) []string {
	params := n.FindChildByType("type_parameters")
	if params == nil {
		return nil
	}
	var names []string
	for _, child := range params.Children {
		if child.Type == "type_parameter" {
			names = append(names, identifierName(child, src))
		}
	}
	return names
}

// scriptRefs collects calls, constructor invocations, type references, and
// class heritage.
func scriptRefs(n *Node, src []byte, out *[]Reference) {
	for _, heritage := range n.FindAllByType("class_heritage") {
		for _, clause := range heritage.Children {
			kind := RefExtends
			if clause.Type == "implements_clause" {
				kind = RefImplements
			}
			clause.Walk(func(c *Node) bool {
				switch c.Type {
				case "identifier", "type_identifier", "member_expression":
					*out = append(*out, Reference{
						Name: c.Content(src),
						Kind: kind,
						Line: lineOf(c.StartRow),
					})
					return false
				}
				return true
			})
		}
	}
	for _, clause := range n.FindAllByType("extends_type_clause") {
		for _, c := range clause.Children {
			if c.Type == "type_identifier" {
				*out = append(*out, Reference{
					Name: c.Content(src),
					Kind: RefExtends,
					Line: lineOf(c.StartRow),
				})
			}
		}
	}

	n.Walk(func(c *Node) bool {
		switch c.Type {
		case "call_expression":
			if fn := c.ChildByField("function"); fn != nil {
				*out = append(*out, Reference{
					Name: fn.Content(src),
					Kind: RefCall,
					Line: lineOf(c.StartRow),
				})
			}
		case "new_expression":
			if ctor := c.ChildByField("constructor"); ctor != nil {
				*out = append(*out, Reference{
					Name: ctor.Content(src),
					Kind: RefCall,
					Line: lineOf(c.StartRow),
				})
			}
		case "type_identifier":
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

// scriptImports extracts ES module imports with their imported names.
func scriptImports(root *Node, src []byte) []Import {
	var imports []Import
	for _, stmt := range root.FindAllByType("import_statement") {
		source := stmt.ChildByField("source")
		if source == nil {
			source = stmt.FindChildByType("string")
		}
		if source == nil {
			continue
		}

		imp := Import{
			Path: stripQuotes(source.Content(src)),
			Line: lineOf(stmt.StartRow),
		}
		if clause := stmt.FindChildByType("import_clause"); clause != nil {
			clause.Walk(func(c *Node) bool {
				if c.Type == "identifier" {
					imp.Names = append(imp.Names, c.Content(src))
				}
				return true
			})
		}
		imports = append(imports, imp)
	}
	return imports
}
