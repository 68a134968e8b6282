package parser

import (
	"strings"

	"github.com/smacker/go-tree-sitter/rust"
)

// newRustAnalyzer builds the Rust analyzer. Visibility maps pub/pub(crate)
// keywords; doc comments are /// line comments; attributes come from
// #[...] items.
func newRustAnalyzer(budget Budget) Analyzer {
	spec := languageSpec{
		name:      "rust",
		separator: "::",
		grammar:   rust.GetLanguage(),
		declKinds: map[string]ElementKind{
			"function_item":    KindFunction,
			"struct_item":      KindStruct,
			"enum_item":        KindType,
			"trait_item":       KindTrait,
			"impl_item":        KindImpl,
			"const_item":       KindConst,
			"static_item":      KindConst,
			"type_item":        KindType,
			"mod_item":         KindModule,
			"macro_definition": KindFunction,
			"union_item":       KindStruct,
		},
		containerTypes: map[string]bool{
			"impl_item":  true,
			"trait_item": true,
			"mod_item":   true,
		},
		bodyTypes: map[string]bool{
			"declaration_list": true,
		},
		nameOf:         rustNameOf,
		visibilityOf:   rustVisibility,
		kindOf:         rustKindOf,
		docOf:          rustDoc,
		genericsOf:     rustGenerics,
		attributesOf:   rustAttributes,
		collectRefs:    rustRefs,
		collectImports: rustImports,
	}
	return newASTAnalyzer(spec, budget)
}

// rustNameOf names impl blocks by their implemented type.
func rustNameOf(n *Node, src []byte) string {
	if n.Type == "impl_item" {
		if t := n.ChildByField("type"); t != nil {
			return t.Content(src)
		}
	}
	return identifierName(n, src)
}

// rustVisibility maps visibility_modifier keywords.
func rustVisibility(n *Node, _ string, src []byte) Visibility {
	mod := n.FindChildByType("visibility_modifier")
	if mod == nil {
		return VisibilityPrivate
	}
	text := mod.Content(src)
	switch {
	case strings.Contains(text, "crate"):
		return VisibilityCrate
	case strings.HasPrefix(text, "pub"):
		return VisibilityPublic
	default:
		return VisibilityPrivate
	}
}

// rustKindOf flags #[test] functions.
func rustKindOf(n *Node, _ string, kind ElementKind, src []byte) ElementKind {
	if kind != KindFunction {
		return kind
	}
	for _, attr := range n.FindAllByType("attribute_item") {
		if strings.Contains(attr.Content(src), "test") {
			return KindTest
		}
	}
	return kind
}

// rustDoc joins consecutive /// doc comments directly above the item.
func rustDoc(n, prev *Node, src []byte) string {
	if prev == nil || prev.Type != "line_comment" {
		return ""
	}
	if int(n.StartRow)-int(prev.EndRow) > 1 {
		return ""
	}
	text := prev.Content(src)
	if !strings.HasPrefix(text, "///") {
		return ""
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "///")
		lines = append(lines, strings.TrimSpace(line))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// rustGenerics extracts type parameter names.
func rustGenerics(n *Node, src []byte) []string {
	params := n.ChildByField("type_parameters")
	if params == nil {
		params = n.FindChildByType("type_parameters")
	}
	if params == nil {
		return nil
	}

	var names []string
	for _, child := range params.Children {
		switch child.Type {
		case "type_identifier", "constrained_type_parameter", "lifetime":
			name := child.Content(src)
			if child.Type == "constrained_type_parameter" {
				if left := child.ChildByField("left"); left != nil {
					name = left.Content(src)
				}
			}
			names = append(names, name)
		}
	}
	return names
}

// rustAttributes collects #[...] attribute items preceding and inside the
// declaration head.
func rustAttributes(n, prev *Node, src []byte) []string {
	var attrs []string
	if prev != nil && prev.Type == "attribute_item" {
		attrs = append(attrs, strings.Trim(prev.Content(src), "#[]"))
	}
	for _, child := range n.Children {
		if child.Type == "attribute_item" {
			attrs = append(attrs, strings.Trim(child.Content(src), "#[]"))
		}
	}
	return attrs
}

// rustRefs collects calls, macro invocations, type references, and the
// trait implemented by an impl block.
func rustRefs(n *Node, src []byte, out *[]Reference) {
	if n.Type == "impl_item" {
		if trait := n.ChildByField("trait"); trait != nil {
			*out = append(*out, Reference{
				Name: trait.Content(src),
				Kind: RefImplements,
				Line: lineOf(trait.StartRow),
			})
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
		case "macro_invocation":
			if mac := c.ChildByField("macro"); mac != nil {
				*out = append(*out, Reference{
					Name: mac.Content(src),
					Kind: RefMacro,
					Line: lineOf(c.StartRow),
				})
			}
		case "type_identifier", "scoped_type_identifier":
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

// rustImports extracts use declarations. Grouped uses produce one Import
// per leaf name under the shared prefix.
func rustImports(root *Node, src []byte) []Import {
	var imports []Import
	for _, decl := range root.FindAllByType("use_declaration") {
		arg := decl.ChildByField("argument")
		if arg == nil {
			continue
		}
		line := lineOf(decl.StartRow)

		switch arg.Type {
		case "use_wildcard":
			if path := arg.FindChildByType("scoped_identifier"); path != nil {
				imports = append(imports, Import{Path: path.Content(src), Line: line})
			}
		case "scoped_use_list", "use_list":
			prefix := ""
			if p := arg.ChildByField("path"); p != nil {
				prefix = p.Content(src)
			}
			list := arg.FindChildByType("use_list")
			if list == nil {
				list = arg
			}
			for _, item := range list.Children {
				switch item.Type {
				case "identifier", "scoped_identifier", "self":
					name := item.Content(src)
					path := name
					if prefix != "" {
						path = prefix + "::" + name
					}
					imports = append(imports, Import{
						Path:  path,
						Names: []string{lastSegment(name, "::")},
						Line:  line,
					})
				}
			}
		default:
			path := arg.Content(src)
			imports = append(imports, Import{
				Path:  path,
				Names: []string{lastSegment(path, "::")},
				Line:  line,
			})
		}
	}
	return imports
}

// lastSegment returns the final separator-delimited segment of a path.
func lastSegment(path, sep string) string {
	if idx := strings.LastIndex(path, sep); idx >= 0 {
		return path[idx+len(sep):]
	}
	return path
}
