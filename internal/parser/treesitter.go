package parser

import (
	"context"
	"fmt"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
)

// Node is a converted AST node. Conversion depth is bounded by the budget;
// children past the limit are dropped rather than failing the parse.
type Node struct {
	Type      string
	StartByte uint32
	EndByte   uint32
	StartRow  uint32
	EndRow    uint32
	Field     string // field name in the parent, when known
	Children  []*Node
	HasError  bool
}

// Tree is a parsed AST with its source.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
	// Truncated is set when the depth budget clipped the conversion.
	Truncated bool
}

// tsParser wraps a tree-sitter parser for one language.
type tsParser struct {
	language *sitter.Language
	name     string
	budget   Budget
}

// parse parses source under the syntactic budget. Malformed source still
// yields a tree; only budget exceedance and hard parser failures error.
func (p *tsParser) parse(ctx context.Context, source []byte) (*Tree, error) {
	if int64(len(source)) > p.budget.MaxFileSize {
		return nil, fmt.Errorf("file exceeds parse budget: %d bytes", len(source))
	}

	timeout := time.Duration(p.budget.MaxParseTime) * time.Millisecond
	parseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sp := sitter.NewParser()
	defer sp.Close()
	sp.SetLanguage(p.language)

	tsTree, err := sp.ParseCtx(parseCtx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s source: %w", p.name, err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("parse %s source: nil tree", p.name)
	}
	defer tsTree.Close()

	tree := &Tree{Source: source, Language: p.name}
	tree.Root = convertNode(tsTree.RootNode(), p.budget.MaxDepth, &tree.Truncated)
	return tree, nil
}

// convertNode converts a tree-sitter node up to maxDepth levels deep.
func convertNode(tsNode *sitter.Node, maxDepth int, truncated *bool) *Node {
	if tsNode == nil {
		return nil
	}
	if maxDepth <= 0 {
		*truncated = true
		return nil
	}

	node := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartRow:  tsNode.StartPoint().Row,
		EndRow:    tsNode.EndPoint().Row,
		HasError:  tsNode.HasError(),
		Children:  make([]*Node, 0, int(tsNode.ChildCount())),
	}

	for i := 0; i < int(tsNode.ChildCount()); i++ {
		child := tsNode.Child(i)
		if child == nil {
			continue
		}
		converted := convertNode(child, maxDepth-1, truncated)
		if converted == nil {
			continue
		}
		converted.Field = tsNode.FieldNameForChild(i)
		node.Children = append(node.Children, converted)
	}

	return node
}

// Content returns the source slice covered by the node.
func (n *Node) Content(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// ChildByField returns the first child carrying the given field name.
func (n *Node) ChildByField(field string) *Node {
	for _, child := range n.Children {
		if child.Field == field {
			return child
		}
	}
	return nil
}

// FindChildByType finds the first direct child with the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// FindAllByType recursively finds all nodes with the given type.
func (n *Node) FindAllByType(nodeType string) []*Node {
	var result []*Node
	if n.Type == nodeType {
		result = append(result, n)
	}
	for _, child := range n.Children {
		result = append(result, child.FindAllByType(nodeType)...)
	}
	return result
}

// Walk traverses the tree depth-first, descending while fn returns true.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// lineOf converts a 0-indexed row to a 1-indexed line.
func lineOf(row uint32) int {
	return int(row) + 1
}
