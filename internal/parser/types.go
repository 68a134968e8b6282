// Package parser provides language-aware structural extraction over source
// files. A registry maps detected languages to analyzers that extract
// elements, imports, and references from an error-tolerant AST parse.
package parser

import (
	"context"
)

// ElementKind classifies an extracted source element.
type ElementKind string

const (
	KindFunction ElementKind = "function"
	KindClass    ElementKind = "class"
	KindStruct   ElementKind = "struct"
	KindTrait    ElementKind = "trait"
	KindImpl     ElementKind = "impl"
	KindTest     ElementKind = "test"
	KindConst    ElementKind = "const"
	KindType     ElementKind = "type"
	KindModule   ElementKind = "module"
	KindOther    ElementKind = "other"
)

// Visibility classifies how widely an element is reachable.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityCrate   Visibility = "crate"
	VisibilityPrivate Visibility = "private"
)

// ReferenceKind classifies an outgoing reference found inside an element.
type ReferenceKind string

const (
	RefCall       ReferenceKind = "call"
	RefType       ReferenceKind = "type"
	RefExtends    ReferenceKind = "extends"
	RefImplements ReferenceKind = "implements"
	RefMacro      ReferenceKind = "macro"
	RefAttribute  ReferenceKind = "attribute"
)

// Reference is a name used by an element: a call site, a type mention, a
// supertype, or a macro/attribute invocation.
type Reference struct {
	Name string
	Kind ReferenceKind
	Line int
}

// Element is a single extracted declaration.
type Element struct {
	Kind       ElementKind
	Visibility Visibility
	Name       string
	// ScopePath is the enclosing scope chain, outermost first
	// (e.g. ["Server"] for a method of class Server).
	ScopePath  []string
	StartLine  int // 1-indexed
	EndLine    int // inclusive
	Content    string
	DocComment string
	References []Reference
	Generics   []string
	Attributes []string
}

// Import is a single import/use declaration.
type Import struct {
	// Path is the imported module path as written in source.
	Path string
	// Names are the individually imported names, empty for whole-module
	// imports.
	Names []string
	Line  int
}

// Result is the output of analyzing one file.
type Result struct {
	Elements []Element
	Imports  []Import
	// Degraded is set when the syntactic budget was exceeded and the file
	// fell back to keyword-only indexing.
	Degraded bool
}

// Analyzer is the per-language capability set.
type Analyzer interface {
	// ExtractElements returns the ordered declarations of a source file.
	// Malformed input yields a best-effort list, never an error for syntax
	// alone.
	ExtractElements(ctx context.Context, source []byte) ([]Element, error)

	// ExtractImports returns the file's import declarations.
	ExtractImports(ctx context.Context, source []byte) ([]Import, error)

	// Separator returns the language's conventional FQN separator.
	Separator() string
}

// Budget bounds the syntactic work done per file.
type Budget struct {
	// MaxFileSize in bytes; larger files are indexed keyword-only.
	MaxFileSize int64
	// MaxParseTime bounds wall time for a single parse.
	MaxParseTime int64 // milliseconds
	// MaxDepth bounds AST conversion depth.
	MaxDepth int
}

// DefaultBudget returns the default syntactic budget.
func DefaultBudget() Budget {
	return Budget{
		MaxFileSize:  5 * 1024 * 1024,
		MaxParseTime: 10000,
		MaxDepth:     50,
	}
}
