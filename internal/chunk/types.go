// Package chunk cuts parsed source elements into retrieval units.
//
// Chunks are cut at AST boundaries, never mid-statement. Oversized elements
// split at inner block boundaries, then contiguous statement groups. Each
// chunk carries bidirectional overlap context and a synthetic header to
// enrich retrieval.
package chunk

import (
	"github.com/locus-dev/locus/internal/parser"
)

// Chunk is a single retrieval unit before persistence.
type Chunk struct {
	// SymbolPath is the scope-qualified symbol name within the file.
	SymbolPath string
	// Kind is the element kind (function, class, struct, ...).
	Kind parser.ElementKind
	// Visibility of the owning element.
	Visibility parser.Visibility
	// StartLine and EndLine bound the chunk in the original file,
	// 1-indexed inclusive, excluding overlap context.
	StartLine int
	EndLine   int
	// Content is the enriched text: synthetic header, backward overlap,
	// element slice, forward overlap.
	Content string
	// DocComment is the element's documentation, when present.
	DocComment string
	// References are the names the element uses.
	References []parser.Reference
	// TokenCount is the estimated token count of Content.
	TokenCount int
	// Weight is the kind x visibility structural weight in [0,1].
	Weight float64
}

// Options configures the chunker.
type Options struct {
	// MaxTokens is the chunk token budget.
	MaxTokens int
	// BackwardOverlapTokens and BackwardOverlapLines bound the prepended
	// context.
	BackwardOverlapTokens int
	BackwardOverlapLines  int
	// ForwardOverlapTokens and ForwardOverlapLines bound the appended
	// context.
	ForwardOverlapTokens int
	ForwardOverlapLines  int
}

// DefaultOptions returns the default chunking options.
func DefaultOptions() Options {
	return Options{
		MaxTokens:             512,
		BackwardOverlapTokens: 64,
		BackwardOverlapLines:  10,
		ForwardOverlapTokens:  32,
		ForwardOverlapLines:   5,
	}
}
