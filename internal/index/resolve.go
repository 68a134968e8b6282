package index

import (
	"context"
	"strings"

	"github.com/locus-dev/locus/internal/store"
)

// resolver maps imported paths and referenced names to indexed symbols
// with a three-strategy cascade: exact FQN match, file-path resolution
// with exported-symbol lookup, then fuzzy name match taking the shortest
// FQN.
type resolver struct {
	meta *store.MetadataStore
}

// resolveImport resolves an import path plus optional imported name to a
// target symbol. Returns nil on a miss; misses are recoverable and only
// counted.
func (r *resolver) resolveImport(ctx context.Context, importPath, name string) (*store.Symbol, error) {
	// Normalize path separators to the dotted module form used in FQNs.
	module := moduleFromImportPath(importPath)

	// Strategy 1: exact FQN.
	candidates := []string{}
	if name != "" {
		candidates = append(candidates,
			module+"."+name,
			module+"::"+name,
		)
	}
	candidates = append(candidates, module)

	for _, fqn := range candidates {
		sym, err := r.meta.SymbolByFQN(ctx, fqn)
		if err != nil {
			return nil, err
		}
		if sym != nil {
			return sym, nil
		}
	}

	// Strategy 2: file-path resolution + exported-symbol lookup. Symbols
	// whose FQN starts with the module prefix and ends with the imported
	// name.
	lookup := name
	if lookup == "" {
		lookup = lastPathSegment(module)
	}
	if lookup != "" {
		matches, err := r.meta.SearchSymbols(ctx, module, 50)
		if err != nil {
			return nil, err
		}
		for _, sym := range matches {
			if sym.Name == lookup {
				return sym, nil
			}
		}
	}

	// Strategy 3: fuzzy name match, shortest FQN wins.
	if lookup == "" {
		return nil, nil
	}
	return r.meta.FuzzySymbolByName(ctx, lookup)
}

// resolveReference resolves a referenced name (call target, type mention)
// to a symbol with the same cascade. Dotted or scoped names try the full
// form first, then the terminal segment.
func (r *resolver) resolveReference(ctx context.Context, name string) (*store.Symbol, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	// Strategy 1: the reference may already be an FQN.
	sym, err := r.meta.SymbolByFQN(ctx, name)
	if err != nil || sym != nil {
		return sym, err
	}

	terminal := terminalName(name)
	if terminal == "" || terminal == name {
		if terminal == "" {
			return nil, nil
		}
		return r.meta.FuzzySymbolByName(ctx, terminal)
	}

	// Strategy 2: qualified lookup on the receiver/module segment.
	qualifier := name[:len(name)-len(terminal)-separatorLen(name)]
	if qualifier != "" {
		matches, err := r.meta.SearchSymbols(ctx, qualifier, 50)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if m.Name == terminal {
				return m, nil
			}
		}
	}

	// Strategy 3: fuzzy by terminal name.
	return r.meta.FuzzySymbolByName(ctx, terminal)
}

// moduleFromImportPath converts an import path to dotted module form.
func moduleFromImportPath(importPath string) string {
	p := strings.TrimSuffix(importPath, "/")
	p = strings.ReplaceAll(p, "/", ".")
	return p
}

// lastPathSegment returns the final dotted or scoped segment.
func lastPathSegment(path string) string {
	return terminalName(path)
}

// terminalName returns the last segment of a dotted, scoped, or
// slash-separated name.
func terminalName(name string) string {
	for _, sep := range []string{"::", ".", "/"} {
		if idx := strings.LastIndex(name, sep); idx >= 0 {
			name = name[idx+len(sep):]
		}
	}
	return name
}

// separatorLen returns the length of the separator preceding the terminal
// segment.
func separatorLen(name string) int {
	if strings.Contains(name, "::") {
		return 2
	}
	return 1
}
