package parser

import (
	"path/filepath"
	"strings"
)

// conventionalPrefixes are path segments stripped when deriving a module
// name from a file path.
var conventionalPrefixes = map[string]bool{
	"src":   true,
	"lib":   true,
	"test":  true,
	"tests": true,
}

// ModuleName derives a module name from a repo-relative file path:
// conventional prefixes are stripped, the extension dropped, and the
// remaining segments joined with the language separator.
func ModuleName(relPath, separator string) string {
	clean := filepath.ToSlash(relPath)
	segments := strings.Split(clean, "/")

	// Strip leading conventional prefixes only.
	start := 0
	for start < len(segments)-1 && conventionalPrefixes[segments[start]] {
		start++
	}
	segments = segments[start:]

	if len(segments) == 0 {
		return ""
	}

	last := segments[len(segments)-1]
	if ext := filepath.Ext(last); ext != "" {
		last = strings.TrimSuffix(last, ext)
	}
	segments[len(segments)-1] = last

	// Python-style package markers add nothing to the module path.
	if last == "__init__" || last == "mod" || last == "index" {
		segments = segments[:len(segments)-1]
	}

	return strings.Join(segments, separator)
}

// FQN composes a symbol's fully-qualified name from its module, scope
// chain, and name.
func FQN(module string, scopePath []string, name, separator string) string {
	parts := make([]string, 0, len(scopePath)+2)
	if module != "" {
		parts = append(parts, module)
	}
	parts = append(parts, scopePath...)
	if name != "" {
		parts = append(parts, name)
	}
	return strings.Join(parts, separator)
}

// SymbolPath composes the scope-qualified name without the module prefix.
func SymbolPath(scopePath []string, name, separator string) string {
	parts := make([]string, 0, len(scopePath)+1)
	parts = append(parts, scopePath...)
	if name != "" {
		parts = append(parts, name)
	}
	return strings.Join(parts, separator)
}
