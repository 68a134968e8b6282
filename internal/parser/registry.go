package parser

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Registry maps detected languages to analyzers.
type Registry struct {
	mu        sync.RWMutex
	analyzers map[string]Analyzer
	extToLang map[string]string
	budget    Budget
}

// NewRegistry creates a registry with the default language set.
func NewRegistry(budget Budget) *Registry {
	r := &Registry{
		analyzers: make(map[string]Analyzer),
		extToLang: make(map[string]string),
		budget:    budget,
	}

	r.register("go", []string{".go"}, newGoAnalyzer(budget))
	r.register("python", []string{".py", ".pyi"}, newPythonAnalyzer(budget))
	r.register("javascript", []string{".js", ".mjs", ".cjs", ".jsx"},
		newScriptAnalyzer("javascript", javascript.GetLanguage(), budget))
	r.register("typescript", []string{".ts", ".mts", ".cts"},
		newScriptAnalyzer("typescript", typescript.GetLanguage(), budget))
	r.register("tsx", []string{".tsx"},
		newScriptAnalyzer("tsx", tsx.GetLanguage(), budget))
	r.register("rust", []string{".rs"}, newRustAnalyzer(budget))

	return r
}

// register adds an analyzer under a language name and its extensions.
func (r *Registry) register(name string, exts []string, a Analyzer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.analyzers[name] = a
	for _, ext := range exts {
		r.extToLang[ext] = name
	}
}

// DetectLanguage identifies the language of a file by extension, falling
// back to the shebang line for extensionless scripts. Returns "" when
// unsupported.
func (r *Registry) DetectLanguage(path string, content []byte) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := r.extToLang[ext]; ok {
		return lang
	}
	if ext == "" {
		return shebangLanguage(content)
	}
	return ""
}

// Analyzer returns the analyzer for a language tag.
func (r *Registry) Analyzer(language string) (Analyzer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.analyzers[language]
	return a, ok
}

// Languages returns the registered language names.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.analyzers))
	for name := range r.analyzers {
		names = append(names, name)
	}
	return names
}

// Analyze runs the full extraction for a file. Budget exceedance and parse
// failures degrade to keyword-only extraction instead of erroring; the
// result is flagged Degraded.
func (r *Registry) Analyze(ctx context.Context, path string, content []byte) (*Result, error) {
	language := r.DetectLanguage(path, content)
	if language == "" {
		return nil, nil
	}

	analyzer, ok := r.Analyzer(language)
	if !ok {
		return nil, nil
	}

	if int64(len(content)) > r.budget.MaxFileSize {
		slog.Warn("file exceeds parse budget, degrading to keyword extraction",
			slog.String("path", path),
			slog.Int("size", len(content)),
		)
		return degradedResult(language, content), nil
	}

	elements, err := analyzer.ExtractElements(ctx, content)
	if err != nil {
		slog.Warn("structural extraction failed, degrading to keyword extraction",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return degradedResult(language, content), nil
	}

	imports, err := analyzer.ExtractImports(ctx, content)
	if err != nil {
		imports = nil
	}

	return &Result{Elements: elements, Imports: imports}, nil
}

// SeparatorFor returns the FQN separator for a language, defaulting to dot.
func (r *Registry) SeparatorFor(language string) string {
	if a, ok := r.Analyzer(language); ok {
		return a.Separator()
	}
	return "."
}

// degradedResult produces a single module-level element spanning the whole
// file, for keyword-only indexing of files that blew the syntactic budget.
func degradedResult(language string, content []byte) *Result {
	lines := bytes.Count(content, []byte{'\n'}) + 1
	return &Result{
		Elements: []Element{{
			Kind:       KindModule,
			Visibility: VisibilityPrivate,
			Name:       "",
			StartLine:  1,
			EndLine:    lines,
			Content:    string(content),
		}},
		Degraded: true,
	}
}

// shebangLanguage maps a shebang interpreter to a language tag.
func shebangLanguage(content []byte) string {
	if !bytes.HasPrefix(content, []byte("#!")) {
		return ""
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	if !scanner.Scan() {
		return ""
	}
	line := scanner.Text()

	switch {
	case strings.Contains(line, "python"):
		return "python"
	case strings.Contains(line, "node"):
		return "javascript"
	default:
		return ""
	}
}

// languageFor returns the tree-sitter grammar for a supported tag, used by
// analyzers that share the script extractor.
func languageFor(tag string) *sitter.Language {
	switch tag {
	case "go":
		return golang.GetLanguage()
	case "python":
		return python.GetLanguage()
	case "javascript":
		return javascript.GetLanguage()
	case "typescript":
		return typescript.GetLanguage()
	case "tsx":
		return tsx.GetLanguage()
	case "rust":
		return rust.GetLanguage()
	default:
		return nil
	}
}
