package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locus-dev/locus/internal/parser"
)

func makeSource(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n"))
}

func TestChunker_SingleSmallElement(t *testing.T) {
	source := makeSource(
		"package main",
		"",
		"func Add(a, b int) int {",
		"\treturn a + b",
		"}",
	)
	elements := []parser.Element{{
		Kind:       parser.KindFunction,
		Visibility: parser.VisibilityPublic,
		Name:       "Add",
		StartLine:  3,
		EndLine:    5,
		Content:    "func Add(a, b int) int {\n\treturn a + b\n}",
	}}

	chunks := NewChunker(DefaultOptions()).Chunk(&File{
		Path:     "main.go",
		Language: "go",
		Source:   source,
		Elements: elements,
	})

	require.NotEmpty(t, chunks)

	var found *Chunk
	for i := range chunks {
		if chunks[i].SymbolPath == "Add" {
			found = &chunks[i]
		}
	}
	require.NotNil(t, found, "element chunk should exist")
	assert.Equal(t, parser.KindFunction, found.Kind)
	assert.Contains(t, found.Content, "[go] Add: function")
	assert.Contains(t, found.Content, "return a + b")
	assert.Equal(t, 3, found.StartLine)
	assert.Equal(t, 5, found.EndLine)
}

func TestChunker_CoversEveryNonTrivialLine(t *testing.T) {
	source := makeSource(
		"package main",
		"",
		"import \"fmt\"",
		"",
		"func A() { fmt.Println(1) }",
		"",
		"var loose = 42",
		"",
		"func B() { fmt.Println(2) }",
	)
	elements := []parser.Element{
		{Kind: parser.KindFunction, Name: "A", Visibility: parser.VisibilityPublic,
			StartLine: 5, EndLine: 5, Content: "func A() { fmt.Println(1) }"},
		{Kind: parser.KindFunction, Name: "B", Visibility: parser.VisibilityPublic,
			StartLine: 9, EndLine: 9, Content: "func B() { fmt.Println(2) }"},
	}

	chunks := NewChunker(DefaultOptions()).Chunk(&File{
		Path:     "main.go",
		Language: "go",
		Source:   source,
		Elements: elements,
	})

	covered := make(map[int]bool)
	for _, c := range chunks {
		for line := c.StartLine; line <= c.EndLine; line++ {
			covered[line] = true
		}
	}

	lines := strings.Split(string(source), "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		assert.True(t, covered[i+1], "line %d (%q) must appear in a chunk", i+1, line)
	}
}

func TestChunker_NeverExceedsTokenBudget(t *testing.T) {
	// A long function body forces splitting.
	var body []string
	body = append(body, "def process(items):")
	for i := 0; i < 400; i++ {
		body = append(body, fmt.Sprintf("    value_%d = transform(items[%d]) + compute_offset(%d)", i, i, i))
	}
	content := strings.Join(body, "\n")

	elements := []parser.Element{{
		Kind:       parser.KindFunction,
		Visibility: parser.VisibilityPublic,
		Name:       "process",
		StartLine:  1,
		EndLine:    len(body),
		Content:    content,
	}}

	opts := DefaultOptions()
	chunker := NewChunker(opts)
	chunks := chunker.Chunk(&File{
		Path:     "process.py",
		Language: "python",
		Source:   []byte(content),
		Elements: elements,
	})

	require.Greater(t, len(chunks), 1, "oversized element must split")
	for _, c := range chunks {
		assert.LessOrEqual(t, c.TokenCount, opts.MaxTokens,
			"chunk %s:%d exceeds budget", c.SymbolPath, c.StartLine)
	}
}

func TestChunker_TotalOrderByStartLine(t *testing.T) {
	source := makeSource(
		"const x = 1",
		"function b() { return 2 }",
		"function a() { return 1 }",
	)
	elements := []parser.Element{
		{Kind: parser.KindFunction, Name: "b", Visibility: parser.VisibilityPublic,
			StartLine: 2, EndLine: 2, Content: "function b() { return 2 }"},
		{Kind: parser.KindFunction, Name: "a", Visibility: parser.VisibilityPublic,
			StartLine: 3, EndLine: 3, Content: "function a() { return 1 }"},
	}

	chunks := NewChunker(DefaultOptions()).Chunk(&File{
		Path:     "m.js",
		Language: "javascript",
		Source:   source,
		Elements: elements,
	})

	for i := 1; i < len(chunks); i++ {
		assert.LessOrEqual(t, chunks[i-1].StartLine, chunks[i].StartLine)
	}
}

func TestChunker_ContainerHeaderExcludesMemberBodies(t *testing.T) {
	source := makeSource(
		"class Server:",
		"    \"\"\"Long-lived server.\"\"\"",
		"    def start(self):",
		"        self.running = True",
		"    def stop(self):",
		"        self.running = False",
	)
	elements := []parser.Element{
		{Kind: parser.KindClass, Name: "Server", Visibility: parser.VisibilityPublic,
			StartLine: 1, EndLine: 6, Content: string(source)},
		{Kind: parser.KindFunction, Name: "start", ScopePath: []string{"Server"},
			Visibility: parser.VisibilityPublic, StartLine: 3, EndLine: 4,
			Content: "def start(self):\n        self.running = True"},
		{Kind: parser.KindFunction, Name: "stop", ScopePath: []string{"Server"},
			Visibility: parser.VisibilityPublic, StartLine: 5, EndLine: 6,
			Content: "def stop(self):\n        self.running = False"},
	}

	chunks := NewChunker(DefaultOptions()).Chunk(&File{
		Path:     "server.py",
		Language: "python",
		Source:   source,
		Elements: elements,
	})

	var headerChunk *Chunk
	for i := range chunks {
		if chunks[i].SymbolPath == "Server" {
			headerChunk = &chunks[i]
		}
	}
	require.NotNil(t, headerChunk, "container header chunk should exist")
	assert.Contains(t, headerChunk.Content, "class Server:")
	assert.NotContains(t, headerChunk.Content, "self.running = True",
		"member bodies belong to member chunks")
}

func TestChunker_WeightDerivation(t *testing.T) {
	tests := []struct {
		kind       parser.ElementKind
		visibility parser.Visibility
		name       string
		want       float64
	}{
		{parser.KindFunction, parser.VisibilityPublic, "Serve", 1.0},
		{parser.KindStruct, parser.VisibilityPublic, "Config", 0.95},
		{parser.KindFunction, parser.VisibilityPrivate, "helper", 0.70},
		{parser.KindTest, parser.VisibilityPublic, "TestServe", 0.60},
		{parser.KindType, parser.VisibilityPublic, "ParseError", 0.90},
		{parser.KindStruct, parser.VisibilityCrate, "Inner", 0.95 * 0.85},
	}

	for _, tt := range tests {
		got := Weight(tt.kind, tt.visibility, tt.name)
		assert.InDelta(t, tt.want, got, 1e-9, "%s/%s/%s", tt.kind, tt.visibility, tt.name)
	}
}

func TestEstimateTokens_WithinHeuristicBounds(t *testing.T) {
	code := `func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := s.store.Lookup(ctx, r.URL.Path)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(result)
}`

	tokens := EstimateTokens(code, "go")
	assert.Greater(t, tokens, 40, "realistic code should yield substantial tokens")
	assert.Less(t, tokens, 160, "estimate should stay near canonical tokenizers")
}

func TestEstimateTokens_EmptyAndWhitespace(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens("", "go"))
	assert.LessOrEqual(t, EstimateTokens("   \n\t", "go"), 2)
}
