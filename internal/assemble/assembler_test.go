package assemble

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locus-dev/locus/internal/chunk"
	"github.com/locus-dev/locus/internal/search"
	"github.com/locus-dev/locus/internal/store"
)

func makeResult(id, path string, score float64, lines int) *search.Result {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[go] Fn%s: function\nfunc Fn%s() {\n", id, id)
	for i := 0; i < lines; i++ {
		fmt.Fprintf(&sb, "\tstep%d := compute(%d)\n\t_ = step%d\n", i, i, i)
	}
	sb.WriteString("}")

	return &search.Result{
		Score: score,
		Chunk: &store.Chunk{
			ID:       id,
			FilePath: path,
			Kind:     store.ChunkKindFunction,
			Content:  sb.String(),
			Language: "go",
		},
	}
}

func TestAssemble_NeverExceedsBudget(t *testing.T) {
	var results []*search.Result
	for i := 0; i < 30; i++ {
		results = append(results, makeResult(fmt.Sprintf("c%02d", i), "pkg/file.go", 0.9-float64(i)*0.02, 20))
	}

	for _, budget := range []int{100, 500, 2000, 8000} {
		window := Assemble(Input{
			Query:   "how does packing work",
			Results: results,
			Budget:  budget,
		})
		assert.LessOrEqual(t, window.TokensUsed, budget, "budget %d", budget)

		total := 0
		for _, e := range window.Entries {
			total += e.Tokens
		}
		assert.Equal(t, total, window.TokensUsed, "recorded totals must match entries")
	}
}

func TestAssemble_CriticalNeverDroppedWhileCompressible(t *testing.T) {
	active := makeResult("crit", "active.go", 0.1, 200) // huge but from the active file
	filler := makeResult("fill", "other.go", 0.95, 5)

	// Budget too small for the full critical chunk, but a signature fits.
	window := Assemble(Input{
		Query:      "edit the handler",
		Results:    []*search.Result{filler, active},
		Budget:     120,
		ActiveFile: "active.go",
	})

	var found bool
	for _, e := range window.Entries {
		if e.Chunk.ID == "crit" {
			found = true
			assert.Equal(t, PriorityCritical, e.Priority)
		}
	}
	assert.True(t, found, "critical chunk must pack at some compression level")
}

func TestAssemble_PriorityAssignment(t *testing.T) {
	in := Input{
		Query:      "debug the crash",
		ActiveFile: "active.go",
		GraphNeighbors: map[string]int{
			"nbr": 1,
		},
	}

	tests := []struct {
		name   string
		result *search.Result
		want   Priority
	}{
		{"active file", makeResult("a", "active.go", 0.1, 3), PriorityCritical},
		{"test file", makeResult("t", "pkg/handler_test.go", 0.1, 3), PriorityHigh},
		{"graph neighbor", func() *search.Result {
			r := makeResult("nbr", "pkg/other.go", 0.1, 3)
			return r
		}(), PriorityMedium},
		{"high score", makeResult("h", "pkg/a.go", 0.85, 3), PriorityHigh},
		{"medium score", makeResult("m", "pkg/b.go", 0.6, 3), PriorityMedium},
		{"low score", makeResult("l", "pkg/c.go", 0.2, 3), PriorityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, assignPriority(tt.result, in))
		})
	}
}

func TestAssemble_HighPriorityPacksFirst(t *testing.T) {
	low := makeResult("low", "a.go", 0.3, 5)
	high := makeResult("high", "b.go", 0.9, 5)

	window := Assemble(Input{
		Query:   "explain ordering",
		Results: []*search.Result{low, high},
		Budget:  8000,
	})

	require.GreaterOrEqual(t, len(window.Entries), 2)
	assert.Equal(t, "high", window.Entries[0].Chunk.ID)
}

func TestAssemble_CompressionLevels(t *testing.T) {
	content := "[go] Big: function\nfunc Big() {\n\ta := 1\n\tb := 2\n\tc := 3\n\td := 4\n\te := 5\n\tf := 6\n\tg := 7\n}"

	full := compress(content, "does big things", PriorityCritical)
	assert.Equal(t, content, full)

	high := compress(content, "does big things", PriorityHigh)
	assert.Contains(t, high, "(truncated)")
	assert.Contains(t, high, "a := 1")

	medium := compress(content, "does big things", PriorityMedium)
	assert.Contains(t, medium, "(implementation omitted)")
	assert.Contains(t, medium, "does big things")
	assert.NotContains(t, medium, "a := 1")

	low := compress(content, "does big things", PriorityLow)
	assert.Contains(t, low, "func Big()")
	assert.NotContains(t, low, "a := 1")

	// Compression must shrink monotonically enough to matter.
	assert.Less(t, chunk.EstimateTokens(low, "go"), chunk.EstimateTokens(content, "go"))
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		query string
		want  Intent
	}{
		{"fix the panic in the watcher", IntentDebug},
		{"refactor the store layer", IntentRefactor},
		{"how does chunking work", IntentExplain},
		{"generate a new parser for ruby", IntentGenerate},
		{"update the default timeout", IntentEdit},
		{"zzz qqq", IntentUnknown},
		// Debug outranks explain when both match.
		{"explain why this error happens", IntentDebug},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyIntent(tt.query), "query %q", tt.query)
	}
}

func TestStrategyFor_AllIntentsCovered(t *testing.T) {
	for _, intent := range []Intent{IntentDebug, IntentRefactor, IntentExplain,
		IntentGenerate, IntentEdit, IntentUnknown} {
		s := StrategyFor(intent)
		assert.GreaterOrEqual(t, s.GraphDepth, 1, "intent %s", intent)
		assert.LessOrEqual(t, s.GraphDepth, 3, "intent %s", intent)
	}
}
