package assemble

import (
	"sort"
	"strings"

	"github.com/locus-dev/locus/internal/chunk"
	"github.com/locus-dev/locus/internal/search"
	"github.com/locus-dev/locus/internal/store"
)

// Entry is one packed chunk in a context window.
type Entry struct {
	Chunk    *store.Chunk
	Priority Priority
	// Content is the possibly compressed text included in the window.
	Content string
	// Tokens is the estimated token count of Content.
	Tokens int
	// Compressed is set when a compression level was applied.
	Compressed bool
}

// ContextWindow is the final token-budgeted bundle for a caller.
type ContextWindow struct {
	Intent     Intent
	Strategy   Strategy
	Entries    []Entry
	TokensUsed int
	Budget     int
}

// Input configures one assembly run.
type Input struct {
	Query string
	// Results are ranked search hits, highest first.
	Results []*search.Result
	// Budget is the token budget for the window.
	Budget int
	// ActiveFile marks chunks from the caller's current file Critical.
	ActiveFile string
	// GraphNeighbors maps chunk ids to their graph distance from the
	// anchors; a chunk whose id appears here (and is neither in the active
	// file nor a test) ranks Medium, whatever its score.
	GraphNeighbors map[string]int
}

// Score thresholds for priority assignment.
const (
	highScoreThreshold   = 0.8
	mediumScoreThreshold = 0.5
)

// budgetHighWaterMark is the fill fraction past which Low chunks are
// skipped under a high-level strategy.
const budgetHighWaterMark = 0.9

// Assemble classifies the query, prioritizes the ranked chunks, and packs
// them greedily under the budget with per-priority compression. A Critical
// chunk is never dropped while any compression level of it still fits.
func Assemble(in Input) *ContextWindow {
	intent := ClassifyIntent(in.Query)
	strategy := StrategyFor(intent)

	window := &ContextWindow{
		Intent:   intent,
		Strategy: strategy,
		Budget:   in.Budget,
	}
	if in.Budget <= 0 || len(in.Results) == 0 {
		return window
	}

	type candidate struct {
		result   *search.Result
		priority Priority
	}

	candidates := make([]candidate, 0, len(in.Results))
	for _, r := range in.Results {
		if r.Chunk == nil {
			continue
		}
		if !strategy.IncludeTests && r.Chunk.Kind == store.ChunkKindTest {
			continue
		}
		candidates = append(candidates, candidate{
			result:   r,
			priority: assignPriority(r, in),
		})
	}

	// Sort by (priority desc, score desc); stable keeps rank order inside
	// equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority > candidates[j].priority
		}
		return candidates[i].result.Score > candidates[j].result.Score
	})

	for _, c := range candidates {
		remaining := in.Budget - window.TokensUsed
		if remaining <= 0 {
			break
		}

		used := float64(window.TokensUsed) / float64(in.Budget)
		if c.priority == PriorityLow && strategy.PrioritizeHighLevel && used >= budgetHighWaterMark {
			continue
		}

		entry, ok := fit(c.result.Chunk, c.priority, remaining)
		if !ok {
			continue
		}
		window.Entries = append(window.Entries, entry)
		window.TokensUsed += entry.Tokens
	}

	return window
}

// assignPriority maps a result to its packing priority: active file, test
// file, graph neighbor, then score thresholds.
func assignPriority(r *search.Result, in Input) Priority {
	if in.ActiveFile != "" && r.Chunk.FilePath == in.ActiveFile {
		return PriorityCritical
	}
	if r.Chunk.Kind == store.ChunkKindTest || isTestPath(r.Chunk.FilePath) {
		return PriorityHigh
	}
	if in.GraphNeighbors != nil {
		if _, ok := in.GraphNeighbors[r.Chunk.ID]; ok {
			return PriorityMedium
		}
	}

	switch {
	case r.Score >= highScoreThreshold:
		return PriorityHigh
	case r.Score >= mediumScoreThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// fit tries the chunk at full size, then walks down the compression
// levels permitted for its priority until one fits the remaining budget.
func fit(c *store.Chunk, priority Priority, remaining int) (Entry, bool) {
	full := Entry{
		Chunk:    c,
		Priority: priority,
		Content:  c.Content,
		Tokens:   chunk.EstimateTokens(c.Content, c.Language),
	}
	if full.Tokens <= remaining {
		return full, true
	}

	// Walk down from the chunk's own level so a Critical chunk still
	// packs at signature size rather than dropping.
	for level := priority; level >= PriorityLow; level-- {
		if level == PriorityCritical {
			continue // full content already failed to fit
		}
		compressed := compress(c.Content, c.DocComment, level)
		tokens := chunk.EstimateTokens(compressed, c.Language)
		if tokens <= remaining {
			return Entry{
				Chunk:      c,
				Priority:   priority,
				Content:    compressed,
				Tokens:     tokens,
				Compressed: true,
			}, true
		}
	}

	return Entry{}, false
}

// isTestPath reports conventional test file paths.
func isTestPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.Contains(lower, "_test.") ||
		strings.Contains(lower, ".test.") ||
		strings.Contains(lower, ".spec.") ||
		strings.Contains(lower, "/tests/") ||
		strings.HasPrefix(lower, "tests/") ||
		strings.HasPrefix(lower, "test_") ||
		strings.Contains(lower, "/test_")
}
