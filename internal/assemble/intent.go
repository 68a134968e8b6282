// Package assemble builds token-budgeted context windows from ranked
// search results: intent classification, priority assignment, and greedy
// packing with per-priority compression.
package assemble

import (
	"strings"
)

// Intent classifies what the caller is trying to do with the context.
type Intent string

const (
	IntentDebug    Intent = "debug"
	IntentRefactor Intent = "refactor"
	IntentExplain  Intent = "explain"
	IntentGenerate Intent = "generate"
	IntentEdit     Intent = "edit"
	IntentUnknown  Intent = "unknown"
)

// Strategy tunes assembly per intent class.
type Strategy struct {
	IncludeArchitecture   bool
	IncludeImplementation bool
	IncludeTests          bool
	IncludeDocs           bool
	IncludeRecentChanges  bool
	// GraphDepth bounds neighbor expansion (1-3).
	GraphDepth int
	// PrioritizeHighLevel skips Low chunks once the budget nears full.
	PrioritizeHighLevel bool
}

// intentKeywords drive the keyword heuristics, checked in fixed priority
// order: debug, refactor, explain, generate, edit.
var intentKeywords = []struct {
	intent   Intent
	keywords []string
}{
	{IntentDebug, []string{
		"bug", "error", "crash", "panic", "exception", "fail", "failing",
		"broken", "fix", "traceback", "stack trace", "debug",
	}},
	{IntentRefactor, []string{
		"refactor", "rename", "restructure", "extract", "simplify",
		"clean up", "cleanup", "move", "split", "merge",
	}},
	{IntentExplain, []string{
		"explain", "what", "how", "why", "understand", "describe",
		"overview", "architecture", "works",
	}},
	{IntentGenerate, []string{
		"generate", "create", "add", "implement", "new", "write", "build",
		"scaffold",
	}},
	{IntentEdit, []string{
		"edit", "change", "update", "modify", "replace", "set", "adjust",
	}},
}

// strategies maps each intent to its assembly strategy.
var strategies = map[Intent]Strategy{
	IntentDebug: {
		IncludeImplementation: true,
		IncludeTests:          true,
		IncludeRecentChanges:  true,
		GraphDepth:            2,
	},
	IntentRefactor: {
		IncludeArchitecture:   true,
		IncludeImplementation: true,
		IncludeTests:          true,
		GraphDepth:            3,
	},
	IntentExplain: {
		IncludeArchitecture: true,
		IncludeDocs:         true,
		GraphDepth:          2,
		PrioritizeHighLevel: true,
	},
	IntentGenerate: {
		IncludeArchitecture:   true,
		IncludeImplementation: true,
		IncludeDocs:           true,
		GraphDepth:            1,
	},
	IntentEdit: {
		IncludeImplementation: true,
		GraphDepth:            1,
	},
	IntentUnknown: {
		IncludeImplementation: true,
		IncludeDocs:           true,
		GraphDepth:            1,
	},
}

// ClassifyIntent maps a query to an intent by keyword heuristics. Classes
// are checked in fixed priority order; the first hit wins.
func ClassifyIntent(query string) Intent {
	lower := strings.ToLower(query)
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if containsWord(lower, kw) {
				return entry.intent
			}
		}
	}
	return IntentUnknown
}

// StrategyFor returns the assembly strategy for an intent.
func StrategyFor(intent Intent) Strategy {
	if s, ok := strategies[intent]; ok {
		return s
	}
	return strategies[IntentUnknown]
}

// containsWord matches a keyword at word boundaries; multiword keywords
// match as substrings.
func containsWord(text, keyword string) bool {
	if strings.Contains(keyword, " ") {
		return strings.Contains(text, keyword)
	}
	idx := 0
	for {
		pos := strings.Index(text[idx:], keyword)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(keyword)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
