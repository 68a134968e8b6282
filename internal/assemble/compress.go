package assemble

import (
	"strings"
)

// Priority orders chunks for packing. Higher packs first and compresses
// less.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityMedium   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// String returns the priority label.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// Compression level constants.
const (
	// highBodyLines is the body preview kept at High priority.
	highBodyLines = 5
)

// compress reduces chunk content per priority when the full text would
// overflow the budget: Critical keeps everything, High keeps the signature
// plus the first body lines, Medium keeps signature plus first doc line,
// Low keeps the signature only.
func compress(content, docComment string, priority Priority) string {
	switch priority {
	case PriorityCritical:
		return content
	case PriorityHigh:
		return signature(content) + "\n" + firstLines(body(content), highBodyLines) + "\n(truncated)"
	case PriorityMedium:
		out := signature(content)
		if doc := firstLines(docComment, 1); doc != "" {
			out += "\n// " + doc
		}
		return out + "\n(implementation omitted)"
	default:
		return signature(content)
	}
}

// signature returns the chunk's leading declaration: the synthetic header
// line plus the first non-blank source line.
func signature(content string) string {
	lines := strings.Split(content, "\n")
	var out []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
		if len(out) == 2 {
			break
		}
	}
	return strings.Join(out, "\n")
}

// body returns everything after the signature lines.
func body(content string) string {
	lines := strings.Split(content, "\n")
	seen := 0
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		seen++
		if seen == 2 {
			if i+1 < len(lines) {
				return strings.Join(lines[i+1:], "\n")
			}
			return ""
		}
	}
	return ""
}

// firstLines returns up to n non-empty lines of text.
func firstLines(text string, n int) string {
	if text == "" || n <= 0 {
		return ""
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return strings.Join(out, "\n")
}
