package chunk

import (
	"fmt"
	"sort"
	"strings"

	"github.com/locus-dev/locus/internal/parser"
)

// Chunker cuts parsed elements into retrieval units.
type Chunker struct {
	opts Options
}

// headerTokenReserve approximates the synthetic header cost.
const headerTokenReserve = 16

// NewChunker creates a chunker with the given options.
func NewChunker(opts Options) *Chunker {
	if opts.MaxTokens <= 0 {
		opts = DefaultOptions()
	}
	return &Chunker{opts: opts}
}

// contentBudget is the token budget left for element content once the
// synthetic header and overlap context are accounted for.
func (c *Chunker) contentBudget() int {
	budget := c.opts.MaxTokens - headerTokenReserve -
		c.opts.BackwardOverlapTokens - c.opts.ForwardOverlapTokens
	if budget < 32 {
		budget = 32
	}
	return budget
}

// File describes one file to chunk.
type File struct {
	Path     string
	Language string
	Source   []byte
	Elements []parser.Element
}

// Chunk produces the ordered chunk list for a file. Every non-trivial
// source line lands in at least one chunk; no chunk exceeds the token
// budget; chunks are totally ordered by start line.
func (c *Chunker) Chunk(file *File) []Chunk {
	lines := strings.Split(string(file.Source), "\n")

	var chunks []Chunk
	covered := make([]bool, len(lines)+2)

	leaves, containers := splitLeaves(file.Elements)

	for _, elem := range leaves {
		chunks = append(chunks, c.chunkElement(file, lines, elem, covered)...)
	}

	// Containers contribute a header chunk made of the lines their members
	// don't cover: signature, fields, trailing brace.
	for _, cont := range containers {
		header := c.containerHeader(file, lines, cont, covered)
		if header != nil {
			chunks = append(chunks, *header)
		}
	}

	// Remaining uncovered lines (module preamble, imports, loose
	// statements) become module chunks.
	chunks = append(chunks, c.gapChunks(file, lines, covered)...)

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].StartLine != chunks[j].StartLine {
			return chunks[i].StartLine < chunks[j].StartLine
		}
		return chunks[i].EndLine < chunks[j].EndLine
	})
	return chunks
}

// splitLeaves partitions elements into leaves and containers. A container
// is an element that strictly encloses another element.
func splitLeaves(elements []parser.Element) (leaves, containers []parser.Element) {
	for i, e := range elements {
		isContainer := false
		for j, other := range elements {
			if i == j {
				continue
			}
			if other.StartLine >= e.StartLine && other.EndLine <= e.EndLine &&
				(other.StartLine > e.StartLine || other.EndLine < e.EndLine) {
				isContainer = true
				break
			}
		}
		if isContainer {
			containers = append(containers, e)
		} else {
			leaves = append(leaves, e)
		}
	}
	return leaves, containers
}

// chunkElement emits one or more chunks for a leaf element.
func (c *Chunker) chunkElement(file *File, lines []string, elem parser.Element, covered []bool) []Chunk {
	markCovered(covered, elem.StartLine, elem.EndLine)

	symbolPath := parser.SymbolPath(elem.ScopePath, elem.Name, ".")
	tokens := EstimateTokens(elem.Content, file.Language)

	if tokens <= c.contentBudget() {
		return []Chunk{c.build(file, lines, elem, symbolPath, elem.StartLine, elem.EndLine, elem.Content)}
	}

	// Oversized: split at contiguous statement groups.
	var chunks []Chunk
	for _, span := range c.splitSpans(lines, elem.StartLine, elem.EndLine, file.Language) {
		content := joinLines(lines, span.start, span.end)
		chunks = append(chunks, c.build(file, lines, elem, symbolPath, span.start, span.end, content))
	}
	return chunks
}

// span is an inclusive 1-indexed line range.
type span struct {
	start, end int
}

// splitSpans greedily groups lines into spans under the token budget,
// preferring to break at blank lines and dedents (block boundaries).
func (c *Chunker) splitSpans(lines []string, startLine, endLine int, language string) []span {
	var spans []span

	budget := c.contentBudget()
	cur := startLine
	curTokens := 0
	lastBreak := -1 // last good boundary seen inside the current span

	flush := func(end int) {
		if end >= cur {
			spans = append(spans, span{start: cur, end: end})
		}
		cur = end + 1
		curTokens = 0
		lastBreak = -1
	}

	for i := startLine; i <= endLine && i-1 < len(lines); i++ {
		line := lines[i-1]
		lineTokens := EstimateTokens(line, language) + 1

		if curTokens+lineTokens > budget && i > cur {
			// Prefer the last block boundary over a hard mid-block cut.
			if lastBreak >= cur {
				flush(lastBreak)
				i = lastBreak // resume after the boundary
				continue
			}
			flush(i - 1)
		}

		curTokens += lineTokens
		if isBlockBoundary(line) {
			lastBreak = i
		}
	}
	flush(endLine)

	return spans
}

// isBlockBoundary reports lines after which a split is clean: blank lines
// and closing braces at shallow indentation.
func isBlockBoundary(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}
	if trimmed == "}" || trimmed == "};" || trimmed == "end" {
		return len(line)-len(strings.TrimLeft(line, " \t")) <= 4
	}
	return false
}

// containerHeader emits the container's own lines (those not covered by
// members) as a single chunk, split if oversized.
func (c *Chunker) containerHeader(file *File, lines []string, cont parser.Element, covered []bool) *Chunk {
	var headerLines []string
	firstLine := 0
	lastLine := 0
	for i := cont.StartLine; i <= cont.EndLine && i-1 < len(lines); i++ {
		if covered[i] {
			continue
		}
		if firstLine == 0 {
			firstLine = i
		}
		lastLine = i
		headerLines = append(headerLines, lines[i-1])
		covered[i] = true
	}
	if firstLine == 0 {
		return nil
	}

	content := strings.Join(headerLines, "\n")
	if strings.TrimSpace(content) == "" {
		return nil
	}

	// Trim an oversized header from the bottom; signatures and fields live
	// at the top.
	for EstimateTokens(content, file.Language) > c.contentBudget() && len(headerLines) > 1 {
		headerLines = headerLines[:len(headerLines)-1]
		content = strings.Join(headerLines, "\n")
	}

	symbolPath := parser.SymbolPath(cont.ScopePath, cont.Name, ".")
	chunk := c.build(file, lines, cont, symbolPath, firstLine, lastLine, content)
	return &chunk
}

// gapChunks covers lines no element claimed.
func (c *Chunker) gapChunks(file *File, lines []string, covered []bool) []Chunk {
	var chunks []Chunk

	gapStart := 0
	flush := func(end int) {
		if gapStart == 0 {
			return
		}
		content := joinLines(lines, gapStart, end)
		if strings.TrimSpace(content) != "" {
			elem := parser.Element{
				Kind:       parser.KindModule,
				Visibility: parser.VisibilityPrivate,
				StartLine:  gapStart,
				EndLine:    end,
			}
			for _, s := range c.splitSpans(lines, gapStart, end, file.Language) {
				chunks = append(chunks, c.build(file, lines, elem, "", s.start, s.end,
					joinLines(lines, s.start, s.end)))
			}
		}
		gapStart = 0
	}

	for i := 1; i <= len(lines); i++ {
		if covered[i] || strings.TrimSpace(lines[i-1]) == "" {
			if gapStart != 0 && covered[i] {
				flush(i - 1)
			}
			continue
		}
		if gapStart == 0 {
			gapStart = i
		}
	}
	flush(len(lines))

	return chunks
}

// build assembles the final chunk: synthetic header, backward overlap,
// content, forward overlap.
func (c *Chunker) build(file *File, lines []string, elem parser.Element, symbolPath string, startLine, endLine int, content string) Chunk {
	header := syntheticHeader(file.Language, symbolPath, elem.Kind)
	backward := c.overlap(lines, startLine-c.opts.BackwardOverlapLines, startLine-1,
		c.opts.BackwardOverlapTokens, file.Language, true)
	forward := c.overlap(lines, endLine+1, endLine+c.opts.ForwardOverlapLines,
		c.opts.ForwardOverlapTokens, file.Language, false)

	assemble := func(back, fwd string) string {
		var sb strings.Builder
		sb.WriteString(header)
		if back != "" {
			sb.WriteString(back)
			sb.WriteString("\n")
		}
		sb.WriteString(content)
		if fwd != "" {
			sb.WriteString("\n")
			sb.WriteString(fwd)
		}
		return sb.String()
	}

	// Overlap is context, not content: it is dropped before the chunk is
	// allowed to exceed the token budget.
	enriched := assemble(backward, forward)
	if EstimateTokens(enriched, file.Language) > c.opts.MaxTokens {
		enriched = assemble(backward, "")
	}
	if EstimateTokens(enriched, file.Language) > c.opts.MaxTokens {
		enriched = assemble("", "")
	}

	return Chunk{
		SymbolPath: symbolPath,
		Kind:       elem.Kind,
		Visibility: elem.Visibility,
		StartLine:  startLine,
		EndLine:    endLine,
		Content:    enriched,
		DocComment: elem.DocComment,
		References: elem.References,
		TokenCount: EstimateTokens(enriched, file.Language),
		Weight:     Weight(elem.Kind, elem.Visibility, elem.Name),
	}
}

// overlap collects up to the line and token budget from [from, to].
// Backward overlap keeps the lines closest to the chunk (the tail of the
// range); forward overlap keeps the head.
func (c *Chunker) overlap(lines []string, from, to, tokenBudget int, language string, backward bool) string {
	if from < 1 {
		from = 1
	}
	if to > len(lines) {
		to = len(lines)
	}
	if from > to || tokenBudget <= 0 {
		return ""
	}

	var picked []string
	tokens := 0
	if backward {
		for i := to; i >= from; i-- {
			t := EstimateTokens(lines[i-1], language) + 1
			if tokens+t > tokenBudget {
				break
			}
			picked = append([]string{lines[i-1]}, picked...)
			tokens += t
		}
	} else {
		for i := from; i <= to; i++ {
			t := EstimateTokens(lines[i-1], language) + 1
			if tokens+t > tokenBudget {
				break
			}
			picked = append(picked, lines[i-1])
			tokens += t
		}
	}

	return strings.Join(picked, "\n")
}

// syntheticHeader builds the retrieval enrichment prefix.
func syntheticHeader(language, symbolPath string, kind parser.ElementKind) string {
	if symbolPath == "" {
		symbolPath = "(module)"
	}
	return fmt.Sprintf("[%s] %s: %s\n", language, symbolPath, kind)
}

// joinLines joins the inclusive 1-indexed range [start, end].
func joinLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

// markCovered marks the inclusive 1-indexed range as covered.
func markCovered(covered []bool, start, end int) {
	for i := start; i <= end && i < len(covered); i++ {
		if i >= 1 {
			covered[i] = true
		}
	}
}
