package splitter

import (
	"regexp"
	"strings"
)

// MarkdownSplitter splits Markdown into header-delimited chunks. It is
// stateless and safe for concurrent use.
type MarkdownSplitter struct {
	maxChunkSize int
}

var (
	headerPattern    = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)
	tableRowPattern  = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	tableDelimiterRe = regexp.MustCompile(`^\s*\|[\s\-:|]+\|\s*$`)
)

// NewMarkdownSplitter creates a splitter with the given chunk budget.
// A non-positive budget selects DefaultMaxChunkSize.
func NewMarkdownSplitter(maxChunkSize int) *MarkdownSplitter {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	return &MarkdownSplitter{maxChunkSize: maxChunkSize}
}

// Split breaks markdown into chunks, one or more per heading section.
// The heading line itself leads its section's first chunk, and each
// chunk's path runs from the page root to its own heading.
func (s *MarkdownSplitter) Split(markdown string) []ContentChunk {
	if strings.TrimSpace(markdown) == "" {
		return nil
	}

	var chunks []ContentChunk
	for _, sec := range parseSections(markdown) {
		content := strings.TrimRight(sec.content, "\n")
		if strings.TrimSpace(content) == "" {
			continue
		}

		meta := Section{Level: sec.level, Path: sec.path}
		if len(content) <= s.maxChunkSize {
			chunks = append(chunks, ContentChunk{Content: content, Section: meta})
			continue
		}
		for _, part := range s.splitLargeSection(content) {
			chunks = append(chunks, ContentChunk{Content: part, Section: meta})
		}
	}
	return chunks
}

// mdSection is a contiguous run of lines under one heading.
type mdSection struct {
	level   int
	path    []string
	content string
}

// parseSections walks the document line by line, maintaining a heading
// stack. Heading markers inside fenced code blocks are ignored.
func parseSections(markdown string) []*mdSection {
	lines := strings.Split(markdown, "\n")

	var (
		sections []*mdSection
		current  = &mdSection{level: 0}
		body     strings.Builder
		stack    []stackEntry
		inFence  bool
	)

	flush := func() {
		current.content = body.String()
		sections = append(sections, current)
		body.Reset()
	}

	for _, line := range lines {
		if isFenceDelimiter(line) {
			inFence = !inFence
		}

		if !inFence {
			if m := headerPattern.FindStringSubmatch(line); m != nil {
				flush()

				level := len(m[1])
				title := m[2]

				// Pop headings at or below this level, then push.
				for len(stack) > 0 && stack[len(stack)-1].level >= level {
					stack = stack[:len(stack)-1]
				}
				stack = append(stack, stackEntry{level: level, title: title})

				path := make([]string, len(stack))
				for i, e := range stack {
					path[i] = e.title
				}
				current = &mdSection{level: level, path: path}
			}
		}

		body.WriteString(line)
		body.WriteString("\n")
	}
	flush()

	return sections
}

type stackEntry struct {
	level int
	title string
}

func isFenceDelimiter(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	return strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")
}

// splitLargeSection splits an oversized section on paragraph boundaries,
// keeping fenced code blocks intact and repeating table headers across
// table continuations.
func (s *MarkdownSplitter) splitLargeSection(content string) []string {
	blocks := splitBlocks(content)

	var (
		parts   []string
		current strings.Builder
	)
	emit := func() {
		if text := strings.TrimSpace(current.String()); text != "" {
			parts = append(parts, text)
		}
		current.Reset()
	}

	for _, block := range blocks {
		if isTableBlock(block) && len(block) > s.maxChunkSize {
			emit()
			parts = append(parts, s.splitTable(block)...)
			continue
		}

		if current.Len() > 0 && current.Len()+len(block)+2 > s.maxChunkSize {
			emit()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(block)
	}
	emit()

	return parts
}

// splitBlocks splits on blank lines while treating an entire fenced code
// block or table as one atomic block.
func splitBlocks(content string) []string {
	lines := strings.Split(content, "\n")

	var (
		blocks  []string
		current []string
		inFence bool
	)
	emit := func() {
		if block := strings.TrimRight(strings.Join(current, "\n"), "\n"); strings.TrimSpace(block) != "" {
			blocks = append(blocks, block)
		}
		current = current[:0]
	}

	for _, line := range lines {
		fenceLine := isFenceDelimiter(line)
		switch {
		case inFence:
			current = append(current, line)
			if fenceLine {
				inFence = false
				emit()
			}
		case fenceLine:
			emit()
			current = append(current, line)
			inFence = true
		case strings.TrimSpace(line) == "":
			// Blank lines between table rows do not occur; a blank line
			// always terminates the current block.
			emit()
		default:
			// A table row following a non-table block starts a new block,
			// so the table stays atomic.
			if tableRowPattern.MatchString(line) && len(current) > 0 && !tableRowPattern.MatchString(current[len(current)-1]) {
				emit()
			}
			current = append(current, line)
		}
	}
	emit()

	return blocks
}

func isTableBlock(block string) bool {
	lines := strings.SplitN(block, "\n", 3)
	return len(lines) >= 2 && tableRowPattern.MatchString(lines[0]) && tableDelimiterRe.MatchString(lines[1])
}

// splitTable slices a table into budget-sized runs of rows, repeating the
// header and delimiter rows at the top of every slice.
func (s *MarkdownSplitter) splitTable(table string) []string {
	lines := strings.Split(table, "\n")
	if len(lines) < 2 {
		return []string{table}
	}

	header := lines[0] + "\n" + lines[1]
	rows := lines[2:]

	var (
		parts   []string
		current = []string{header}
		size    = len(header)
	)
	emit := func() {
		if len(current) > 1 {
			parts = append(parts, strings.Join(current, "\n"))
		}
		current = []string{header}
		size = len(header)
	}

	for _, row := range rows {
		if size+len(row)+1 > s.maxChunkSize && len(current) > 1 {
			emit()
		}
		current = append(current, row)
		size += len(row) + 1
	}
	emit()

	return parts
}
