package splitter

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownSplitter_HeadingHierarchy(t *testing.T) {
	md := `# Guide

Intro text.

## Install

Run the installer.

### Linux

Use the tarball.

## Usage

Call the API.
`

	chunks := NewMarkdownSplitter(0).Split(md)
	require.Len(t, chunks, 4)

	assert.Equal(t, []string{"Guide"}, chunks[0].Section.Path)
	assert.Equal(t, 1, chunks[0].Section.Level)
	assert.True(t, strings.HasPrefix(chunks[0].Content, "# Guide"))

	assert.Equal(t, []string{"Guide", "Install"}, chunks[1].Section.Path)
	assert.Equal(t, 2, chunks[1].Section.Level)

	assert.Equal(t, []string{"Guide", "Install", "Linux"}, chunks[2].Section.Path)
	assert.Equal(t, 3, chunks[2].Section.Level)

	// The second h2 pops "Install" and "Linux" off the stack.
	assert.Equal(t, []string{"Guide", "Usage"}, chunks[3].Section.Path)
}

func TestMarkdownSplitter_SkippedHeadingLevel(t *testing.T) {
	md := "# Top\n\nbody\n\n### Deep\n\nmore\n"

	chunks := NewMarkdownSplitter(0).Split(md)
	require.Len(t, chunks, 2)

	// An h3 directly under an h1 yields a two-element path.
	assert.Equal(t, []string{"Top", "Deep"}, chunks[1].Section.Path)
	assert.Equal(t, 3, chunks[1].Section.Level)
}

func TestMarkdownSplitter_PreambleBeforeFirstHeading(t *testing.T) {
	md := "Welcome paragraph.\n\n# First\n\ncontent\n"

	chunks := NewMarkdownSplitter(0).Split(md)
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].Section.Level)
	assert.Empty(t, chunks[0].Section.Path)
	assert.Equal(t, "Welcome paragraph.", chunks[0].Content)
}

func TestMarkdownSplitter_HashInsideCodeFenceIsNotAHeading(t *testing.T) {
	md := "# Real\n\n```sh\n# just a comment\necho hi\n```\n"

	chunks := NewMarkdownSplitter(0).Split(md)
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"Real"}, chunks[0].Section.Path)
	assert.Contains(t, chunks[0].Content, "# just a comment")
}

func TestMarkdownSplitter_LargeSectionSplitsOnParagraphs(t *testing.T) {
	para := strings.Repeat("word ", 30)
	md := "# Big\n\n" + para + "\n\n" + para + "\n\n" + para + "\n"

	chunks := NewMarkdownSplitter(200).Split(md)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.Equal(t, []string{"Big"}, c.Section.Path)
		assert.LessOrEqual(t, len(c.Content), 250)
	}
}

func TestMarkdownSplitter_CodeFenceStaysAtomic(t *testing.T) {
	fence := "```go\nfunc main() {\n\n\tprintln(1)\n}\n```"
	md := "# Code\n\nlead in\n\n" + fence + "\n\ntrailing\n"

	chunks := NewMarkdownSplitter(60).Split(md)

	var found bool
	for _, c := range chunks {
		if strings.Contains(c.Content, "func main()") {
			found = true
			// The blank line inside the fence did not split the block.
			assert.Contains(t, c.Content, "```go")
			assert.True(t, strings.Contains(c.Content, "}\n```"))
		}
	}
	assert.True(t, found)
}

func TestMarkdownSplitter_TableRowsKeepHeaders(t *testing.T) {
	var b strings.Builder
	b.WriteString("# API\n\n| Name | Description |\n|------|-------------|\n")
	for i := 0; i < 40; i++ {
		b.WriteString("| opt | some fairly long description text for the row |\n")
	}

	chunks := NewMarkdownSplitter(300).Split(b.String())
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		if strings.Contains(c.Content, "| opt |") {
			assert.Contains(t, c.Content, "| Name | Description |")
			assert.Contains(t, c.Content, "|------|")
		}
	}
}

func TestMarkdownSplitter_EmptyInput(t *testing.T) {
	assert.Nil(t, NewMarkdownSplitter(0).Split(""))
	assert.Nil(t, NewMarkdownSplitter(0).Split("   \n\t\n"))
}

func TestJSONSplitter_SmallDocumentIsOneChunk(t *testing.T) {
	chunks := NewJSONSplitter(0).Split([]byte(`{"name":"docdex","stars":5}`))
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Section.Level)
	assert.JSONEq(t, `{"name":"docdex","stars":5}`, chunks[0].Content)
}

func TestJSONSplitter_LargeObjectSplitsByKey(t *testing.T) {
	doc := map[string]any{
		"alpha": strings.Repeat("a", 120),
		"beta":  strings.Repeat("b", 120),
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	chunks := NewJSONSplitter(160).Split(raw)
	require.Len(t, chunks, 2)

	// Keys come out in sorted order, each wrapped and parseable.
	assert.Equal(t, []string{"alpha"}, chunks[0].Section.Path)
	assert.Equal(t, []string{"beta"}, chunks[1].Section.Path)
	for _, c := range chunks {
		var parsed map[string]any
		require.NoError(t, json.Unmarshal([]byte(c.Content), &parsed))
		require.Len(t, parsed, 1)
	}
}

func TestJSONSplitter_NestedPath(t *testing.T) {
	doc := map[string]any{
		"outer": map[string]any{
			"inner1": strings.Repeat("x", 120),
			"inner2": strings.Repeat("y", 120),
		},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	chunks := NewJSONSplitter(160).Split(raw)
	require.Len(t, chunks, 2)
	assert.Equal(t, []string{"outer", "inner1"}, chunks[0].Section.Path)
	assert.Equal(t, 2, chunks[0].Section.Level)
}

func TestJSONSplitter_ArrayBatches(t *testing.T) {
	items := make([]any, 30)
	for i := range items {
		items[i] = strings.Repeat("e", 20)
	}
	raw, err := json.Marshal(map[string]any{"items": items})
	require.NoError(t, err)

	chunks := NewJSONSplitter(200).Split(raw)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		var parsed any
		require.NoError(t, json.Unmarshal([]byte(c.Content), &parsed), "chunk must stay parseable")
	}
}

func TestJSONSplitter_InvalidJSONPassesThrough(t *testing.T) {
	chunks := NewJSONSplitter(0).Split([]byte("not json at all"))
	require.Len(t, chunks, 1)
	assert.Equal(t, "not json at all", chunks[0].Content)
}
