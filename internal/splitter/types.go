// Package splitter turns Markdown and JSON documents into ordered,
// hierarchy-aware chunks sized for embedding.
package splitter

// DefaultMaxChunkSize is the chunk budget in bytes of Markdown text.
// Sections larger than this are split on paragraph boundaries.
const DefaultMaxChunkSize = 1500

// Section locates a chunk within the page's heading hierarchy.
type Section struct {
	// Level is the heading depth (1-6); 0 for content before any heading.
	Level int

	// Path is the ordered sequence of heading titles from the page root
	// down to and including the chunk's own section.
	Path []string
}

// ContentChunk is one unit of splitter output. Chunks are emitted in
// document order; a page's chunks reconstruct the page when concatenated.
type ContentChunk struct {
	Content string
	Section Section
}
