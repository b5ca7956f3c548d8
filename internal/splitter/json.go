package splitter

import (
	"encoding/json"
	"sort"
)

// JSONSplitter splits a JSON document into independently parseable
// chunks. Objects and arrays over the budget are descended into; a
// fragment that fits is emitted wrapped under its key, so every chunk
// parses on its own and the section path records where it came from.
type JSONSplitter struct {
	maxChunkSize int
}

// NewJSONSplitter creates a splitter with the given chunk budget.
func NewJSONSplitter(maxChunkSize int) *JSONSplitter {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	return &JSONSplitter{maxChunkSize: maxChunkSize}
}

// Split parses raw and recursively partitions it. Invalid JSON is
// returned verbatim as a single chunk so nothing is silently dropped.
func (s *JSONSplitter) Split(raw []byte) []ContentChunk {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return []ContentChunk{{Content: string(raw), Section: Section{Level: 0}}}
	}

	var chunks []ContentChunk
	s.walk(value, nil, &chunks)
	return chunks
}

func (s *JSONSplitter) walk(value any, path []string, out *[]ContentChunk) {
	encoded := marshalIndent(value)
	if len(encoded) <= s.maxChunkSize {
		s.emit(encoded, path, out)
		return
	}

	switch v := value.(type) {
	case map[string]any:
		for _, key := range sortedKeys(v) {
			childPath := append(append([]string(nil), path...), key)
			wrapped := marshalIndent(map[string]any{key: v[key]})
			if len(wrapped) <= s.maxChunkSize {
				s.emit(wrapped, childPath, out)
				continue
			}
			s.walk(v[key], childPath, out)
		}
	case []any:
		s.walkArray(v, path, out)
	default:
		// A scalar over budget (a very long string) stays whole; JSON
		// validity beats the size budget.
		s.emit(encoded, path, out)
	}
}

// walkArray packs consecutive elements into budget-sized sub-arrays.
// Elements too large on their own recurse individually.
func (s *JSONSplitter) walkArray(items []any, path []string, out *[]ContentChunk) {
	var batch []any
	batchSize := 2 // brackets

	flush := func() {
		if len(batch) > 0 {
			s.emit(marshalIndent(batch), path, out)
			batch = nil
			batchSize = 2
		}
	}

	for _, item := range items {
		encoded := marshalIndent(item)
		if len(encoded) > s.maxChunkSize {
			flush()
			s.walk(item, path, out)
			continue
		}
		if batchSize+len(encoded)+1 > s.maxChunkSize {
			flush()
		}
		batch = append(batch, item)
		batchSize += len(encoded) + 1
	}
	flush()
}

func (s *JSONSplitter) emit(content string, path []string, out *[]ContentChunk) {
	*out = append(*out, ContentChunk{
		Content: content,
		Section: Section{Level: len(path), Path: append([]string(nil), path...)},
	})
}

func marshalIndent(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
