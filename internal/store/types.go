// Package store persists documentation chunks in SQLite and answers
// hybrid full-text plus vector search over them.
package store

import (
	"encoding/json"
	"time"
)

// VectorDimensions is the fixed width of persisted embeddings. Models
// with a smaller native dimension are zero-padded up to this width.
const VectorDimensions = 1536

// rrfK is the rank-fusion smoothing constant. 60 is the value from the
// original RRF paper and works well without tuning.
const rrfK = 60

// Metadata is the structured record attached to every chunk. Path and
// Level place the chunk in its page's heading hierarchy; the rank and
// score fields are populated only on search results.
type Metadata struct {
	Title string   `json:"title"`
	URL   string   `json:"url"`
	Path  []string `json:"path,omitempty"`
	Level int      `json:"level,omitempty"`

	// Extra carries processor-supplied fields that the store passes
	// through untouched.
	Extra map[string]string `json:"extra,omitempty"`

	Score   float64 `json:"score,omitempty"`
	VecRank int     `json:"vec_rank,omitempty"`
	FTSRank int     `json:"fts_rank,omitempty"`
}

// Document is one chunk to be inserted, as produced by the splitter and
// decorated by the processor.
type Document struct {
	Content  string
	Metadata Metadata
}

// Chunk is a stored document row.
type Chunk struct {
	ID        int64
	Library   string
	Version   string
	URL       string
	Content   string
	Metadata  Metadata
	SortOrder int
	IndexedAt time.Time
}

// VersionDetail summarizes one indexed (library, version) pair.
type VersionDetail struct {
	Version        string    `json:"version"`
	DocumentCount  int       `json:"document_count"`
	UniqueURLCount int       `json:"unique_url_count"`
	IndexedAt      time.Time `json:"indexed_at"`
}

// pathJSON canonicalizes a heading path for storage and comparison.
// Equal paths always serialize to the same string.
func pathJSON(path []string) string {
	if len(path) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(path)
	return string(data)
}
