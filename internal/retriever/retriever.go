// Package retriever expands hybrid search hits into coherent passages
// using the chunks' heading hierarchy.
package retriever

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/docdex/docdex/internal/store"
)

// Expansion bounds. Each hit pulls in its parent plus a window of
// siblings and children; larger windows inflate responses without
// adding much relevant context.
const (
	maxPrecedingSiblings  = 2
	maxSubsequentSiblings = 2
	maxChildren           = 5
)

// SearchResult is one expanded passage, assembled from every chunk
// related to the hits on a single page.
type SearchResult struct {
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Retriever answers queries against the document store.
type Retriever struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a Retriever backed by s.
func New(s *store.Store, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: s, logger: logger}
}

// urlGroup accumulates the related chunk ids for all hits on one page.
type urlGroup struct {
	ids   map[int64]struct{}
	score float64
}

// Search runs a hybrid search and expands each hit with its parent,
// nearby siblings and children. Hits on the same page merge into one
// result carrying the best hit's score. Results come back sorted by
// descending score.
func (r *Retriever) Search(ctx context.Context, library, version, query string, limit int) ([]SearchResult, error) {
	hits, err := r.store.FindByContent(ctx, library, version, query, limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	groups := make(map[string]*urlGroup)
	for _, hit := range hits {
		group, ok := groups[hit.URL]
		if !ok {
			group = &urlGroup{ids: make(map[int64]struct{})}
			groups[hit.URL] = group
		}
		if hit.Metadata.Score > group.score {
			group.score = hit.Metadata.Score
		}

		related, err := r.relatedIDs(ctx, hit)
		if err != nil {
			return nil, err
		}
		for _, id := range related {
			group.ids[id] = struct{}{}
		}
	}

	results := make([]SearchResult, 0, len(groups))
	for url, group := range groups {
		ids := make([]int64, 0, len(group.ids))
		for id := range group.ids {
			ids = append(ids, id)
		}

		// One round-trip per page; chunks come back in document order.
		chunks, err := r.store.FindChunksByIDs(ctx, library, version, ids)
		if err != nil {
			return nil, err
		}

		parts := make([]string, 0, len(chunks))
		for _, c := range chunks {
			parts = append(parts, c.Content)
		}
		results = append(results, SearchResult{
			URL:     url,
			Content: strings.Join(parts, "\n\n"),
			Score:   group.score,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	r.logger.Debug("search expanded",
		slog.String("library", library),
		slog.String("version", version),
		slog.Int("hits", len(hits)),
		slog.Int("results", len(results)))
	return results, nil
}

// relatedIDs collects the hit itself, its parent if any, up to two
// siblings on each side and up to five children.
func (r *Retriever) relatedIDs(ctx context.Context, hit store.Chunk) ([]int64, error) {
	ids := []int64{hit.ID}

	parent, err := r.store.FindParent(ctx, hit)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		ids = append(ids, parent.ID)
	}

	preceding, err := r.store.FindPrecedingSiblings(ctx, hit, maxPrecedingSiblings)
	if err != nil {
		return nil, err
	}
	subsequent, err := r.store.FindSubsequentSiblings(ctx, hit, maxSubsequentSiblings)
	if err != nil {
		return nil, err
	}
	children, err := r.store.FindChildren(ctx, hit, maxChildren)
	if err != nil {
		return nil, err
	}

	for _, c := range preceding {
		ids = append(ids, c.ID)
	}
	for _, c := range subsequent {
		ids = append(ids, c.ID)
	}
	for _, c := range children {
		ids = append(ids, c.ID)
	}
	return ids, nil
}
