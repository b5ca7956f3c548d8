package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// escapeFTSQuery turns arbitrary user input into a single FTS5 phrase.
// Wrapping in double quotes (with inner quotes doubled) neutralizes every
// FTS5 operator: AND, OR, NOT, *, parentheses, column filters.
func escapeFTSQuery(query string) string {
	return `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
}

// ftsHit is one full-text candidate with its BM25 score (lower is better).
type ftsHit struct {
	id    int64
	score float64
}

// searchFTS runs the BM25 branch, weighted title:10, url:1, path:5,
// content:1, constrained to the partition.
func (s *Store) searchFTS(ctx context.Context, libraryID int64, version, query string, k int) ([]ftsHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.rowid, bm25(documents_fts, 10.0, 1.0, 5.0, 1.0) AS score
		FROM documents_fts f
		JOIN documents d ON d.id = f.rowid
		WHERE documents_fts MATCH ?
		  AND d.library_id = ? AND d.version = ?
		ORDER BY score
		LIMIT ?`, escapeFTSQuery(query), libraryID, version, k)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var hits []ftsHit
	for rows.Next() {
		var h ftsHit
		if err := rows.Scan(&h.id, &h.score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// fusedHit accumulates the RRF contributions of one chunk id.
type fusedHit struct {
	id      int64
	score   float64
	vecRank int
	ftsRank int
}

// fuseRanks merges the two branch result lists with Reciprocal Rank
// Fusion and returns the top k by descending fused score.
func fuseRanks(vec []vectorHit, fts []ftsHit, k int) []fusedHit {
	merged := make(map[int64]*fusedHit)
	get := func(id int64) *fusedHit {
		h, ok := merged[id]
		if !ok {
			h = &fusedHit{id: id}
			merged[id] = h
		}
		return h
	}

	for i, v := range vec {
		h := get(v.id)
		h.vecRank = i + 1
		h.score += 1.0 / float64(rrfK+i+1)
	}
	for i, f := range fts {
		h := get(f.id)
		h.ftsRank = i + 1
		h.score += 1.0 / float64(rrfK+i+1)
	}

	fused := make([]fusedHit, 0, len(merged))
	for _, h := range merged {
		fused = append(fused, *h)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].id < fused[j].id
	})
	if len(fused) > k {
		fused = fused[:k]
	}
	return fused
}

// FindByContent answers a hybrid query: vector k-NN and BM25 run
// independently, their rankings are fused with RRF, and the top k
// chunks come back with score and per-branch ranks in their metadata.
func (s *Store) FindByContent(ctx context.Context, library, version, query string, k int) ([]Chunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	library = strings.ToLower(library)
	version = strings.ToLower(version)

	libraryID, err := s.lookupLibraryID(ctx, library)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vecHits, err := s.searchVectors(ctx, libraryID, version, queryVec, k)
	if err != nil {
		return nil, err
	}
	ftsHits, err := s.searchFTS(ctx, libraryID, version, query, k)
	if err != nil {
		return nil, err
	}

	fused := fuseRanks(vecHits, ftsHits, k)
	if len(fused) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(fused))
	for i, h := range fused {
		ids[i] = h.id
	}
	byID, err := s.chunksByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(fused))
	for _, h := range fused {
		chunk, ok := byID[h.id]
		if !ok {
			continue
		}
		chunk.Metadata.Score = h.score
		chunk.Metadata.VecRank = h.vecRank
		chunk.Metadata.FTSRank = h.ftsRank
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// chunksByID loads full chunk rows for the given ids.
func (s *Store) chunksByID(ctx context.Context, ids []int64) (map[int64]Chunk, error) {
	if len(ids) == 0 {
		return map[int64]Chunk{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT d.id, l.name, d.version, d.url, d.content, d.metadata, d.sort_order, d.indexed_at
		FROM documents d
		JOIN libraries l ON l.id = d.library_id
		WHERE d.id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]Chunk, len(ids))
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out[chunk.ID] = chunk
	}
	return out, rows.Err()
}
