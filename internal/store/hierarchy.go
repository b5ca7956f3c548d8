package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// chunkColumns is the select list every chunk query shares; scanChunk
// expects exactly this order.
const chunkColumns = `d.id, l.name, d.version, d.url, d.content, d.metadata, d.sort_order, d.indexed_at`

func scanChunk(rows *sql.Rows) (Chunk, error) {
	var (
		chunk    Chunk
		metaJSON string
		indexed  time.Time
	)
	if err := rows.Scan(&chunk.ID, &chunk.Library, &chunk.Version, &chunk.URL,
		&chunk.Content, &metaJSON, &chunk.SortOrder, &indexed); err != nil {
		return Chunk{}, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &chunk.Metadata); err != nil {
		return Chunk{}, fmt.Errorf("chunk %d: decode metadata: %w", chunk.ID, err)
	}
	chunk.IndexedAt = indexed
	return chunk, nil
}

// queryChunks runs a chunk query and scans every row.
func (s *Store) queryChunks(ctx context.Context, query string, args ...any) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// FindParent returns the chunk's closest ancestor on the same page: the
// row whose path is the chunk's path minus its last element, with the
// greatest sort_order still below the chunk's. Returns nil for chunks
// with an empty path.
func (s *Store) FindParent(ctx context.Context, c Chunk) (*Chunk, error) {
	if len(c.Metadata.Path) == 0 {
		return nil, nil
	}
	parentPath := pathJSON(c.Metadata.Path[:len(c.Metadata.Path)-1])

	chunks, err := s.queryChunks(ctx, `
		SELECT `+chunkColumns+`
		FROM documents d
		JOIN libraries l ON l.id = d.library_id
		WHERE l.name = ? AND d.version = ? AND d.url = ?
		  AND d.path = ? AND d.sort_order < ?
		ORDER BY d.sort_order DESC
		LIMIT 1`,
		strings.ToLower(c.Library), strings.ToLower(c.Version), c.URL, parentPath, c.SortOrder)
	if err != nil || len(chunks) == 0 {
		return nil, err
	}
	return &chunks[0], nil
}

// FindPrecedingSiblings returns up to n chunks sharing the chunk's page
// and path with smaller sort_order, in ascending order.
func (s *Store) FindPrecedingSiblings(ctx context.Context, c Chunk, n int) ([]Chunk, error) {
	if n <= 0 {
		return nil, nil
	}
	// Inner query takes the n closest predecessors; outer restores
	// document order.
	return s.queryChunks(ctx, `
		SELECT * FROM (
			SELECT `+chunkColumns+`
			FROM documents d
			JOIN libraries l ON l.id = d.library_id
			WHERE l.name = ? AND d.version = ? AND d.url = ?
			  AND d.path = ? AND d.sort_order < ?
			ORDER BY d.sort_order DESC
			LIMIT ?)
		ORDER BY sort_order ASC`,
		strings.ToLower(c.Library), strings.ToLower(c.Version), c.URL,
		pathJSON(c.Metadata.Path), c.SortOrder, n)
}

// FindSubsequentSiblings returns up to n chunks sharing the chunk's page
// and path with greater sort_order, in ascending order.
func (s *Store) FindSubsequentSiblings(ctx context.Context, c Chunk, n int) ([]Chunk, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.queryChunks(ctx, `
		SELECT `+chunkColumns+`
		FROM documents d
		JOIN libraries l ON l.id = d.library_id
		WHERE l.name = ? AND d.version = ? AND d.url = ?
		  AND d.path = ? AND d.sort_order > ?
		ORDER BY d.sort_order ASC
		LIMIT ?`,
		strings.ToLower(c.Library), strings.ToLower(c.Version), c.URL,
		pathJSON(c.Metadata.Path), c.SortOrder, n)
}

// FindChildren returns up to n chunks one level below the chunk on the
// same page, later in document order, ascending.
func (s *Store) FindChildren(ctx context.Context, c Chunk, n int) ([]Chunk, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.queryChunks(ctx, `
		SELECT `+chunkColumns+`
		FROM documents d
		JOIN libraries l ON l.id = d.library_id
		WHERE l.name = ? AND d.version = ? AND d.url = ?
		  AND d.parent_path = ? AND d.path_depth = ? AND d.sort_order > ?
		ORDER BY d.sort_order ASC
		LIMIT ?`,
		strings.ToLower(c.Library), strings.ToLower(c.Version), c.URL,
		pathJSON(c.Metadata.Path), len(c.Metadata.Path)+1, c.SortOrder, n)
}

// FindChunksByIDs loads the given chunks within (library, version),
// ordered by sort_order. Unknown ids are silently skipped.
func (s *Store) FindChunksByIDs(ctx context.Context, library, version string, ids []int64) ([]Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := []any{strings.ToLower(library), strings.ToLower(version)}
	for _, id := range ids {
		args = append(args, id)
	}

	return s.queryChunks(ctx, fmt.Sprintf(`
		SELECT `+chunkColumns+`
		FROM documents d
		JOIN libraries l ON l.id = d.library_id
		WHERE l.name = ? AND d.version = ? AND d.id IN (%s)
		ORDER BY d.sort_order ASC`, placeholders), args...)
}
