package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/docdex/docdex/internal/errors"
)

// embeddingText builds the text actually sent to the embedder. The
// header lines boost title, URL and section path signal in the vector
// without being stored as chunk content.
func embeddingText(doc Document) string {
	var b strings.Builder
	b.WriteString("<title>")
	b.WriteString(doc.Metadata.Title)
	b.WriteString("</title>\n<url>")
	b.WriteString(doc.Metadata.URL)
	b.WriteString("</url>\n<path>")
	b.WriteString(strings.Join(doc.Metadata.Path, " > "))
	b.WriteString("</path>\n")
	b.WriteString(doc.Content)
	return b.String()
}

// AddDocuments embeds and persists docs under (library, version) in a
// single transaction. Document order becomes sort_order, so a page's
// chunks must be passed in document order.
func (s *Store) AddDocuments(ctx context.Context, library, version string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	library = strings.ToLower(library)
	version = strings.ToLower(version)

	for i, doc := range docs {
		if strings.TrimSpace(doc.Metadata.URL) == "" {
			return errors.Newf(errors.CodeEmptyURL, "document %d has no URL", i)
		}
	}

	vectors, err := s.embedAll(ctx, docs)
	if err != nil {
		return fmt.Errorf("embed %d documents: %w", len(docs), err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	libraryID, err := s.libraryID(ctx, tx, library)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for i, doc := range docs {
		metaJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for document %d: %w", i, err)
		}

		path := doc.Metadata.Path
		var parent []string
		if len(path) > 0 {
			parent = path[:len(path)-1]
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO documents (library_id, version, url, content, metadata, path, path_depth, parent_path, sort_order, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			libraryID, version, doc.Metadata.URL, doc.Content, string(metaJSON),
			pathJSON(path), len(path), pathJSON(parent), i, now)
		if err != nil {
			return fmt.Errorf("insert document %d: %w", i, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents_fts (rowid, title, url, path, content)
			VALUES (?, ?, ?, ?, ?)`,
			id, doc.Metadata.Title, doc.Metadata.URL, strings.Join(path, " > "), doc.Content); err != nil {
			return fmt.Errorf("index document %d: %w", i, err)
		}

		blob, err := encodeVector(vectors[i])
		if err != nil {
			return fmt.Errorf("encode vector for document %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents_vec (id, embedding) VALUES (?, ?)`, id, blob); err != nil {
			return fmt.Errorf("store vector for document %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.graphs.invalidate(libraryID, version)
	s.logger.Debug("documents added",
		slog.String("library", library),
		slog.String("version", version),
		slog.Int("count", len(docs)))
	return nil
}

// embedAll runs the embedder over all documents in batches.
func (s *Store) embedAll(ctx context.Context, docs []Document) ([][]float32, error) {
	vectors := make([][]float32, 0, len(docs))
	for start := 0; start < len(docs); start += s.batch {
		end := min(start+s.batch, len(docs))
		texts := make([]string, 0, end-start)
		for _, doc := range docs[start:end] {
			texts = append(texts, embeddingText(doc))
		}
		batch, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// DeleteDocuments atomically removes every chunk for (library, version)
// together with its FTS and vector rows, returning the removed count.
func (s *Store) DeleteDocuments(ctx context.Context, library, version string) (int, error) {
	library = strings.ToLower(library)
	version = strings.ToLower(version)

	libraryID, err := s.lookupLibraryID(ctx, library)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM documents_fts WHERE rowid IN (
			SELECT id FROM documents WHERE library_id = ? AND version = ?)`, libraryID, version); err != nil {
		return 0, fmt.Errorf("delete fts rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM documents_vec WHERE id IN (
			SELECT id FROM documents WHERE library_id = ? AND version = ?)`, libraryID, version); err != nil {
		return 0, fmt.Errorf("delete vector rows: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM documents WHERE library_id = ? AND version = ?`, libraryID, version)
	if err != nil {
		return 0, fmt.Errorf("delete documents: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.graphs.invalidate(libraryID, version)
	s.logger.Info("documents deleted",
		slog.String("library", library),
		slog.String("version", version),
		slog.Int64("count", count))
	return int(count), nil
}
