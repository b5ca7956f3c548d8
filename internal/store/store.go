package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	docdexembed "github.com/docdex/docdex/internal/embed"
	"github.com/docdex/docdex/internal/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config configures the document store.
type Config struct {
	// Path is the SQLite database file. Empty selects an in-memory
	// database for testing.
	Path string

	// Embedder produces document and query vectors. Its native
	// dimension must not exceed VectorDimensions.
	Embedder docdexembed.Embedder

	// EmbedBatchSize bounds how many texts go to the embedder per call.
	EmbedBatchSize int

	Logger *slog.Logger
}

// Store persists chunks in SQLite, maintaining an FTS5 index and an
// embedding table, with per-partition HNSW graphs built in memory on
// demand. All methods are safe for concurrent use.
type Store struct {
	db       *sql.DB
	embedder docdexembed.Embedder
	batch    int
	logger   *slog.Logger
	fileLock *flock.Flock

	graphs *graphCache
}

// New opens (creating if needed) the database at cfg.Path, acquires the
// directory lock, runs pending migrations and validates the embedder's
// dimension. Dimension validation happens before any write path exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("store: embedder is required")
	}
	if dims := cfg.Embedder.Dimensions(); dims > VectorDimensions {
		return nil, errors.Newf(errors.CodeDimensionError,
			"embedding model produces %d dimensions, store supports at most %d", dims, VectorDimensions)
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = docdexembed.DefaultBatchSize
	}
	if cfg.EmbedBatchSize > docdexembed.MaxBatchSize {
		cfg.EmbedBatchSize = docdexembed.MaxBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var (
		dsn      string
		fileLock *flock.Flock
	)
	if cfg.Path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", dir, err)
		}

		// One process per database file. A second opener fails fast
		// instead of fighting over the WAL.
		fileLock = flock.New(cfg.Path + ".lock")
		locked, err := fileLock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire database lock: %w", err)
		}
		if !locked {
			return nil, errors.Newf(errors.CodeBusy, "database %s is locked by another process", cfg.Path)
		}

		dsn = cfg.Path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		unlock(fileLock)
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer: SQLite serializes writes anyway, and one connection
	// avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			unlock(fileLock)
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		unlock(fileLock)
		return nil, err
	}

	s := &Store{
		db:       db,
		embedder: cfg.Embedder,
		batch:    cfg.EmbedBatchSize,
		logger:   cfg.Logger,
		fileLock: fileLock,
		graphs:   newGraphCache(),
	}

	cfg.Logger.Info("document store ready",
		slog.String("path", cfg.Path),
		slog.String("model", cfg.Embedder.ModelName()),
		slog.Int("dimensions", cfg.Embedder.Dimensions()))

	return s, nil
}

// migrate applies pending schema migrations, retrying on transient lock
// contention from a concurrently closing process.
func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	goose.SetTableName("_schema_migrations")
	if err := goose.SetDialect("sqlite3"); err != nil {
		return errors.Wrap(errors.CodeMigrationFailed, err)
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := goose.UpContext(ctx, db, "migrations"); err != nil {
			if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(errors.CodeMigrationFailed, err)
	}
	return nil
}

// Embedder exposes the configured embedder, used by the retriever for
// query embedding through the same cache.
func (s *Store) Embedder() docdexembed.Embedder { return s.embedder }

// Close closes the database and releases the directory lock.
func (s *Store) Close() error {
	err := s.db.Close()
	unlock(s.fileLock)
	return err
}

func unlock(l *flock.Flock) {
	if l != nil {
		_ = l.Unlock()
	}
}

// libraryID returns the id for name, creating the row if absent.
// Names are stored lowercase.
func (s *Store) libraryID(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO libraries (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("allocate library %q: %w", name, err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM libraries WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("look up library %q: %w", name, err)
	}
	return id, nil
}

// lookupLibraryID resolves a library name outside a transaction.
// sql.ErrNoRows propagates to callers that treat absence as empty.
func (s *Store) lookupLibraryID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM libraries WHERE name = ?`, strings.ToLower(name)).Scan(&id)
	return id, err
}
