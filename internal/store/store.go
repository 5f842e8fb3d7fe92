// Package store provides the SQLite-backed chunk artifact of an index
// snapshot. It holds the text and source of every indexed chunk in index
// order, plus a small metadata record describing the build. The vector
// artifact lives alongside it (see rag.SaveVectors); the two are only valid
// together.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/folio-go/internal/rag"
)

// ChunksFile is the file name of the chunk artifact inside an index directory.
const ChunksFile = "chunks.db"

// Meta describes the build that produced a snapshot.
type Meta struct {
	// Dimension is the embedding vector length.
	Dimension int
	// Count is the number of chunks in the snapshot. Ignored by Replace,
	// which records the length of the chunk slice.
	Count int
	// EmbeddingModel names the model the vectors were produced with.
	EmbeddingModel string
	// BuiltAt is when the snapshot was written. Replace uses the current
	// time when zero.
	BuiltAt time.Time
}

// metaRow is the database shape of Meta.
type metaRow struct {
	Dimension      int    `db:"dimension"`
	Count          int    `db:"chunk_count"`
	EmbeddingModel string `db:"embedding_model"`
	BuiltAt        int64  `db:"built_at"`
}

// chunkRow is the database shape of one chunk.
type chunkRow struct {
	Position int    `db:"position"`
	ID       string `db:"id"`
	Source   string `db:"source"`
	Content  string `db:"content"`
}

// ChunkStore persists the chunk artifact. It is safe for concurrent use.
type ChunkStore struct {
	// db is the underlying database handle.
	db *sqlx.DB
}

// Open opens (or creates) a ChunkStore at path and runs the schema migration.
// Use ":memory:" for an in-memory database in tests.
func Open(path string) (*ChunkStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir for %s: %w", path, err)
		}
	}

	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	s := &ChunkStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenExisting opens the store at path only if the file already exists.
// A missing file is reported as [rag.ErrSnapshotMissing].
func OpenExisting(path string) (*ChunkStore, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("store: %s: %w", path, rag.ErrSnapshotMissing)
		}
		return nil, fmt.Errorf("store: stat %s: %w", path, err)
	}
	return Open(path)
}

// migrate creates the schema if it does not already exist.
func (s *ChunkStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chunks (
    position  INTEGER PRIMARY KEY,
    id        TEXT    NOT NULL UNIQUE,
    source    TEXT    NOT NULL,
    content   TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshot_meta (
    singleton        INTEGER PRIMARY KEY CHECK (singleton = 1),
    dimension        INTEGER NOT NULL,
    chunk_count      INTEGER NOT NULL,
    embedding_model  TEXT    NOT NULL,
    built_at         INTEGER NOT NULL  -- Unix timestamp (seconds)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Replace atomically swaps the stored chunks and metadata for a new set.
// chunks[i] is stored at position i.
func (s *ChunkStore) Replace(ctx context.Context, chunks []rag.Chunk, meta Meta) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("store: clear chunks: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM snapshot_meta`); err != nil {
		return fmt.Errorf("store: clear meta: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO chunks (position, id, source, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if _, err = stmt.ExecContext(ctx, i, ChunkID(c.Source, i), c.Source, c.Content); err != nil {
			return fmt.Errorf("store: insert chunk %d: %w", i, err)
		}
	}

	builtAt := meta.BuiltAt
	if builtAt.IsZero() {
		builtAt = time.Now()
	}
	const q = `INSERT INTO snapshot_meta (singleton, dimension, chunk_count, embedding_model, built_at) VALUES (1, ?, ?, ?, ?)`
	if _, err = tx.ExecContext(ctx, q, meta.Dimension, len(chunks), meta.EmbeddingModel, builtAt.Unix()); err != nil {
		return fmt.Errorf("store: insert meta: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// All returns every stored chunk in position order.
func (s *ChunkStore) All(ctx context.Context) ([]rag.Chunk, error) {
	var rows []chunkRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT position, id, source, content FROM chunks ORDER BY position ASC`); err != nil {
		return nil, fmt.Errorf("store: all: %w", err)
	}

	chunks := make([]rag.Chunk, len(rows))
	for i, r := range rows {
		if r.Position != i {
			return nil, fmt.Errorf("store: gap at position %d: %w", i, rag.ErrSnapshotInconsistent)
		}
		chunks[i] = rag.Chunk{Content: r.Content, Source: r.Source}
	}
	return chunks, nil
}

// Count returns the number of stored chunks.
func (s *ChunkStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM chunks`); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Meta returns the metadata of the stored snapshot. A store that has never
// been written reports [rag.ErrSnapshotMissing].
func (s *ChunkStore) Meta(ctx context.Context) (Meta, error) {
	var row metaRow
	err := s.db.GetContext(ctx, &row, `SELECT dimension, chunk_count, embedding_model, built_at FROM snapshot_meta WHERE singleton = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return Meta{}, fmt.Errorf("store: no snapshot metadata: %w", rag.ErrSnapshotMissing)
	}
	if err != nil {
		return Meta{}, fmt.Errorf("store: meta: %w", err)
	}
	return Meta{
		Dimension:      row.Dimension,
		Count:          row.Count,
		EmbeddingModel: row.EmbeddingModel,
		BuiltAt:        time.Unix(row.BuiltAt, 0),
	}, nil
}

// ChunkID returns a deterministic identifier for the chunk at position index
// of the snapshot, derived from its source document.
func ChunkID(source string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", source, index)))
	return fmt.Sprintf("%x", h[:16])
}

// Name returns the dependency label used in readiness responses.
func (s *ChunkStore) Name() string { return "chunk_store" }

// Ping checks that the database is reachable.
func (s *ChunkStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *ChunkStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
