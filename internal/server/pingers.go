package server

import (
	"context"
	"fmt"

	"github.com/54b3r/folio-go/internal/rag"
	"github.com/54b3r/folio-go/internal/store"
)

// IndexPinger reports whether the assistant has a non-empty index.
// It satisfies the Pinger interface and is used by GET /api/ready.
type IndexPinger struct {
	// loaded is typically (*assistant.Assistant).IsLoaded.
	loaded func() bool
}

// NewIndexPinger constructs an IndexPinger over loaded.
func NewIndexPinger(loaded func() bool) *IndexPinger {
	return &IndexPinger{loaded: loaded}
}

// Name returns the dependency label used in readiness responses.
func (p *IndexPinger) Name() string { return "index" }

// Ping returns nil once a non-empty index is ready.
func (p *IndexPinger) Ping(_ context.Context) error {
	if !p.loaded() {
		return rag.ErrIndexUnavailable
	}
	return nil
}

// ChunkStorePinger probes the chunk database of the on-disk snapshot.
// It satisfies the Pinger interface and is used by GET /api/ready.
type ChunkStorePinger struct {
	// path is the chunk database file.
	path string
}

// NewChunkStorePinger constructs a ChunkStorePinger for the database at path.
func NewChunkStorePinger(path string) *ChunkStorePinger {
	return &ChunkStorePinger{path: path}
}

// Name returns the dependency label used in readiness responses.
func (p *ChunkStorePinger) Name() string { return "chunk_store" }

// Ping opens the existing database, runs a round-trip query, and closes it.
// A missing file is reported as an error.
func (p *ChunkStorePinger) Ping(ctx context.Context) error {
	cs, err := store.OpenExisting(p.path)
	if err != nil {
		return err
	}
	defer cs.Close()

	if err := cs.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if _, err := cs.Meta(ctx); err != nil {
		return fmt.Errorf("read snapshot metadata: %w", err)
	}
	return nil
}
