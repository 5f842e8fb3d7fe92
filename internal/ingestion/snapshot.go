package ingestion

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/54b3r/folio-go/internal/rag"
	"github.com/54b3r/folio-go/internal/store"
)

// SaveSnapshot writes idx to indexDir as two co-indexed artifacts: the chunk
// database and the vector file. The chunk database is written first so an
// interrupted save leaves the pair with mismatched counts, which
// LoadSnapshot rejects.
func SaveSnapshot(ctx context.Context, indexDir string, idx *rag.FlatIndex, embeddingModel string) error {
	cs, err := store.Open(filepath.Join(indexDir, store.ChunksFile))
	if err != nil {
		return fmt.Errorf("ingestion: save snapshot: %w", err)
	}
	defer cs.Close()

	meta := store.Meta{Dimension: idx.Dimension(), EmbeddingModel: embeddingModel}
	if err := cs.Replace(ctx, idx.Chunks(), meta); err != nil {
		return fmt.Errorf("ingestion: save snapshot: %w", err)
	}
	if err := rag.SaveVectors(filepath.Join(indexDir, rag.VectorsFile), idx); err != nil {
		return fmt.Errorf("ingestion: save snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot. Both artifacts must
// exist ([rag.ErrSnapshotMissing] otherwise) and agree on chunk count and
// dimension ([rag.ErrSnapshotInconsistent] otherwise).
func LoadSnapshot(ctx context.Context, indexDir string) (*rag.FlatIndex, store.Meta, error) {
	vectors, err := rag.LoadVectors(filepath.Join(indexDir, rag.VectorsFile))
	if err != nil {
		return nil, store.Meta{}, err
	}

	cs, err := store.OpenExisting(filepath.Join(indexDir, store.ChunksFile))
	if err != nil {
		return nil, store.Meta{}, err
	}
	defer cs.Close()

	meta, err := cs.Meta(ctx)
	if err != nil {
		return nil, store.Meta{}, err
	}
	chunks, err := cs.All(ctx)
	if err != nil {
		return nil, store.Meta{}, err
	}

	if len(chunks) != len(vectors) || meta.Count != len(chunks) {
		return nil, store.Meta{}, fmt.Errorf("ingestion: %d vectors, %d chunks, meta count %d: %w",
			len(vectors), len(chunks), meta.Count, rag.ErrSnapshotInconsistent)
	}
	if len(vectors) > 0 && len(vectors[0]) != meta.Dimension {
		return nil, store.Meta{}, fmt.Errorf("ingestion: vector dimension %d, meta dimension %d: %w",
			len(vectors[0]), meta.Dimension, rag.ErrSnapshotInconsistent)
	}

	idx := rag.NewFlatIndex()
	if err := idx.Add(vectors, chunks); err != nil {
		return nil, store.Meta{}, fmt.Errorf("ingestion: %w: %w", rag.ErrSnapshotInconsistent, err)
	}
	return idx, meta, nil
}
