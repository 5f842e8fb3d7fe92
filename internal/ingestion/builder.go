// Package ingestion builds the knowledge index. It reads the markdown
// documents of the knowledge directory, chunks them, embeds every chunk, and
// assembles a fresh rag.FlatIndex which can be persisted as an on-disk
// snapshot. Rebuilds are always total: nothing from a previous index is kept.
// The builder is invoked by `folio ingest` and lazily by the assistant when no
// usable snapshot exists.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/folio-go/internal/chunker"
	"github.com/54b3r/folio-go/internal/logging"
	"github.com/54b3r/folio-go/internal/rag"
)

// ErrNoDocuments is returned when the knowledge directory is missing or
// yields no chunks. The caller decides whether this is fatal.
var ErrNoDocuments = errors.New("ingestion: no documents to index")

// Config holds the configuration for the index builder.
type Config struct {
	// BatchSize is the number of chunks sent per Embed call.
	// Defaults to 16 if zero.
	BatchSize int

	// Concurrency is the maximum number of Embed calls in flight.
	// Defaults to 4 if zero.
	Concurrency int

	// EmbeddingModel is recorded in the snapshot metadata.
	EmbeddingModel string
}

// Builder orchestrates the load → chunk → embed → index flow.
type Builder struct {
	// embedder converts chunk text into dense vectors.
	embedder rag.Embedder

	// chunker splits each document.
	chunker *chunker.Chunker

	// cfg holds the resolved builder configuration.
	cfg *Config
}

// NewBuilder constructs a Builder from the provided dependencies and config.
func NewBuilder(embedder rag.Embedder, c *chunker.Chunker, cfg *Config) (*Builder, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if c == nil {
		c = chunker.New(chunker.DefaultSize, chunker.DefaultOverlap)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Builder{embedder: embedder, chunker: c, cfg: cfg}, nil
}

// Build indexes every *.md file directly inside docsDir. Files are processed
// in name order and chunks keep that order in the index. A missing directory
// or one with no usable text returns an empty index and [ErrNoDocuments].
func (b *Builder) Build(ctx context.Context, docsDir string) (*rag.FlatIndex, error) {
	log := logging.FromContext(ctx)

	chunks, err := b.LoadChunks(docsDir)
	if err != nil {
		return rag.NewFlatIndex(), err
	}
	log.Info("ingestion: documents chunked",
		slog.String("docs_dir", docsDir),
		slog.Int("chunks", len(chunks)),
	)

	vectors, err := b.embedAll(ctx, chunks)
	if err != nil {
		return nil, err
	}

	idx := rag.NewFlatIndex()
	if err := idx.Add(vectors, chunks); err != nil {
		return nil, fmt.Errorf("ingestion: assemble index: %w", err)
	}

	log.Info("ingestion: index built",
		slog.Int("chunks", idx.Len()),
		slog.Int("dimension", idx.Dimension()),
	)
	return idx, nil
}

// BuildAndPersist runs Build and writes the result to indexDir, replacing any
// previous snapshot. Nothing is written when Build fails.
func (b *Builder) BuildAndPersist(ctx context.Context, docsDir, indexDir string) (*rag.FlatIndex, error) {
	idx, err := b.Build(ctx, docsDir)
	if err != nil {
		return idx, err
	}
	if err := SaveSnapshot(ctx, indexDir, idx, b.cfg.EmbeddingModel); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("ingestion: snapshot written", slog.String("index_dir", indexDir))
	return idx, nil
}

// LoadChunks reads and chunks every *.md file directly inside docsDir, with
// each chunk attributed to its file name.
func (b *Builder) LoadChunks(docsDir string) ([]rag.Chunk, error) {
	entries, err := os.ReadDir(docsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("ingestion: %s does not exist: %w", docsDir, ErrNoDocuments)
		}
		return nil, fmt.Errorf("ingestion: read %s: %w", docsDir, err)
	}

	var chunks []rag.Chunk
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(docsDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("ingestion: read %s: %w", e.Name(), err)
		}
		chunks = append(chunks, b.chunker.Split(string(data), e.Name())...)
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("ingestion: %s: %w", docsDir, ErrNoDocuments)
	}
	return chunks, nil
}

// embedAll embeds chunks in batches with bounded concurrency. The returned
// vectors are parallel to chunks.
func (b *Builder) embedAll(ctx context.Context, chunks []rag.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	for start := 0; start < len(chunks); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Content)
			}
			out, err := b.embedder.Embed(gctx, texts)
			if err != nil {
				return fmt.Errorf("ingestion: embedding chunks %d-%d failed: %w", start, end-1, err)
			}
			if len(out) != len(texts) {
				return fmt.Errorf("ingestion: embedder returned %d vectors for %d chunks", len(out), len(texts))
			}
			copy(vectors[start:end], out)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
