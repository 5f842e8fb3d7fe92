package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/folio-go/internal/assistant"
	"github.com/54b3r/folio-go/internal/chunker"
	"github.com/54b3r/folio-go/internal/config"
	"github.com/54b3r/folio-go/internal/confidence"
	"github.com/54b3r/folio-go/internal/embedder"
	"github.com/54b3r/folio-go/internal/ingestion"
	"github.com/54b3r/folio-go/internal/provider"
	"github.com/54b3r/folio-go/internal/rag"
	"github.com/54b3r/folio-go/internal/tracing"
)

// setupTracing registers the Langfuse handler when configured and returns
// the flush function to defer. It is a no-op when keys are absent.
func setupTracing(log *slog.Logger) func() {
	handler, flush, ok := tracing.Setup()
	if !ok {
		log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
		return func() {}
	}
	callbacks.AppendGlobalHandlers(handler)
	log.Info("langfuse tracing enabled")
	return flush
}

// buildIndexBuilder resolves the embedder and wraps it in an index builder
// configured from s.
func buildIndexBuilder(ctx context.Context, s *config.Settings, log *slog.Logger) (rag.Embedder, *ingestion.Builder, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, nil, err
	}
	emb, model, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("provider", embedder.Backend()),
		slog.String("model", model),
	)

	b, err := ingestion.NewBuilder(emb, chunker.New(s.ChunkSize, s.ChunkOverlap), &ingestion.Config{
		BatchSize:      s.EmbeddingBatchSize,
		Concurrency:    s.EmbeddingConcurrency,
		EmbeddingModel: model,
	})
	if err != nil {
		return nil, nil, err
	}
	return emb, b, nil
}

// buildAssistant wires the embedder, chat model, builder, and evaluator into
// an Assistant. The index is not loaded until Init or the first question.
func buildAssistant(ctx context.Context, s *config.Settings, log *slog.Logger) (*assistant.Assistant, error) {
	emb, builder, err := buildIndexBuilder(ctx, s, log)
	if err != nil {
		return nil, err
	}

	chatModel, providerCfg, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	return assistant.New(assistant.Config{
		Embedder:         emb,
		Generator:        provider.NewGenerator(chatModel),
		Builder:          builder,
		Evaluator:        confidence.New(s.ConfidenceThreshold, s.LowConfidencePhrases),
		DocsDir:          s.DocsPath,
		IndexDir:         s.IndexPath,
		MaxHistory:       s.MaxHistory,
		TopK:             s.TopK,
		ProviderTimeout:  s.ProviderTimeout,
		MaxContextTokens: s.MaxContextTokens,
	})
}
