package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/folio-go/internal/config"
	"github.com/54b3r/folio-go/internal/logging"
)

// NewIngestCmd constructs the `folio ingest` command, which builds the
// knowledge index from the documents directory and writes the snapshot.
func NewIngestCmd() *cobra.Command {
	var docs string
	var index string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Build the knowledge index snapshot from Markdown documents",
		Long: `Chunk and embed every *.md file in the documents directory and write a
fresh snapshot (vectors.bin + chunks.db) to the index directory, replacing
any previous one. The server loads this snapshot at startup instead of
re-embedding.

Relevant environment variables:
  RAG_DOCS_PATH          Documents directory (default: rag_docs)
  RAG_INDEX_PATH         Snapshot directory (default: rag_index)
  CHUNK_SIZE             Maximum chunk length in characters (default: 500)
  CHUNK_OVERLAP          Characters shared by adjacent chunks (default: 50)
  EMBEDDING_PROVIDER     gemini, ollama, openai, azure (inherits MODEL_PROVIDER)
  EMBEDDING_BATCH_SIZE   Chunks per embedding call (default: 16)
  EMBEDDING_CONCURRENCY  Embedding calls in flight (default: 4)

Examples:
  folio ingest
  folio ingest --docs ./knowledge --index ./knowledge_index`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			settings, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if docs != "" {
				settings.DocsPath = docs
			}
			if index != "" {
				settings.IndexPath = index
			}
			if settings.IndexPath == "" {
				return fmt.Errorf("ingest: an index directory is required (--index or RAG_INDEX_PATH)")
			}

			_, builder, err := buildIndexBuilder(ctx, settings, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			log.Info("starting ingestion",
				slog.String("docs", settings.DocsPath),
				slog.String("index", settings.IndexPath),
			)
			idx, err := builder.BuildAndPersist(ctx, settings.DocsPath, settings.IndexPath)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks (dimension %d) into %s\n",
				idx.Len(), idx.Dimension(), settings.IndexPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&docs, "docs", "d", "", "Documents directory (overrides RAG_DOCS_PATH)")
	cmd.Flags().StringVarP(&index, "index", "i", "", "Snapshot directory (overrides RAG_INDEX_PATH)")

	return cmd
}
