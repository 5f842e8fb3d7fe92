//go:build integration

package embedder

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/54b3r/folio-go/internal/rag"
)

// TestOllamaEmbedder_Integration embeds a few portfolio snippets through a
// locally running Ollama instance and checks that nearest-neighbour search
// over the vectors ranks the relevant snippet first.
//
// Prerequisites:
//
//	ollama pull nomic-embed-text
//	ollama serve
//
// Run with:
//
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = defaultOllamaModel
	}

	emb := NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	chunks := []rag.Chunk{
		{Content: "Yuka is skilled in Java, Go, and Python and has built backend services in all three.", Source: "skills.md"},
		{Content: "Outside of work Yuka enjoys hiking and film photography.", Source: "hobbies.md"},
	}
	texts := []string{chunks[0].Content, chunks[1].Content}

	vectors, err := emb.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed() failed: %v\n\nEnsure Ollama is running and %q is pulled:\n  ollama pull %s", err, model, model)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(vectors))
	}

	idx := rag.NewFlatIndex()
	if err := idx.Add(vectors, chunks); err != nil {
		t.Fatalf("Add: %v", err)
	}

	query, err := emb.Embed(ctx, []string{"Which programming languages does she know?"})
	if err != nil {
		t.Fatalf("Embed(query) failed: %v", err)
	}
	hits, err := idx.Search(query[0], 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || idx.Chunk(hits[0].Index).Source != "skills.md" {
		t.Errorf("expected skills.md to rank first, got %+v", hits)
	}

	t.Logf("model=%s dim=%d", model, idx.Dimension())
}
