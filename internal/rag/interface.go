// Package rag holds the retrieval half of the assistant: the chunk data
// model, the exhaustive in-memory vector index, the query-time retriever, and
// the on-disk vector snapshot format.
// Embedding backends satisfy [Embedder] so nothing in this package depends on
// a specific provider.
package rag

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// dimension the index was built with.
var ErrDimensionMismatch = errors.New("rag: vector dimension mismatch")

// ErrIndexUnavailable is returned by components that need a loaded index when
// none could be loaded or built.
var ErrIndexUnavailable = errors.New("rag: index unavailable")

// Chunk is a bounded span of text cut from one knowledge document.
// Chunks are immutable once created.
type Chunk struct {
	// Content is the chunk text, possibly prefixed with overlap from the
	// preceding chunk of the same document.
	Content string

	// Source is the file name of the originating document (e.g. "skills.md").
	Source string
}

// Source is the citation returned to the client for one retrieved chunk.
type Source struct {
	// Document is the originating document's file name.
	Document string `json:"document"`

	// RelevanceScore is 1/(1+distance), rounded to two decimals.
	RelevanceScore float64 `json:"relevance_score"`

	// Excerpt is the first 200 characters of the chunk, suffixed with "..."
	// when the chunk was longer.
	Excerpt string `json:"excerpt"`
}

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser is a turn written by the visitor.
	RoleUser Role = "user"
	// RoleAssistant is a turn produced by the model.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is a single prior exchange message supplied by the client.
type Turn struct {
	// Role is the author of the turn.
	Role Role `json:"role"`
	// Content is the turn text.
	Content string `json:"content"`
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
