package rag

import (
	"context"
	"fmt"
)

const (
	// DefaultTopK is the number of sources returned per query.
	DefaultTopK = 3

	// excerptLen is the maximum number of characters kept in a Source excerpt.
	excerptLen = 200
)

// Result is the outcome of one retrieval: the client-facing citations and the
// full chunk texts used to build the generation context. Both slices are
// parallel and ordered by ascending distance.
type Result struct {
	// Sources are the citations returned to the client.
	Sources []Source
	// Contents are the full chunk texts, parallel to Sources.
	Contents []string
}

// Retriever embeds a query and looks up its nearest chunks in a FlatIndex.
// It is safe for concurrent use once the index is no longer being mutated.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder
	// index is the read-only vector index searched on every query.
	index *FlatIndex
	// defaultTopK is used when Retrieve is called with k <= 0.
	defaultTopK int
}

// NewRetriever constructs a Retriever over index. defaultTopK falls back to
// [DefaultTopK] when not positive. A nil or empty index is allowed; Retrieve
// then returns no sources.
func NewRetriever(embedder Embedder, index *FlatIndex, defaultTopK int) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Retriever{
		embedder:    embedder,
		index:       index,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve returns the k chunks nearest to query. An empty index yields an
// empty result without calling the embedder. A query embedding whose
// dimension differs from the index fails with [ErrDimensionMismatch].
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (*Result, error) {
	if k <= 0 {
		k = r.defaultTopK
	}
	if r.index.Len() == 0 {
		return &Result{}, nil
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	hits, err := r.index.Search(embeddings[0], k)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	res := &Result{
		Sources:  make([]Source, 0, len(hits)),
		Contents: make([]string, 0, len(hits)),
	}
	for _, h := range hits {
		c := r.index.Chunk(h.Index)
		res.Sources = append(res.Sources, Source{
			Document:       c.Source,
			RelevanceScore: Round2(Similarity(h.Distance)),
			Excerpt:        Excerpt(c.Content),
		})
		res.Contents = append(res.Contents, c.Content)
	}
	return res, nil
}

// Excerpt returns the first 200 characters of s, with "..." appended when s
// was longer.
func Excerpt(s string) string {
	runes := []rune(s)
	if len(runes) <= excerptLen {
		return s
	}
	return string(runes[:excerptLen]) + "..."
}
