package rag

import (
	"fmt"
	"sort"
	"strconv"
)

// Hit is a single nearest-neighbour result from [FlatIndex.Search].
type Hit struct {
	// Index is the position of the matching vector (and its chunk) in the index.
	Index int
	// Distance is the squared Euclidean distance to the query vector.
	Distance float64
}

// FlatIndex is an exhaustive nearest-neighbour index over fixed-dimension
// vectors. Entry i of vectors corresponds to entry i of chunks.
//
// A FlatIndex is built once and then only read. Concurrent Search calls are
// safe provided no Add runs at the same time.
type FlatIndex struct {
	// dim is the vector dimension, fixed by the first Add. Zero until then.
	dim int
	// vectors holds the stored embeddings in insertion order.
	vectors [][]float32
	// chunks is parallel to vectors.
	chunks []Chunk
}

// NewFlatIndex returns an empty index whose dimension is set by the first Add.
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{}
}

// Add appends vectors and their chunks. Both slices must have the same length
// and every vector must match the index dimension. On error nothing is
// appended.
func (x *FlatIndex) Add(vectors [][]float32, chunks []Chunk) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("rag: add: %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if len(vectors) == 0 {
		return nil
	}

	dim := x.dim
	if dim == 0 {
		dim = len(vectors[0])
		if dim == 0 {
			return fmt.Errorf("rag: add: empty vector: %w", ErrDimensionMismatch)
		}
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("rag: add: vector %d has dimension %d, want %d: %w", i, len(v), dim, ErrDimensionMismatch)
		}
	}

	x.dim = dim
	x.vectors = append(x.vectors, vectors...)
	x.chunks = append(x.chunks, chunks...)
	return nil
}

// Search returns up to k stored entries ordered by ascending squared
// Euclidean distance to query, ties broken by insertion order. When fewer
// than k entries exist all of them are returned.
func (x *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if x.Len() == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("rag: search: query has dimension %d, index has %d: %w", len(query), x.dim, ErrDimensionMismatch)
	}

	hits := make([]Hit, len(x.vectors))
	for i, v := range x.vectors {
		hits[i] = Hit{Index: i, Distance: squaredL2(query, v)}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Distance < hits[b].Distance
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of stored entries.
func (x *FlatIndex) Len() int {
	if x == nil {
		return 0
	}
	return len(x.vectors)
}

// Dimension returns the vector dimension, or 0 for an empty index.
func (x *FlatIndex) Dimension() int {
	if x == nil {
		return 0
	}
	return x.dim
}

// Chunk returns the chunk stored at position i.
func (x *FlatIndex) Chunk(i int) Chunk {
	return x.chunks[i]
}

// Chunks returns the stored chunks in index order. The slice must not be
// modified.
func (x *FlatIndex) Chunks() []Chunk {
	return x.chunks
}

// Similarity maps a squared distance to a score in (0, 1]. Identical vectors
// score 1.
func Similarity(distance float64) float64 {
	return 1 / (1 + distance)
}

// Round2 rounds v to two decimal places. Rounding is applied to the exact
// binary value with ties to even, so 0.125 becomes 0.12.
func Round2(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// squaredL2 returns the squared Euclidean distance between a and b, which
// must have equal length. Accumulates in float64.
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
