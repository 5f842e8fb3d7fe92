package rag

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// FlatIndex
// ---------------------------------------------------------------------------

func chunksFor(n int) []Chunk {
	out := make([]Chunk, n)
	for i := range out {
		out[i] = Chunk{Content: strings.Repeat("x", i+1), Source: "doc.md"}
	}
	return out
}

func Test_FlatIndex_SearchOrdersByDistance(t *testing.T) {
	t.Parallel()
	x := NewFlatIndex()
	vectors := [][]float32{
		{3, 0},
		{1, 0},
		{0, 0},
		{2, 0},
	}
	if err := x.Add(vectors, chunksFor(4)); err != nil {
		t.Fatalf("add: %v", err)
	}

	hits, err := x.Search([]float32{0, 0}, 4)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	want := []int{2, 1, 3, 0}
	for i, h := range hits {
		if h.Index != want[i] {
			t.Errorf("hit[%d]: want index %d, got %d", i, want[i], h.Index)
		}
		if i > 0 && hits[i-1].Distance > h.Distance {
			t.Errorf("hits not ascending at %d: %v > %v", i, hits[i-1].Distance, h.Distance)
		}
	}
	if hits[0].Distance != 0 {
		t.Errorf("exact match: want distance 0, got %v", hits[0].Distance)
	}
	if hits[3].Distance != 9 {
		t.Errorf("squared distance: want 9, got %v", hits[3].Distance)
	}
}

func Test_FlatIndex_TiesBrokenByInsertionOrder(t *testing.T) {
	t.Parallel()
	x := NewFlatIndex()
	if err := x.Add([][]float32{{1, 0}, {0, 1}, {-1, 0}}, chunksFor(3)); err != nil {
		t.Fatalf("add: %v", err)
	}
	hits, err := x.Search([]float32{0, 0}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for i, h := range hits {
		if h.Index != i {
			t.Errorf("hit[%d]: want index %d, got %d", i, i, h.Index)
		}
	}
}

func Test_FlatIndex_KLimits(t *testing.T) {
	t.Parallel()
	x := NewFlatIndex()
	if err := x.Add([][]float32{{0}, {1}, {2}}, chunksFor(3)); err != nil {
		t.Fatalf("add: %v", err)
	}

	cases := []struct {
		k    int
		want int
	}{
		{1, 1},
		{3, 3},
		{10, 3},
		{0, 0},
	}
	for _, tc := range cases {
		hits, err := x.Search([]float32{0}, tc.k)
		if err != nil {
			t.Fatalf("search k=%d: %v", tc.k, err)
		}
		if len(hits) != tc.want {
			t.Errorf("k=%d: want %d hits, got %d", tc.k, tc.want, len(hits))
		}
	}
}

func Test_FlatIndex_EmptyReturnsNothing(t *testing.T) {
	t.Parallel()
	hits, err := NewFlatIndex().Search([]float32{1, 2, 3}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("want no hits, got %d", len(hits))
	}
}

func Test_FlatIndex_DimensionMismatch(t *testing.T) {
	t.Parallel()
	x := NewFlatIndex()
	if err := x.Add([][]float32{{1, 2, 3}}, chunksFor(1)); err != nil {
		t.Fatalf("add: %v", err)
	}

	if _, err := x.Search([]float32{1, 2}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("search: want ErrDimensionMismatch, got %v", err)
	}

	err := x.Add([][]float32{{1, 2, 3}, {1, 2}}, chunksFor(2))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("add: want ErrDimensionMismatch, got %v", err)
	}
	if x.Len() != 1 {
		t.Errorf("failed add must not append: want len 1, got %d", x.Len())
	}
}

func Test_FlatIndex_AddLengthMismatch(t *testing.T) {
	t.Parallel()
	x := NewFlatIndex()
	if err := x.Add([][]float32{{1}}, chunksFor(2)); err == nil {
		t.Fatal("want error for 1 vector / 2 chunks")
	}
}

// ---------------------------------------------------------------------------
// Similarity
// ---------------------------------------------------------------------------

func Test_Similarity(t *testing.T) {
	t.Parallel()
	cases := []struct {
		d    float64
		want float64
	}{
		{0, 1},
		{1, 0.5},
		{3, 0.25},
	}
	for _, tc := range cases {
		if got := Similarity(tc.d); got != tc.want {
			t.Errorf("Similarity(%v) = %v, want %v", tc.d, got, tc.want)
		}
	}

	prev := Similarity(0)
	for d := 0.1; d < 100; d *= 2 {
		s := Similarity(d)
		if s <= 0 || s > 1 {
			t.Fatalf("Similarity(%v) = %v out of (0,1]", d, s)
		}
		if s >= prev {
			t.Fatalf("Similarity not strictly decreasing at %v", d)
		}
		prev = s
	}
}

func Test_Round2(t *testing.T) {
	t.Parallel()
	if got := Round2(0.8333333); got != 0.83 {
		t.Errorf("Round2(0.8333) = %v", got)
	}
	if got := Round2(1.0 / 3.0); got != 0.33 {
		t.Errorf("Round2(1/3) = %v", got)
	}
}

func Test_Round2_UsesExactBinaryValue(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, want float64
	}{
		{0.125, 0.12},
		{0.625, 0.62},
		{0.435, 0.43},
		{0.375, 0.38},
		{0.5, 0.5},
		{0, 0},
	}
	for _, tc := range cases {
		if got := Round2(tc.in); got != tc.want {
			t.Errorf("Round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Vector snapshot
// ---------------------------------------------------------------------------

func Test_Vectors_SaveAndLoad(t *testing.T) {
	t.Parallel()
	x := NewFlatIndex()
	in := [][]float32{{0.5, -1.25, 3}, {0, 0, 1e-3}}
	if err := x.Add(in, chunksFor(2)); err != nil {
		t.Fatalf("add: %v", err)
	}

	path := filepath.Join(t.TempDir(), "idx", VectorsFile)
	if err := SaveVectors(path, x); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadVectors(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != len(in) {
		t.Fatalf("want %d vectors, got %d", len(in), len(got))
	}
	for i := range in {
		for j := range in[i] {
			if got[i][j] != in[i][j] {
				t.Errorf("vector[%d][%d]: want %v, got %v", i, j, in[i][j], got[i][j])
			}
		}
	}
}

func Test_Vectors_LoadMissing(t *testing.T) {
	t.Parallel()
	_, err := LoadVectors(filepath.Join(t.TempDir(), VectorsFile))
	if !errors.Is(err, ErrSnapshotMissing) {
		t.Errorf("want ErrSnapshotMissing, got %v", err)
	}
}

func Test_Vectors_LoadTruncated(t *testing.T) {
	t.Parallel()
	x := NewFlatIndex()
	if err := x.Add([][]float32{{1, 2}, {3, 4}}, chunksFor(2)); err != nil {
		t.Fatalf("add: %v", err)
	}
	path := filepath.Join(t.TempDir(), VectorsFile)
	if err := SaveVectors(path, x); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := os.Truncate(path, 14); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if _, err := LoadVectors(path); !errors.Is(err, ErrSnapshotInconsistent) {
		t.Errorf("want ErrSnapshotInconsistent, got %v", err)
	}
}

// vectorsHeader encodes a vector file header with no payload.
func vectorsHeader(dim, count uint32) []byte {
	b := append([]byte{}, vectorsMagic[:]...)
	b = binary.LittleEndian.AppendUint32(b, dim)
	return binary.LittleEndian.AppendUint32(b, count)
}

func Test_Vectors_LoadOversizedHeader(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		content []byte
	}{
		{"huge count", vectorsHeader(1, math.MaxUint32)},
		{"huge dimension", vectorsHeader(math.MaxUint32, 1)},
		{"both huge", vectorsHeader(math.MaxUint32, math.MaxUint32)},
		{"one vector short", append(vectorsHeader(2, 2), make([]byte, 12)...)},
		{"trailing bytes", append(vectorsHeader(1, 1), make([]byte, 8)...)},
		{"partial float", append(vectorsHeader(1, 1), make([]byte, 3)...)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), VectorsFile)
			if err := os.WriteFile(path, tc.content, 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := LoadVectors(path); !errors.Is(err, ErrSnapshotInconsistent) {
				t.Errorf("want ErrSnapshotInconsistent, got %v", err)
			}
		})
	}
}

func Test_Vectors_LoadEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), VectorsFile)
	if err := os.WriteFile(path, vectorsHeader(0, 0), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := LoadVectors(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want no vectors, got %d", len(got))
	}
}
