package rag

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// VectorsFile is the file name of the vector artifact inside an index directory.
const VectorsFile = "vectors.bin"

// vectorsHeaderLen is the size of magic, dimension and count.
const vectorsHeaderLen = 12

// vectorsMagic identifies a folio vector file.
var vectorsMagic = [4]byte{'F', 'O', 'L', 'V'}

// ErrSnapshotMissing is returned when one or both snapshot artifacts are absent.
var ErrSnapshotMissing = errors.New("rag: snapshot missing")

// ErrSnapshotInconsistent is returned when the snapshot artifacts exist but
// disagree with each other or are malformed.
var ErrSnapshotInconsistent = errors.New("rag: snapshot inconsistent")

// SaveVectors writes the index vectors to path, replacing any existing file.
// The file is written to a temporary sibling first and renamed into place.
//
// Format (little endian): magic (4 bytes), dimension (uint32), count (uint32),
// then count*dimension float32 values.
func SaveVectors(path string, x *FlatIndex) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("rag: save vectors: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("rag: save vectors: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := writeVectors(w, x); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("rag: save vectors: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("rag: save vectors: flush: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rag: save vectors: close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rag: save vectors: rename: %w", err)
	}
	return nil
}

func writeVectors(w io.Writer, x *FlatIndex) error {
	if _, err := w.Write(vectorsMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(x.Dimension())); err != nil { //nolint:gosec // dimension fits in uint32
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(x.Len())); err != nil { //nolint:gosec // count fits in uint32
		return err
	}
	buf := make([]byte, 4*x.Dimension())
	for _, v := range x.vectors {
		for i, f := range v {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// LoadVectors reads a vector file written by [SaveVectors]. A missing file is
// reported as [ErrSnapshotMissing]; a truncated or foreign file as
// [ErrSnapshotInconsistent].
func LoadVectors(path string) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("rag: load vectors %s: %w", path, ErrSnapshotMissing)
		}
		return nil, fmt.Errorf("rag: load vectors: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil || magic != vectorsMagic {
		return nil, fmt.Errorf("rag: load vectors %s: bad header: %w", path, ErrSnapshotInconsistent)
	}
	var dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("rag: load vectors: dimension: %w", ErrSnapshotInconsistent)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("rag: load vectors: count: %w", ErrSnapshotInconsistent)
	}
	if count > 0 && dim == 0 {
		return nil, fmt.Errorf("rag: load vectors: zero dimension with %d vectors: %w", count, ErrSnapshotInconsistent)
	}

	// The header is untrusted: it must describe exactly the payload on disk
	// before anything is allocated from it.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("rag: load vectors: %w", err)
	}
	payload := info.Size() - vectorsHeaderLen
	if payload < 0 || payload%4 != 0 || uint64(payload/4) != uint64(dim)*uint64(count) {
		return nil, fmt.Errorf("rag: load vectors %s: header declares %d x %d, file holds %d bytes: %w",
			path, count, dim, info.Size(), ErrSnapshotInconsistent)
	}

	vectors := make([][]float32, count)
	buf := make([]byte, 4*int(dim))
	for i := range vectors {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("rag: load vectors: vector %d: %w", i, ErrSnapshotInconsistent)
		}
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		vectors[i] = v
	}
	return vectors, nil
}
