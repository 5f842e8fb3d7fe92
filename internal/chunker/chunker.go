// Package chunker splits knowledge documents into bounded, overlapping chunks.
//
// Splitting is recursive over a fixed list of separators, most structural
// first: paragraph breaks, line breaks, sentence ends, then spaces. Text that
// still exceeds the size limit once separators run out is cut into fixed
// windows. All lengths are counted in characters (Unicode code points).
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/54b3r/folio-go/internal/rag"
)

const (
	// DefaultSize is the maximum chunk length in characters before overlap.
	DefaultSize = 500
	// DefaultOverlap is the number of trailing characters of a chunk repeated
	// at the start of the next one.
	DefaultOverlap = 50
)

// separators are tried in order; later entries split finer.
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunker splits text into chunks. It holds no mutable state and is safe for
// concurrent use.
type Chunker struct {
	// size is the chunk length limit L.
	size int
	// overlap is the overlap length O, always < size.
	overlap int
}

// New constructs a Chunker. A non-positive size selects [DefaultSize]. A
// negative overlap is clamped to 0 and an overlap not smaller than size is
// reduced to size/10.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &Chunker{size: size, overlap: overlap}
}

// Size returns the configured chunk length limit.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap length.
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into chunks attributed to source. Whitespace-only chunks are
// dropped, so empty or blank input yields no chunks.
func (c *Chunker) Split(text, source string) []rag.Chunk {
	parts := c.split(text, separators)

	out := make([]rag.Chunk, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, rag.Chunk{Content: p, Source: source})
	}
	return out
}

// split is the recursive step. Each level that splits on a separator applies
// its own overlap pass, so chunks produced by a deeper level can carry
// overlap from both levels.
func (c *Chunker) split(text string, seps []string) []string {
	if runeLen(text) <= c.size {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	if len(seps) == 0 {
		return c.window(text)
	}

	sep, rest := seps[0], seps[1:]
	if !strings.Contains(text, sep) {
		return c.split(text, rest)
	}

	var chunks []string
	current := ""
	for _, part := range strings.Split(text, sep) {
		candidate := part
		if current != "" {
			candidate = current + sep + part
		}

		if runeLen(candidate) <= c.size {
			current = candidate
			continue
		}

		if current != "" {
			chunks = append(chunks, current)
		}
		if runeLen(part) > c.size {
			chunks = append(chunks, c.split(part, rest)...)
			current = ""
		} else {
			current = part
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}

	return c.addOverlap(chunks)
}

// window cuts text into windows of size characters starting every
// size-overlap characters. The last windows may be shorter than size.
func (c *Chunker) window(text string) []string {
	runes := []rune(text)
	step := c.size - c.overlap
	if step < 1 {
		step = 1
	}

	var out []string
	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}

// addOverlap prefixes every chunk after the first with the trailing overlap
// characters of its predecessor. A predecessor not longer than the overlap
// contributes nothing.
func (c *Chunker) addOverlap(chunks []string) []string {
	if len(chunks) <= 1 || c.overlap == 0 {
		return chunks
	}

	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		out[i] = tail(chunks[i-1], c.overlap) + chunks[i]
	}
	return out
}

// tail returns the last n characters of s, or "" when s has n or fewer.
func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return ""
	}
	return string(runes[len(runes)-n:])
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
