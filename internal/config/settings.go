package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/folio-go/internal/budget"
	"github.com/54b3r/folio-go/internal/chunker"
)

// Defaults applied by FromEnv when the corresponding variable is unset.
const (
	DefaultDocsPath            = "rag_docs"
	DefaultIndexPath           = "rag_index"
	DefaultTopK                = 3
	DefaultConfidenceThreshold = 0.7
	DefaultMaxHistory          = 10
	DefaultProviderTimeout     = 60 * time.Second
	DefaultHost                = "0.0.0.0"
	DefaultPort                = 8080
	DefaultRateLimit           = 5.0
	DefaultRateBurst           = 10
	DefaultEmbeddingBatchSize  = 16
	DefaultEmbeddingWorkers    = 4
)

// DefaultAllowedOrigins are the CORS origins of the local frontend dev servers.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

// Settings is the resolved runtime configuration. Provider credentials are
// resolved separately by the provider and embedder packages.
type Settings struct {
	// DocsPath is the directory of Markdown knowledge documents.
	DocsPath string
	// IndexPath is the snapshot directory. Empty disables persistence.
	IndexPath string

	ChunkSize    int
	ChunkOverlap int
	TopK         int

	// ConfidenceThreshold is the strict lower bound for sufficient context.
	ConfidenceThreshold float64
	// LowConfidencePhrases overrides the built-in decline phrases when non-nil.
	LowConfidencePhrases []string

	// MaxHistory is the number of most recent turns forwarded to the model.
	MaxHistory int
	// MaxContextTokens is the prompt budget used to trim history.
	MaxContextTokens int
	// ProviderTimeout bounds each embedding or generation call.
	ProviderTimeout time.Duration

	EmbeddingBatchSize   int
	EmbeddingConcurrency int

	Host           string
	Port           int
	AllowedOrigins []string
	RateLimit      float64
	RateBurst      int
}

// FromEnv resolves Settings from the process environment, applying defaults
// for unset keys. A malformed value is an error naming the variable.
func FromEnv() (*Settings, error) {
	p := &envParser{}
	s := &Settings{
		DocsPath:             p.str("RAG_DOCS_PATH", DefaultDocsPath),
		IndexPath:            p.str("RAG_INDEX_PATH", DefaultIndexPath),
		ChunkSize:            p.int("CHUNK_SIZE", chunker.DefaultSize),
		ChunkOverlap:         p.int("CHUNK_OVERLAP", chunker.DefaultOverlap),
		TopK:                 p.int("RAG_TOP_K", DefaultTopK),
		ConfidenceThreshold:  p.float("CONFIDENCE_THRESHOLD", DefaultConfidenceThreshold),
		LowConfidencePhrases: p.list("LOW_CONFIDENCE_PHRASES", nil),
		MaxHistory:           p.int("MAX_CONVERSATION_HISTORY", DefaultMaxHistory),
		MaxContextTokens:     p.int("MAX_CONTEXT_TOKENS", budget.DefaultMaxContextTokens),
		ProviderTimeout:      p.duration("PROVIDER_TIMEOUT", DefaultProviderTimeout),
		EmbeddingBatchSize:   p.int("EMBEDDING_BATCH_SIZE", DefaultEmbeddingBatchSize),
		EmbeddingConcurrency: p.int("EMBEDDING_CONCURRENCY", DefaultEmbeddingWorkers),
		Host:                 p.str("HOST", DefaultHost),
		Port:                 p.int("PORT", DefaultPort),
		AllowedOrigins:       p.list("ALLOWED_ORIGINS", DefaultAllowedOrigins),
		RateLimit:            p.float("RATE_LIMIT", DefaultRateLimit),
		RateBurst:            p.int("RATE_BURST", DefaultRateBurst),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks value ranges that would otherwise fail deep inside a build.
func (s *Settings) Validate() error {
	switch {
	case s.ChunkSize <= 0:
		return fmt.Errorf("config: CHUNK_SIZE must be positive, got %d", s.ChunkSize)
	case s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize:
		return fmt.Errorf("config: CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", s.ChunkOverlap)
	case s.TopK <= 0:
		return fmt.Errorf("config: RAG_TOP_K must be positive, got %d", s.TopK)
	case s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1:
		return fmt.Errorf("config: CONFIDENCE_THRESHOLD must be in [0, 1], got %g", s.ConfidenceThreshold)
	case s.MaxHistory < 0:
		return fmt.Errorf("config: MAX_CONVERSATION_HISTORY must not be negative, got %d", s.MaxHistory)
	case s.ProviderTimeout <= 0:
		return fmt.Errorf("config: PROVIDER_TIMEOUT must be positive, got %s", s.ProviderTimeout)
	case s.Port <= 0 || s.Port > 65535:
		return fmt.Errorf("config: PORT out of range: %d", s.Port)
	}
	return nil
}

// Addr returns host:port for display.
func (s *Settings) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// envParser reads typed env values and keeps the first parse error.
type envParser struct {
	err error
}

func (p *envParser) raw(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *envParser) str(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

func (p *envParser) int(key string, def int) int {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v)
		return def
	}
	return n
}

func (p *envParser) float(key string, def float64) float64 {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v)
		return def
	}
	return f
}

// duration accepts Go durations ("90s") or a bare number of seconds.
func (p *envParser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	p.fail(key, v)
	return def
}

// list splits a comma-separated value, dropping blanks.
func (p *envParser) list(key string, def []string) []string {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func (p *envParser) fail(key, v string) {
	if p.err == nil {
		p.err = fmt.Errorf("config: invalid value %q for %s", v, key)
	}
}
