// Package assistant answers visitor questions about the portfolio owner. It
// owns the process-wide knowledge index: on first use it loads the on-disk
// snapshot or, when none is usable, builds one from the knowledge documents.
// Each question is then answered by retrieving the nearest chunks, asking the
// chat model with that context, and scoring the answer.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/54b3r/folio-go/internal/budget"
	"github.com/54b3r/folio-go/internal/confidence"
	"github.com/54b3r/folio-go/internal/ingestion"
	"github.com/54b3r/folio-go/internal/logging"
	"github.com/54b3r/folio-go/internal/rag"
)

const (
	// DefaultMaxHistory is the number of prior turns forwarded to the model.
	DefaultMaxHistory = 10
	// DefaultProviderTimeout bounds each embedding or generation call.
	DefaultProviderTimeout = 60 * time.Second
)

// ErrEmptyQuery is returned when the question is empty after trimming.
var ErrEmptyQuery = errors.New("assistant: message cannot be empty")

// Provider stages reported by ProviderError.
const (
	StageRetrieval  = "retrieval"
	StageGeneration = "generation"
)

// ProviderError reports a failed embedding or generation call. Its detail is
// for logs only and must not be shown to visitors.
type ProviderError struct {
	// Stage is StageRetrieval or StageGeneration.
	Stage string
	// Err is the underlying provider error.
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("assistant: %s failed: %v", e.Stage, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// State is the lifecycle state of the knowledge index.
type State int32

const (
	// StateUninitialized means no load or build has been attempted yet.
	StateUninitialized State = iota
	// StateReady means an index was loaded or built.
	StateReady
	// StateDegraded means no index could be obtained; questions are answered
	// without retrieved context.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "uninitialized"
	}
}

// Generator produces the model's answer for one question.
type Generator interface {
	Generate(ctx context.Context, system string, history []rag.Turn, user string) (string, error)
}

// Config holds the dependencies and tuning of an Assistant.
type Config struct {
	// Embedder embeds queries and, when a build is needed, chunks. Required.
	Embedder rag.Embedder
	// Generator writes answers. Required.
	Generator Generator
	// Builder builds the index when no snapshot is usable. Defaults to a
	// builder over Embedder with default chunking.
	Builder *ingestion.Builder
	// Evaluator scores answers. Defaults to the default threshold and phrases.
	Evaluator *confidence.Evaluator
	// DocsDir holds the knowledge documents.
	DocsDir string
	// IndexDir holds the snapshot. Empty keeps the index in memory only.
	IndexDir string
	// MaxHistory caps forwarded turns. Defaults to DefaultMaxHistory.
	MaxHistory int
	// TopK is the number of sources retrieved. Defaults to rag.DefaultTopK.
	TopK int
	// ProviderTimeout bounds each provider call. Defaults to
	// DefaultProviderTimeout.
	ProviderTimeout time.Duration
	// MaxContextTokens is the input budget used to drop the oldest history.
	// Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
	// SystemPrompt overrides SystemPrompt when non-empty.
	SystemPrompt string
}

// Answer is the consolidated result of one question.
type Answer struct {
	// Response is the model's text, never empty.
	Response string `json:"response"`
	// Sources are the retrieved citations, nearest first. Never nil.
	Sources []rag.Source `json:"sources"`
	// Confidence is the evaluated confidence score.
	Confidence float64 `json:"confidence"`
	// HasSufficientContext is the evaluator's sufficiency verdict.
	HasSufficientContext bool `json:"has_sufficient_context"`
}

// Assistant is safe for concurrent use. The index is read-only after Init.
type Assistant struct {
	embedder         rag.Embedder
	generator        Generator
	builder          *ingestion.Builder
	evaluator        *confidence.Evaluator
	docsDir          string
	indexDir         string
	maxHistory       int
	topK             int
	providerTimeout  time.Duration
	maxContextTokens int
	systemPrompt     string

	// initMu serialises Init so at most one load or build runs.
	initMu sync.Mutex
	// state is written once by Init under initMu.
	state atomic.Int32
	// retriever is set together with StateReady.
	retriever atomic.Pointer[rag.Retriever]
	// chunks is the number of indexed chunks once ready.
	chunks atomic.Int64
}

// New validates cfg, applies defaults, and returns an uninitialized
// Assistant.
func New(cfg Config) (*Assistant, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("assistant: embedder must not be nil")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("assistant: generator must not be nil")
	}
	if cfg.Builder == nil {
		b, err := ingestion.NewBuilder(cfg.Embedder, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("assistant: %w", err)
		}
		cfg.Builder = b
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = confidence.New(confidence.DefaultThreshold, nil)
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if cfg.TopK <= 0 {
		cfg.TopK = rag.DefaultTopK
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultProviderTimeout
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = SystemPrompt
	}

	return &Assistant{
		embedder:         cfg.Embedder,
		generator:        cfg.Generator,
		builder:          cfg.Builder,
		evaluator:        cfg.Evaluator,
		docsDir:          cfg.DocsDir,
		indexDir:         cfg.IndexDir,
		maxHistory:       cfg.MaxHistory,
		topK:             cfg.TopK,
		providerTimeout:  cfg.ProviderTimeout,
		maxContextTokens: cfg.MaxContextTokens,
		systemPrompt:     cfg.SystemPrompt,
	}, nil
}

// State returns the current lifecycle state without triggering Init.
func (a *Assistant) State() State {
	return State(a.state.Load())
}

// IsLoaded reports whether a non-empty index is ready. It never triggers a
// load or build.
func (a *Assistant) IsLoaded() bool {
	return a.State() == StateReady && a.chunks.Load() > 0
}

// IndexedChunks returns the number of chunks in the ready index, or 0.
func (a *Assistant) IndexedChunks() int {
	return int(a.chunks.Load())
}

// Init loads the snapshot from the index directory or, when it is missing or
// unreadable, builds a fresh index and persists it. Concurrent callers wait
// for the single in-flight attempt. The first outcome is final: READY, or
// DEGRADED when no index could be obtained. Init never fails.
func (a *Assistant) Init(ctx context.Context) State {
	if s := a.State(); s != StateUninitialized {
		return s
	}

	a.initMu.Lock()
	defer a.initMu.Unlock()
	if s := a.State(); s != StateUninitialized {
		return s
	}

	// A caller giving up must not leave the process permanently degraded.
	ctx = context.WithoutCancel(ctx)
	log := logging.FromContext(ctx)
	start := time.Now()

	idx, err := a.loadOrBuild(ctx)
	if err != nil {
		if errors.Is(err, ingestion.ErrNoDocuments) {
			log.Warn("assistant: no knowledge documents, answering without context",
				slog.String("docs_dir", a.docsDir),
			)
		} else {
			logging.Error(ctx, log, "index_error", err)
		}
		a.state.Store(int32(StateDegraded))
		return StateDegraded
	}

	r, err := rag.NewRetriever(a.embedder, idx, a.topK)
	if err != nil {
		logging.Error(ctx, log, "index_error", err)
		a.state.Store(int32(StateDegraded))
		return StateDegraded
	}
	a.retriever.Store(r)
	a.chunks.Store(int64(idx.Len()))
	a.state.Store(int32(StateReady))

	log.Info("assistant: index ready",
		slog.Int("chunks", idx.Len()),
		slog.Int("dimension", idx.Dimension()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return StateReady
}

// loadOrBuild prefers the on-disk snapshot and falls back to a full build.
func (a *Assistant) loadOrBuild(ctx context.Context) (*rag.FlatIndex, error) {
	log := logging.FromContext(ctx)

	if a.indexDir == "" {
		return a.builder.Build(ctx, a.docsDir)
	}

	idx, meta, err := ingestion.LoadSnapshot(ctx, a.indexDir)
	if err == nil {
		log.Info("assistant: snapshot loaded",
			slog.String("index_dir", a.indexDir),
			slog.String("embedding_model", meta.EmbeddingModel),
			slog.Time("built_at", meta.BuiltAt),
		)
		return idx, nil
	}
	if errors.Is(err, rag.ErrSnapshotMissing) {
		log.Info("assistant: no snapshot, building index", slog.String("index_dir", a.indexDir))
	} else {
		log.Warn("assistant: snapshot unusable, rebuilding",
			slog.String("index_dir", a.indexDir),
			slog.String("error", err.Error()),
		)
	}

	return a.builder.BuildAndPersist(ctx, a.docsDir, a.indexDir)
}

// Answer responds to query given prior turns. The query must be non-empty
// after trimming. Embedding and generation failures are returned as
// *ProviderError.
func (a *Assistant) Answer(ctx context.Context, query string, history []rag.Turn) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	log := logging.FromContext(ctx)
	hash := logging.QueryHashFromContext(ctx, query)

	res := &rag.Result{}
	if a.Init(ctx) == StateReady {
		var err error
		res, err = a.retrieve(ctx, query)
		if err != nil {
			return nil, &ProviderError{Stage: StageRetrieval, Err: err}
		}
	}
	if len(res.Sources) == 0 {
		logging.RetrievalFailure(ctx, log, hash)
	}

	user := userMessage(res.Contents, query)
	turns := a.trimHistory(history, user)

	text, err := a.generate(ctx, turns, user)
	if err != nil {
		return nil, &ProviderError{Stage: StageGeneration, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		text = FallbackResponse
	}

	sources := res.Sources
	if sources == nil {
		sources = []rag.Source{}
	}
	eval := a.evaluator.Evaluate(sources, text)

	return &Answer{
		Response:             text,
		Sources:              sources,
		Confidence:           eval.Confidence,
		HasSufficientContext: eval.HasSufficientContext,
	}, nil
}

func (a *Assistant) retrieve(ctx context.Context, query string) (*rag.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.providerTimeout)
	defer cancel()
	return a.retriever.Load().Retrieve(ctx, query, a.topK)
}

func (a *Assistant) generate(ctx context.Context, history []rag.Turn, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.providerTimeout)
	defer cancel()
	return a.generator.Generate(ctx, a.systemPrompt, history, user)
}

// trimHistory keeps the last maxHistory turns, then drops the oldest until
// the request fits the token budget.
func (a *Assistant) trimHistory(history []rag.Turn, user string) []rag.Turn {
	if len(history) > a.maxHistory {
		history = history[len(history)-a.maxHistory:]
	}
	if len(history) == 0 {
		return nil
	}

	fixed := budget.EstimateMessage("system", a.systemPrompt) + budget.EstimateMessage(string(rag.RoleUser), user)
	return budget.Fit(fixed, history, a.maxContextTokens)
}
