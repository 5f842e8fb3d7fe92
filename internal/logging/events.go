package logging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Event types. They are emitted as the "type" attribute so log queries can
// filter on them.
const (
	// TypeChatRequest marks the per-request metadata record.
	TypeChatRequest = "chat_request"
	// TypeRetrievalFailure marks a query that produced no sources.
	TypeRetrievalFailure = "retrieval_failure"
)

// ChatEvent is the metadata recorded for one answered chat request. It never
// carries the visitor's message or the model's answer.
type ChatEvent struct {
	// Confidence is the evaluated confidence score.
	Confidence float64
	// SourcesCount is the number of sources returned.
	SourcesCount int
	// HasSufficientContext is the evaluator's sufficiency verdict.
	HasSufficientContext bool
	// ResponseTime is the wall-clock time spent answering.
	ResponseTime time.Duration
	// Warnings are the sanitizer warnings raised for the message.
	Warnings []string
	// QueryHash identifies the query without revealing it (see QueryHash).
	QueryHash string
}

// QueryHash returns the first 16 hex characters of the SHA-256 of query.
func QueryHash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])[:16]
}

// ChatRequest logs ev at INFO.
func ChatRequest(ctx context.Context, log *slog.Logger, ev ChatEvent) {
	warnings := ev.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	log.LogAttrs(ctx, slog.LevelInfo, TypeChatRequest,
		slog.String("type", TypeChatRequest),
		slog.Group("metrics",
			slog.Float64("confidence", ev.Confidence),
			slog.Int("sources_count", ev.SourcesCount),
			slog.Bool("has_sufficient_context", ev.HasSufficientContext),
			slog.Int64("response_time_ms", ev.ResponseTime.Milliseconds()),
		),
		slog.Group("security", slog.Any("warnings", warnings)),
		slog.String("query_hash", ev.QueryHash),
	)
}

// RetrievalFailure logs at WARN that the query identified by queryHash
// produced no sources.
func RetrievalFailure(ctx context.Context, log *slog.Logger, queryHash string) {
	log.LogAttrs(ctx, slog.LevelWarn, TypeRetrievalFailure,
		slog.String("type", TypeRetrievalFailure),
		slog.String("query_hash", queryHash),
	)
}

// Error logs err at ERROR under the given category (e.g. "chat_error").
func Error(ctx context.Context, log *slog.Logger, category string, err error) {
	log.LogAttrs(ctx, slog.LevelError, category,
		slog.String("type", category),
		slog.String("message", err.Error()),
	)
}

// WithQueryHash returns a copy of ctx carrying the hash of the visitor's
// original message, so lower layers log the same fingerprint as the handler.
func WithQueryHash(ctx context.Context, hash string) context.Context {
	return context.WithValue(ctx, queryHashKey, hash)
}

// QueryHashFromContext returns the hash stored by WithQueryHash, or the hash
// of fallback when none is present.
func QueryHashFromContext(ctx context.Context, fallback string) string {
	if h, ok := ctx.Value(queryHashKey).(string); ok && h != "" {
		return h
	}
	return QueryHash(fallback)
}
