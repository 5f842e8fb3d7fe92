// Package logging builds the process logger on [log/slog] and defines the
// privacy-preserving events the chat service emits. The logger is built once
// at startup and travels through request contexts via [WithLogger] and
// [FromContext].
//
// Environment variables:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type contextKey int

const (
	loggerKey contextKey = iota
	queryHashKey
)

// Options selects the handler built by [NewWithOptions].
type Options struct {
	// Level is the minimum severity emitted.
	Level slog.Level
	// Text selects the human-readable handler instead of JSON.
	Text bool
	// Writer receives log lines. Defaults to os.Stderr.
	Writer io.Writer
}

// OptionsFromEnv reads LOG_LEVEL and LOG_FORMAT.
func OptionsFromEnv() Options {
	return Options{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
		Text:  strings.EqualFold(strings.TrimSpace(os.Getenv("LOG_FORMAT")), "text"),
	}
}

// New constructs the process logger from the environment.
func New() *slog.Logger {
	return NewWithOptions(OptionsFromEnv())
}

// NewWithOptions constructs a logger from explicit options.
func NewWithOptions(o Options) *slog.Logger {
	w := o.Writer
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: o.Level}
	if o.Text {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in ctx, or [slog.Default] so callers
// never need to nil-check.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// parseLevel converts a string to a [slog.Level], defaulting to Info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
