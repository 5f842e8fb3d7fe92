package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newBufferLogger(t *testing.T) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return m
}

func Test_QueryHash(t *testing.T) {
	t.Parallel()
	// sha256("hello") = 2cf24dba5fb0a30e26e83b2ac5b9e29e...
	if got := QueryHash("hello"); got != "2cf24dba5fb0a30e" {
		t.Errorf("QueryHash(hello) = %q", got)
	}
	if len(QueryHash("")) != 16 {
		t.Errorf("hash must be 16 characters")
	}
}

func Test_ChatRequest_MetadataOnly(t *testing.T) {
	t.Parallel()
	log, buf := newBufferLogger(t)

	ChatRequest(context.Background(), log, ChatEvent{
		Confidence:           0.83,
		SourcesCount:         3,
		HasSufficientContext: true,
		ResponseTime:         1500 * time.Millisecond,
		Warnings:             []string{"contains_email"},
		QueryHash:            "abcdef0123456789",
	})

	m := decodeLine(t, buf)
	if m["type"] != TypeChatRequest || m["level"] != "INFO" {
		t.Errorf("unexpected envelope: %v", m)
	}
	metrics, ok := m["metrics"].(map[string]any)
	if !ok {
		t.Fatalf("metrics group missing: %v", m)
	}
	if metrics["confidence"] != 0.83 || metrics["sources_count"] != 3.0 ||
		metrics["has_sufficient_context"] != true || metrics["response_time_ms"] != 1500.0 {
		t.Errorf("unexpected metrics: %v", metrics)
	}
	sec, _ := m["security"].(map[string]any)
	if w, _ := sec["warnings"].([]any); len(w) != 1 || w[0] != "contains_email" {
		t.Errorf("unexpected warnings: %v", sec)
	}
	if m["query_hash"] != "abcdef0123456789" {
		t.Errorf("query_hash = %v", m["query_hash"])
	}
}

func Test_ChatRequest_NilWarningsEncodeAsEmptyList(t *testing.T) {
	t.Parallel()
	log, buf := newBufferLogger(t)
	ChatRequest(context.Background(), log, ChatEvent{})

	if !strings.Contains(buf.String(), `"warnings":[]`) {
		t.Errorf("want empty warnings list, got %s", buf.String())
	}
}

func Test_RetrievalFailure(t *testing.T) {
	t.Parallel()
	log, buf := newBufferLogger(t)
	RetrievalFailure(context.Background(), log, "0011223344556677")

	m := decodeLine(t, buf)
	if m["level"] != "WARN" || m["type"] != TypeRetrievalFailure || m["query_hash"] != "0011223344556677" {
		t.Errorf("unexpected record: %v", m)
	}
}

func Test_Error(t *testing.T) {
	t.Parallel()
	log, buf := newBufferLogger(t)
	Error(context.Background(), log, "chat_error", errors.New("provider down"))

	m := decodeLine(t, buf)
	if m["level"] != "ERROR" || m["type"] != "chat_error" || m["message"] != "provider down" {
		t.Errorf("unexpected record: %v", m)
	}
}

func Test_FromContext_DefaultsToSlogDefault(t *testing.T) {
	t.Parallel()
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext must never return nil")
	}
	log, _ := newBufferLogger(t)
	if FromContext(WithLogger(context.Background(), log)) != log {
		t.Error("FromContext must return the stored logger")
	}
}

func Test_ParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func Test_QueryHashFromContext(t *testing.T) {
	t.Parallel()
	if got := QueryHashFromContext(context.Background(), "hello"); got != QueryHash("hello") {
		t.Errorf("fallback hash = %q", got)
	}
	ctx := WithQueryHash(context.Background(), "feedfacecafebeef")
	if got := QueryHashFromContext(ctx, "hello"); got != "feedfacecafebeef" {
		t.Errorf("stored hash = %q", got)
	}
}

func Test_OptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", " TEXT ")

	o := OptionsFromEnv()
	if o.Level != slog.LevelDebug || !o.Text {
		t.Errorf("OptionsFromEnv() = %+v", o)
	}
}

func Test_NewWithOptions_RespectsLevelAndFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithOptions(Options{Level: slog.LevelWarn, Text: true, Writer: &buf})
	log.Info("dropped")
	log.Warn("kept", slog.String("k", "v"))

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info record must be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "msg=kept") || !strings.Contains(out, "k=v") {
		t.Errorf("expected text-format warn record, got %s", out)
	}
}
