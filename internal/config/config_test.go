package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// clearEnv unsets keys for the duration of the test.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: gemini
  max_tokens: 2048
  temperature: 0.3
  timeout: 45s
  gemini:
    model: gemini-2.5-pro
embedding:
  provider: ollama
  model: nomic-embed-text
  batch_size: 8
rag:
  docs_path: /srv/knowledge
  top_k: 5
  confidence_threshold: 0.65
  low_confidence_phrases: ["no idea", "not sure"]
server:
  port: 9090
  allowed_origins:
    - https://yuka.dev
    - https://www.yuka.dev
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":         "gemini",
		"MODEL_MAX_TOKENS":       "2048",
		"MODEL_TEMPERATURE":      "0.3",
		"PROVIDER_TIMEOUT":       "45s",
		"GEMINI_MODEL":           "gemini-2.5-pro",
		"EMBEDDING_PROVIDER":     "ollama",
		"EMBEDDING_MODEL":        "nomic-embed-text",
		"EMBEDDING_BATCH_SIZE":   "8",
		"RAG_DOCS_PATH":          "/srv/knowledge",
		"RAG_TOP_K":              "5",
		"CONFIDENCE_THRESHOLD":   "0.65",
		"LOW_CONFIDENCE_PHRASES": "no idea,not sure",
		"PORT":                   "9090",
		"ALLOWED_ORIGINS":        "https://yuka.dev,https://www.yuka.dev",
		"LOG_LEVEL":              "debug",
		"LOG_FORMAT":             "text",
	}
	keys := make([]string, 0, len(checks))
	for k := range checks {
		keys = append(keys, k)
	}
	clearEnv(t, keys...)

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	for k, want := range checks {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env var BEFORE loading; it should NOT be overwritten.
	t.Setenv("MODEL_PROVIDER", "gemini")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("MODEL_PROVIDER"); got != "gemini" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "gemini", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath, slog.Default()); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestResolveConfigPath_EnvVar(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "folio.yaml")
	if err := os.WriteFile(cfgPath, []byte("model: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FOLIO_CONFIG", cfgPath)

	if got := resolveConfigPath(""); got != cfgPath {
		t.Errorf("resolveConfigPath() = %q, want %q", got, cfgPath)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := []byte("GOOGLE_API_KEY=from-dotenv\nRAG_TOP_K=7\n")
	if err := os.WriteFile(envPath, content, 0o600); err != nil {
		t.Fatal(err)
	}

	clearEnv(t, "GOOGLE_API_KEY")
	t.Setenv("RAG_TOP_K", "4")

	if err := LoadDotEnv(slog.Default(), envPath); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("GOOGLE_API_KEY"); got != "from-dotenv" {
		t.Errorf("GOOGLE_API_KEY = %q, want from-dotenv", got)
	}
	if got := os.Getenv("RAG_TOP_K"); got != "4" {
		t.Errorf("RAG_TOP_K = %q, existing env must win", got)
	}

	if err := LoadDotEnv(slog.Default(), filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env must be ignored, got %v", err)
	}
}

// settingsKeys are all variables read by FromEnv.
var settingsKeys = []string{
	"RAG_DOCS_PATH", "RAG_INDEX_PATH", "CHUNK_SIZE", "CHUNK_OVERLAP", "RAG_TOP_K",
	"CONFIDENCE_THRESHOLD", "LOW_CONFIDENCE_PHRASES", "MAX_CONVERSATION_HISTORY",
	"MAX_CONTEXT_TOKENS", "PROVIDER_TIMEOUT", "EMBEDDING_BATCH_SIZE", "EMBEDDING_CONCURRENCY",
	"HOST", "PORT", "ALLOWED_ORIGINS", "RATE_LIMIT", "RATE_BURST",
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t, settingsKeys...)

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if s.DocsPath != "rag_docs" || s.IndexPath != "rag_index" {
		t.Errorf("paths = %q, %q", s.DocsPath, s.IndexPath)
	}
	if s.ChunkSize != 500 || s.ChunkOverlap != 50 || s.TopK != 3 {
		t.Errorf("chunking = %d/%d top_k=%d", s.ChunkSize, s.ChunkOverlap, s.TopK)
	}
	if s.ConfidenceThreshold != 0.7 || s.MaxHistory != 10 {
		t.Errorf("threshold=%v history=%d", s.ConfidenceThreshold, s.MaxHistory)
	}
	if s.LowConfidencePhrases != nil {
		t.Errorf("expected nil phrases to select built-ins, got %v", s.LowConfidencePhrases)
	}
	if s.ProviderTimeout != 60*time.Second {
		t.Errorf("ProviderTimeout = %s", s.ProviderTimeout)
	}
	if s.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", s.Addr())
	}
	if !reflect.DeepEqual(s.AllowedOrigins, []string{"http://localhost:5173", "http://localhost:3000"}) {
		t.Errorf("AllowedOrigins = %v", s.AllowedOrigins)
	}
	if s.RateLimit != 5 || s.RateBurst != 10 {
		t.Errorf("rate = %v/%d", s.RateLimit, s.RateBurst)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t, settingsKeys...)
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.5")
	t.Setenv("PROVIDER_TIMEOUT", "15")
	t.Setenv("LOW_CONFIDENCE_PHRASES", "no clue, beats me")
	t.Setenv("RAG_INDEX_PATH", "/var/lib/folio")

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if !reflect.DeepEqual(s.AllowedOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Errorf("AllowedOrigins = %v", s.AllowedOrigins)
	}
	if s.ConfidenceThreshold != 0.5 {
		t.Errorf("ConfidenceThreshold = %v", s.ConfidenceThreshold)
	}
	if s.ProviderTimeout != 15*time.Second {
		t.Errorf("ProviderTimeout = %s, want bare seconds accepted", s.ProviderTimeout)
	}
	if !reflect.DeepEqual(s.LowConfidencePhrases, []string{"no clue", "beats me"}) {
		t.Errorf("LowConfidencePhrases = %v", s.LowConfidencePhrases)
	}
	if s.IndexPath != "/var/lib/folio" {
		t.Errorf("IndexPath = %q", s.IndexPath)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "eighty"},
		{"PORT", "70000"},
		{"CHUNK_SIZE", "0"},
		{"CHUNK_OVERLAP", "500"},
		{"RAG_TOP_K", "-1"},
		{"CONFIDENCE_THRESHOLD", "1.5"},
		{"PROVIDER_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t, settingsKeys...)
			t.Setenv(tt.key, tt.value)
			if _, err := FromEnv(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float32Str(tt.in); got != tt.want {
			t.Errorf("float32Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
