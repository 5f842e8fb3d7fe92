package embedder

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// ---------------------------------------------------------------------------
// Ollama
// ---------------------------------------------------------------------------

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q", req.Model)
		}
		out := ollamaEmbedResponse{}
		for i := range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "nomic-embed-text"})
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 2 || got[1][0] != 1 {
		t.Errorf("unexpected embeddings %v", got)
	}
}

func TestOllamaEmbedder_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model \"nope\" not found"}`)
	}))
	t.Cleanup(srv.Close)

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nope"})
	_, err := e.Embed(context.Background(), []string{"a"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("want server error message, got %v", err)
	}
}

func TestOllamaEmbedder_CountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"embeddings":[[1,2]]}`)
	}))
	t.Cleanup(srv.Close)

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"})
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("want error when fewer embeddings than inputs are returned")
	}
}

func TestOllamaEmbedder_RaggedDimensions(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"embeddings":[[1,2,3],[1,2]]}`)
	}))
	t.Cleanup(srv.Close)

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"})
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("want error when vectors differ in dimension")
	}
}

func TestOllamaEmbedder_SendsOptionsAndSkipsEmptyInput(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req ollamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Dimensions != 256 || req.KeepAlive != "10m" {
			t.Errorf("options not forwarded: %+v", req)
		}
		_, _ = io.WriteString(w, `{"embeddings":[[0.5,0.5]]}`)
	}))
	t.Cleanup(srv.Close)

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m", Dimensions: 256, KeepAlive: "10m"})
	got, err := e.Embed(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty input: got %v, %v", got, err)
	}
	if n := calls.Load(); n != 0 {
		t.Fatalf("empty input must not call the server, got %d calls", n)
	}
	if _, err := e.Embed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
}

// ---------------------------------------------------------------------------
// OpenAI
// ---------------------------------------------------------------------------

func TestOpenAIEmbedder_ReordersByIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.0, 2.0]},
				{"object": "embedding", "index": 0, "embedding": [1.0, 0.0]}
			],
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`)
	}))
	t.Cleanup(srv.Close)

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "sk-test", Model: "text-embedding-3-small"})
	got, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got[0][0] != 1 || got[1][1] != 2 {
		t.Errorf("embeddings not placed by index: %v", got)
	}
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
	}))
	t.Cleanup(srv.Close)

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL + "/v1", APIKey: "bad", Model: "m"})
	_, err := e.Embed(context.Background(), []string{"x"})
	if err == nil || !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("want API error message, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Factory and validation
// ---------------------------------------------------------------------------

func clearEmbeddingEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"EMBEDDING_PROVIDER", "MODEL_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_API_KEY",
		"EMBEDDING_ENDPOINT", "EMBEDDING_DIMENSIONS", "GOOGLE_API_KEY", "OPENAI_API_KEY",
		"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "OLLAMA_HOST",
	} {
		t.Setenv(k, "")
	}
}

func TestBackend_Resolution(t *testing.T) {
	clearEmbeddingEnv(t)
	if got := Backend(); got != "gemini" {
		t.Errorf("default Backend() = %q, want gemini", got)
	}
	t.Setenv("MODEL_PROVIDER", "openai")
	if got := Backend(); got != "openai" {
		t.Errorf("inherited Backend() = %q, want openai", got)
	}
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	if got := Backend(); got != "ollama" {
		t.Errorf("override Backend() = %q, want ollama", got)
	}
}

func TestNewFromEnv_Ollama(t *testing.T) {
	clearEmbeddingEnv(t)
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("EMBEDDING_MODEL", "mxbai-embed-large")

	e, model, err := NewFromEnv(context.Background())
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	if model != "mxbai-embed-large" {
		t.Errorf("model = %q", model)
	}
	if _, ok := e.(*OllamaEmbedder); !ok {
		t.Errorf("got %T, want *OllamaEmbedder", e)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	tests := []struct {
		backend string
		wantErr string
	}{
		{"gemini", "GOOGLE_API_KEY"},
		{"openai", "OPENAI_API_KEY"},
		{"azure", "AZURE_OPENAI_API_KEY"},
		{"bedrock", "unknown backend"},
	}
	for _, tc := range tests {
		t.Run(tc.backend, func(t *testing.T) {
			clearEmbeddingEnv(t)
			t.Setenv("EMBEDDING_PROVIDER", tc.backend)
			_, _, err := NewFromEnv(context.Background())
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("gemini without key", func(t *testing.T) {
		clearEmbeddingEnv(t)
		if err := Validate(log); err == nil {
			t.Error("want error for missing GOOGLE_API_KEY")
		}
	})
	t.Run("gemini with key", func(t *testing.T) {
		clearEmbeddingEnv(t)
		t.Setenv("GOOGLE_API_KEY", "AIza-test")
		if err := Validate(log); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})
	t.Run("azure without endpoint", func(t *testing.T) {
		clearEmbeddingEnv(t)
		t.Setenv("EMBEDDING_PROVIDER", "azure")
		t.Setenv("AZURE_OPENAI_API_KEY", "key")
		if err := Validate(log); err == nil || !strings.Contains(err.Error(), "endpoint") {
			t.Errorf("want endpoint error, got %v", err)
		}
	})
	t.Run("ollama needs nothing", func(t *testing.T) {
		clearEmbeddingEnv(t)
		t.Setenv("EMBEDDING_PROVIDER", "ollama")
		if err := Validate(log); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"gpt-4o":                 true,
		"llama3":                 true,
		"gemini-2.5-flash":       true,
		"gemini-embedding-001":   false,
		"nomic-embed-text":       false,
		"text-embedding-3-small": false,
	}
	for model, want := range cases {
		if got := looksLikeChatModel(model); got != want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", model, got, want)
		}
	}
}
