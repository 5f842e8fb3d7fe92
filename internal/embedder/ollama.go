package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultOllamaTimeout bounds one /api/embed round trip.
const defaultOllamaTimeout = 60 * time.Second

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "nomic-embed-text").
	Model string
	// Dimensions truncates vectors on models that support it. Zero keeps
	// the model's native size.
	Dimensions int
	// KeepAlive controls how long the model stays loaded after a request,
	// e.g. "10m". Empty uses the server default.
	KeepAlive string
	// Timeout bounds each request. Defaults to 60s.
	Timeout time.Duration
}

// OllamaEmbedder implements rag.Embedder against the Ollama /api/embed
// endpoint. No API key is required. Safe for concurrent use.
type OllamaEmbedder struct {
	cfg    OllamaConfig
	client *http.Client
}

// NewOllamaEmbedder constructs an OllamaEmbedder from cfg.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	c := *cfg
	c.Host = strings.TrimRight(c.Host, "/")
	if c.Timeout <= 0 {
		c.Timeout = defaultOllamaTimeout
	}
	return &OllamaEmbedder{cfg: c, client: &http.Client{Timeout: c.Timeout}}
}

type ollamaEmbedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
	KeepAlive  string   `json:"keep_alive,omitempty"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed returns one vector per text, in input order. All vectors share one
// dimension or the call fails.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	body, err := json.Marshal(ollamaEmbedRequest{
		Model:      e.cfg.Model,
		Input:      texts,
		Dimensions: e.cfg.Dimensions,
		KeepAlive:  e.cfg.KeepAlive,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: marshal request: %w", err)
	}

	res, err := e.post(ctx, body)
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: expected %d embeddings, got %d", len(texts), len(res.Embeddings))
	}
	dim := len(res.Embeddings[0])
	for i, v := range res.Embeddings {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("ollama embedder: embedding %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return res.Embeddings, nil
}

// post sends one /api/embed request and decodes the reply. Non-2xx replies
// are reported with Ollama's error message when present.
func (e *OllamaEmbedder) post(ctx context.Context, body []byte) (*ollamaEmbedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		var apiErr ollamaEmbedResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("ollama embedder: HTTP %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("ollama embedder: HTTP %d", resp.StatusCode)
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama embedder: decode response: %w", err)
	}
	return &out, nil
}
