package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/folio-go/internal/assistant"
	"github.com/54b3r/folio-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 0.0.0.0).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a whole /api/chat request, including the first-use
	// index build. Defaults to 2 minutes.
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on
	// /api/chat (requests/second). Defaults to 5 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 10 if zero.
	RateBurst int
	// AllowedOrigins lists the CORS origins allowed to call the API.
	AllowedOrigins []string
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// answerer is the interface the handlers call. *assistant.Assistant
// satisfies it; tests inject a fake.
type answerer interface {
	// Answer responds to query given prior turns.
	Answer(ctx context.Context, query string, history []rag.Turn) (*assistant.Answer, error)
	// IsLoaded reports whether a non-empty index is ready.
	IsLoaded() bool
	// IndexedChunks returns the number of indexed chunks.
	IndexedChunks() int
}

// Server is the HTTP server that wraps the assistant.
type Server struct {
	// answerer handles every chat request.
	answerer answerer
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// handler is the fully wrapped root handler (CORS, logging, metrics).
	handler http.Handler
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
}

// chatRequest is the JSON body for POST /api/chat. Pointer fields tell an
// absent value from an empty one.
type chatRequest struct {
	// Message is the visitor's question. Required.
	Message *string `json:"message"`
	// History is the prior conversation, oldest first.
	History []chatTurn `json:"history"`
	// ConversationID is echoed back; a new one is generated when empty.
	ConversationID *string `json:"conversation_id"`
}

// chatTurn is one prior message in chatRequest.History.
type chatTurn struct {
	// Role is "user" or "assistant".
	Role *string `json:"role"`
	// Content is the message text.
	Content *string `json:"content"`
}

// chatResponse is the JSON body returned by POST /api/chat.
type chatResponse struct {
	// Response is the assistant's answer.
	Response string `json:"response"`
	// Sources are the retrieved citations, nearest first.
	Sources []rag.Source `json:"sources"`
	// Confidence is the evaluated confidence score.
	Confidence float64 `json:"confidence"`
	// HasSufficientContext reports whether retrieval was strong enough.
	HasSufficientContext bool `json:"has_sufficient_context"`
	// ConversationID is the echoed or generated conversation id.
	ConversationID string `json:"conversation_id"`
}

// healthResponse is the JSON body returned by GET /health.
type healthResponse struct {
	// Status is always "healthy" while the process serves requests.
	Status string `json:"status"`
	// RAGIndexLoaded reports whether a non-empty index is ready.
	RAGIndexLoaded bool `json:"rag_index_loaded"`
}

// suggestionsResponse is the JSON body returned by GET /api/suggestions.
type suggestionsResponse struct {
	// Welcome greets the visitor.
	Welcome string `json:"welcome"`
	// Questions are example questions for the chat UI.
	Questions []string `json:"questions"`
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	// Detail is a short, client-safe description.
	Detail string `json:"detail"`
}
