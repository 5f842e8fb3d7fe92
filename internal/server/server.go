// Package server implements the HTTP API in front of the portfolio
// assistant: chat, health and readiness probes, suggested questions, and
// Prometheus metrics. The server is started by the `folio serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/54b3r/folio-go/internal/assistant"
	"github.com/54b3r/folio-go/internal/logging"
	"github.com/54b3r/folio-go/internal/rag"
	"github.com/54b3r/folio-go/internal/security"
)

// maxBodyBytes caps the /api/chat request body.
const maxBodyBytes = 1 << 20

// Client-facing error details.
const (
	detailEmptyMessage = "Message cannot be empty"
	detailChatFailed   = "Failed to generate response"
)

// New constructs a Server around a and applies config defaults.
func New(a answerer, cfg *Config) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("server: assistant must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.ChatTimeout + 10*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	s := &Server{
		answerer: a,
		cfg:      cfg,
		log:      log,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry, a.IndexedChunks),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stop

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", s.instrument("chat", rl.middleware(http.HandlerFunc(s.handleChat))))
	mux.Handle("GET /health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /api/suggestions", s.instrument("suggestions", http.HandlerFunc(s.handleSuggestions)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions, http.MethodHead},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	s.handler = requestLogger(log, c.Handler(mux))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChat handles POST /api/chat. Malformed bodies are rejected with 422,
// an empty message with 400. Any failure past validation returns an opaque
// 500 and is logged by category only.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())

	req, history, detail := decodeChatRequest(w, r)
	if detail != "" {
		s.metrics.chatRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		writeDetail(w, log, http.StatusUnprocessableEntity, detail)
		return
	}
	message := *req.Message
	if strings.TrimSpace(message) == "" {
		s.metrics.chatRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		writeDetail(w, log, http.StatusBadRequest, detailEmptyMessage)
		return
	}

	sanitized, warnings := security.Sanitize(message)
	hash := logging.QueryHash(message)

	conversationID := ""
	if req.ConversationID != nil {
		conversationID = *req.ConversationID
	}
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(logging.WithQueryHash(r.Context(), hash), s.cfg.ChatTimeout)
	defer cancel()

	ans, err := s.answerer.Answer(ctx, sanitized, history)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyQuery) {
			s.metrics.chatRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
			writeDetail(w, log, http.StatusBadRequest, detailEmptyMessage)
			return
		}
		outcome := outcomeError
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = outcomeTimeout
		}
		s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		logging.Error(r.Context(), log, "chat_error", err)
		writeDetail(w, log, http.StatusInternalServerError, detailChatFailed)
		return
	}

	elapsed := time.Since(start)
	s.metrics.observeAnswer(ans, elapsed)
	logging.ChatRequest(r.Context(), log, logging.ChatEvent{
		Confidence:           ans.Confidence,
		SourcesCount:         len(ans.Sources),
		HasSufficientContext: ans.HasSufficientContext,
		ResponseTime:         elapsed,
		Warnings:             warnings,
		QueryHash:            hash,
	})

	sources := ans.Sources
	if sources == nil {
		sources = []rag.Source{}
	}
	writeJSON(w, log, http.StatusOK, chatResponse{
		Response:             ans.Response,
		Sources:              sources,
		Confidence:           ans.Confidence,
		HasSufficientContext: ans.HasSufficientContext,
		ConversationID:       conversationID,
	})
}

// decodeChatRequest parses and validates the body. A non-empty detail means
// the request is malformed.
func decodeChatRequest(w http.ResponseWriter, r *http.Request) (*chatRequest, []rag.Turn, string) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		return nil, nil, "invalid request body: " + jsonErrorDetail(err)
	}
	if req.Message == nil {
		return nil, nil, "message is required"
	}

	history := make([]rag.Turn, 0, len(req.History))
	for i, t := range req.History {
		if t.Role == nil || t.Content == nil {
			return nil, nil, fmt.Sprintf("history[%d]: role and content are required", i)
		}
		role := rag.Role(*t.Role)
		if !role.Valid() {
			return nil, nil, fmt.Sprintf("history[%d]: role must be %q or %q", i, rag.RoleUser, rag.RoleAssistant)
		}
		history = append(history, rag.Turn{Role: role, Content: *t.Content})
	}
	return &req, history, ""
}

// jsonErrorDetail describes a decode error without echoing the body.
func jsonErrorDetail(err error) string {
	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q must be %s", typeErr.Field, typeErr.Type.String())
	case errors.As(err, &maxErr):
		return "body too large"
	default:
		return "malformed JSON"
	}
}

// handleSuggestions handles GET /api/suggestions.
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, suggestionsResponse{
		Welcome:   assistant.WelcomeMessage,
		Questions: assistant.SuggestedQuestions,
	})
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("server: encode response", slog.Any("error", err))
	}
}

// writeDetail writes an error reply of the form {"detail": "..."}.
func writeDetail(w http.ResponseWriter, log *slog.Logger, status int, detail string) {
	writeJSON(w, log, status, errorResponse{Detail: detail})
}
