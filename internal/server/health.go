package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/folio-go/internal/logging"
)

// probeTimeout bounds each dependency probe so /api/ready answers quickly
// even when a dependency hangs.
const probeTimeout = 5 * time.Second

// Pinger is a dependency that can report its own health. Implementations
// must be safe for concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency is healthy.
	Ping(ctx context.Context) error
	// Name is the label used in readiness responses (e.g. "index").
	Name() string
}

// readyCheck holds the per-dependency result of a readiness probe.
type readyCheck struct {
	// Name is the dependency label (e.g. "index", "chunk_store").
	Name string `json:"name"`
	// OK is true when the dependency responded successfully.
	OK bool `json:"ok"`
	// Error contains the failure reason when OK is false.
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	// Ready is true only when every dependency probe succeeded.
	Ready bool `json:"ready"`
	// Checks holds one entry per probe, in registration order.
	Checks []readyCheck `json:"checks"`
}

// probeAll runs every pinger concurrently, each under probeTimeout, and
// returns the errors in the order of pingers.
func probeAll(ctx context.Context, pingers []Pinger) []error {
	errs := make([]error, len(pingers))
	var g errgroup.Group
	for i, p := range pingers {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			errs[i] = p.Ping(pctx)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// MultiPinger combines several pingers into one.
type MultiPinger struct {
	pingers []Pinger
}

// NewMultiPinger constructs a MultiPinger over pingers.
func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

// Ping probes all pingers and joins every failure, each prefixed with the
// failing pinger's name.
func (m *MultiPinger) Ping(ctx context.Context) error {
	var failed []error
	for i, err := range probeAll(ctx, m.pingers) {
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", m.pingers[i].Name(), err))
		}
	}
	return errors.Join(failed...)
}

// Name returns a combined label for logging purposes.
func (m *MultiPinger) Name() string { return "multi" }

// handleReady handles GET /api/ready. It returns 200 when every probe passes
// and 503 otherwise. Unlike /health it reflects dependency state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true, Checks: make([]readyCheck, 0, len(s.pingers))}
	for i, err := range probeAll(r.Context(), s.pingers) {
		name := s.pingers[i].Name()
		check := readyCheck{Name: name, OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			resp.Ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", name),
				slog.Any("error", err),
			)
		}
		resp.Checks = append(resp.Checks, check)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, log, status, resp)
}

// handleHealth handles GET /health. It always returns 200 and reports
// whether the assistant has a non-empty index, without triggering a load.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, healthResponse{
		Status:         "healthy",
		RAGIndexLoaded: s.answerer.IsLoaded(),
	})
}
