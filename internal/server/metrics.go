package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/folio-go/internal/assistant"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// Chat outcomes.
const (
	outcomeOK      = "ok"
	outcomeInvalid = "invalid"
	outcomeTimeout = "timeout"
	outcomeError   = "error"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// chatRequestsTotal counts /api/chat requests by outcome: "ok",
	// "invalid", "timeout", or "error".
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the wall-clock duration of each /api/chat
	// request.
	chatDurationSeconds *prometheus.HistogramVec

	// answerConfidence records the confidence of every answer.
	answerConfidence prometheus.Histogram

	// answerSufficientTotal counts answers by sufficiency verdict.
	answerSufficientTotal *prometheus.CounterVec

	// retrievedSources records how many sources each answer cited.
	retrievedSources prometheus.Histogram

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. indexedChunks backs the indexed-chunks gauge.
func newServerMetrics(reg prometheus.Registerer, indexedChunks func() int) *serverMetrics {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "folio",
		Subsystem: "index",
		Name:      "chunks",
		Help:      "Number of chunks in the loaded knowledge index (0 when not loaded).",
	}, func() float64 { return float64(indexedChunks()) })

	return &serverMetrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of /api/chat requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "folio",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/chat requests.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		answerConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "folio",
			Subsystem: "chat",
			Name:      "confidence",
			Help:      "Confidence score of answers.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),

		answerSufficientTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "chat",
			Name:      "sufficient_context_total",
			Help:      "Answers partitioned by whether retrieval found sufficient context.",
		}, []string{"sufficient"}),

		retrievedSources: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "folio",
			Subsystem: "chat",
			Name:      "sources",
			Help:      "Number of sources cited per answer.",
			Buckets:   []float64{0, 1, 2, 3, 5, 10},
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "folio",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "folio",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// observeAnswer records a successful chat request.
func (m *serverMetrics) observeAnswer(a *assistant.Answer, elapsed time.Duration) {
	m.chatRequestsTotal.WithLabelValues(outcomeOK).Inc()
	m.chatDurationSeconds.WithLabelValues(outcomeOK).Observe(elapsed.Seconds())
	m.answerConfidence.Observe(a.Confidence)
	m.answerSufficientTotal.WithLabelValues(strconv.FormatBool(a.HasSufficientContext)).Inc()
	m.retrievedSources.Observe(float64(len(a.Sources)))
}

// instrument wraps next so every request is counted and timed under name.
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, name, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	})
}
