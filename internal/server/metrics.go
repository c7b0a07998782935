// Package server: metrics.go registers all Prometheus metrics for the HTTP
// server and the answer pipeline, and exposes helpers used by handlers and
// middleware.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/askdocs-go/internal/apperr"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the matched route pattern rather than the raw URL path.
	labelHandler = "handler"
)

// Metrics holds all Prometheus metrics owned by the server. It also
// implements chat.StageObserver so the pipeline can report stage latency.
// Build one with NewMetrics against a dedicated registry so tests stay
// hermetic.
type Metrics struct {
	// chatRequestsTotal counts completed /api/chat requests, partitioned by
	// outcome: "ok", "timeout", or an apperr kind.
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the wall-clock duration of each /api/chat
	// request.
	chatDurationSeconds *prometheus.HistogramVec

	// chatInFlight is the number of /api/chat requests currently running.
	chatInFlight prometheus.Gauge

	// stageDurationSeconds records pipeline stage latency (retrieve,
	// synthesize) partitioned by outcome.
	stageDurationSeconds *prometheus.HistogramVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, route pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// NewMetrics registers all server metrics against reg and returns them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askdocs",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of /api/chat requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "askdocs",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/chat requests.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		}, []string{"outcome"}),

		chatInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "askdocs",
			Subsystem: "chat",
			Name:      "in_flight",
			Help:      "Number of /api/chat requests currently running.",
		}),

		stageDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "askdocs",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of answer pipeline stages.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage", "outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askdocs",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "askdocs",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// ObserveStage records one pipeline stage run.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	m.stageDurationSeconds.WithLabelValues(stage, apperr.Kind(err)).Observe(d.Seconds())
}

// observeChat records one completed /api/chat request.
func (m *Metrics) observeChat(outcome string, d time.Duration) {
	m.chatRequestsTotal.WithLabelValues(outcome).Inc()
	m.chatDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// instrument wraps the route mux and records per-route request metrics.
// The mux sets r.Pattern on the request it routes, so the pattern is read
// after next returns.
func (m *Metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}

		start := time.Now()
		next.ServeHTTP(rw, r)

		handler := r.Pattern
		if handler == "" {
			handler = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}
