// Package metrics exposes Prometheus counters for ingestion runs and HTTP
// traffic.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dvloznov/ledger-lake/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledger"

// Run outcomes used as the status label.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Metrics records ingestion and HTTP metrics on its own registry.
// It implements pipeline.RunRecorder.
type Metrics struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	bronzeRows   prometheus.Counter
	silverRows   prometheus.Counter
	violations   prometheus.Counter
	sourceErrors prometheus.Counter
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	mu      sync.Mutex
	started map[string]time.Time
	now     func() time.Time
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_runs_total",
			Help:      "Finished ingestion runs by status.",
		}, []string{"status"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingestion_run_duration_seconds",
			Help:      "Wall time of ingestion runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		bronzeRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bronze_rows_total",
			Help:      "Bronze rows produced by successful runs.",
		}),
		silverRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "silver_rows_total",
			Help:      "Silver rows produced by successful runs.",
		}),
		violations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_violations_total",
			Help:      "Validation violations reported by successful runs.",
		}),
		sourceErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Sources that could not be read.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		started: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) StartRun(ctx context.Context, runID string, sources []string) error {
	m.mu.Lock()
	m.started[runID] = m.now()
	m.mu.Unlock()
	return nil
}

func (m *Metrics) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	m.finish(runID, StatusFailed)
}

func (m *Metrics) MarkRunSucceeded(ctx context.Context, runID string, stats pipeline.RunStats) error {
	m.finish(runID, StatusSucceeded)
	m.bronzeRows.Add(float64(stats.BronzeRows))
	m.silverRows.Add(float64(stats.SilverRows))
	m.violations.Add(float64(stats.Violations))
	m.sourceErrors.Add(float64(stats.SourceErrors))
	return nil
}

func (m *Metrics) finish(runID, status string) {
	m.runs.WithLabelValues(status).Inc()

	m.mu.Lock()
	start, ok := m.started[runID]
	delete(m.started, runID)
	m.mu.Unlock()

	if ok {
		m.runDuration.Observe(m.now().Sub(start).Seconds())
	}
}

// Middleware counts requests per chi route pattern. Requests that match no
// route are labelled "unmatched" to keep label cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := m.now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(m.now().Sub(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

var _ pipeline.RunRecorder = (*Metrics)(nil)
