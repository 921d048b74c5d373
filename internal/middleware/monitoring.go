package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// Metrics holds all Prometheus metrics collectors.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsTotal     *prometheus.CounterVec
	ActiveRequests  prometheus.Gauge

	// StageDuration tracks per-stage latency within /search and /ask:
	// stage is one of "retrieve", "rerank", "generate".
	StageDuration *prometheus.HistogramVec
	// RetrievedTotal counts documents returned per source ("bm25", "dense")
	// before fusion.
	RetrievedTotal *prometheus.CounterVec
	// BackendFailuresTotal counts adapter-level failures per source
	// ("bm25", "dense"), incremented whenever an adapter degrades to an
	// empty result instead of raising.
	BackendFailuresTotal *prometheus.CounterVec
	// RerankDegradedTotal counts reranker passthrough degradations.
	RerankDegradedTotal prometheus.Counter
	// AbstainTotal counts /ask abstentions by reason.
	AbstainTotal *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method and path.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "path"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_errors_total",
				Help: "Total number of HTTP error responses (4xx/5xx).",
			},
			[]string{"method", "path", "status"},
		),
		ActiveRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_active_requests",
				Help: "Number of currently active HTTP requests.",
			},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "query_stage_duration_seconds",
				Help:    "Latency of each query-processing stage in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"stage"},
		),
		RetrievedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrieved_documents_total",
				Help: "Total number of documents returned per retrieval source, before fusion.",
			},
			[]string{"source"},
		),
		BackendFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_failures_total",
				Help: "Total number of retrieval backend failures per source.",
			},
			[]string{"source"},
		),
		RerankDegradedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rerank_degraded_total",
				Help: "Total number of times reranking degraded to passthrough ordering.",
			},
		),
		AbstainTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "abstain_total",
				Help: "Total number of /ask abstentions by reason.",
			},
			[]string{"reason"},
		),
	}

	reg.MustRegister(
		m.RequestsTotal, m.RequestDuration, m.ErrorsTotal, m.ActiveRequests,
		m.StageDuration, m.RetrievedTotal, m.BackendFailuresTotal, m.RerankDegradedTotal, m.AbstainTotal,
	)
	return m
}

// ObserveStage records the latency of a query-processing stage
// ("retrieve", "rerank", or "generate").
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// AddRetrieved records the number of documents a retrieval source
// returned before fusion.
func (m *Metrics) AddRetrieved(source string, n int) {
	m.RetrievedTotal.WithLabelValues(source).Add(float64(n))
}

// IncLexicalFailure implements lexical.Metrics.
func (m *Metrics) IncLexicalFailure() {
	m.BackendFailuresTotal.WithLabelValues("bm25").Inc()
}

// IncDenseFailure implements vector.Metrics.
func (m *Metrics) IncDenseFailure() {
	m.BackendFailuresTotal.WithLabelValues("dense").Inc()
}

// IncRerankDegradation implements rerank.DegradationMetrics.
func (m *Metrics) IncRerankDegradation() {
	m.RerankDegradedTotal.Inc()
}

// IncAbstain implements generator.Metrics.
func (m *Metrics) IncAbstain(reason model.AbstainReason) {
	m.AbstainTotal.WithLabelValues(string(reason)).Inc()
}

// Monitoring returns middleware that records request metrics.
func Monitoring(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.ActiveRequests.Inc()

			sw := &metricsWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(sw.status)
			path := sanitizePath(r.URL.Path)

			m.RequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			m.RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
			m.ActiveRequests.Dec()

			if sw.status >= 400 {
				m.ErrorsTotal.WithLabelValues(r.Method, path, status).Inc()
			}
		})
	}
}

// MetricsHandler returns the Prometheus metrics endpoint handler.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

type metricsWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (mw *metricsWriter) WriteHeader(code int) {
	if !mw.wroteHeader {
		mw.status = code
		mw.wroteHeader = true
	}
	mw.ResponseWriter.WriteHeader(code)
}

func (mw *metricsWriter) Write(b []byte) (int, error) {
	if !mw.wroteHeader {
		mw.wroteHeader = true
	}
	return mw.ResponseWriter.Write(b)
}

// sanitizePath normalizes URL paths to prevent high-cardinality label values.
// Replaces path segments that look like IDs with ":id".
func sanitizePath(path string) string {
	if len(path) == 0 {
		return "/"
	}

	var result []byte
	start := 0
	segIdx := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			seg := path[start:i]
			if segIdx > 0 && looksLikeID(seg) {
				result = append(result, ":id"...)
			} else {
				result = append(result, seg...)
			}
			if i < len(path) {
				result = append(result, '/')
			}
			start = i + 1
			segIdx++
		}
	}
	return string(result)
}

// looksLikeID returns true if the segment looks like a UUID or numeric ID.
func looksLikeID(seg string) bool {
	if len(seg) == 0 {
		return false
	}
	// UUID-like: contains dashes and is 36 chars
	if len(seg) == 36 {
		dashes := 0
		for _, c := range seg {
			if c == '-' {
				dashes++
			}
		}
		if dashes == 4 {
			return true
		}
	}
	// Numeric IDs
	for _, c := range seg {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(seg) > 0
}
