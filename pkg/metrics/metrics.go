// Package metrics holds the Prometheus instrumentation for camlog.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for camlog. Pass to components that
// need to record metrics.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	SSEConnections  prometheus.Gauge
	EventsParsed    *prometheus.CounterVec
	ParseErrors     prometheus.Counter
	SessionsTotal   prometheus.Counter
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := newWith(reg)
	m.registry = reg
	return m
}

func newWith(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "camlog",
				Name:      "http_requests_total",
				Help:      "Total number of API requests processed",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "camlog",
				Name:      "http_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		SSEConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "camlog",
				Name:      "sse_connections",
				Help:      "Number of live SSE connections",
			},
		),
		EventsParsed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "camlog",
				Name:      "events_parsed_total",
				Help:      "Total combat log events parsed, by event type",
			},
			[]string{"type"},
		),
		ParseErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "camlog",
				Name:      "parse_errors_total",
				Help:      "Total combat log lines that failed to parse",
			},
		),
		SessionsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "camlog",
				Name:      "sessions_total",
				Help:      "Total combat sessions detected",
			},
		),
	}
}

// RequestCompleted records one finished API request. Implements the
// server's request observer.
func (m *Metrics) RequestCompleted(method, path string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// StreamOpened records a new live SSE connection. Implements the SSE
// manager's connection observer.
func (m *Metrics) StreamOpened() {
	m.SSEConnections.Inc()
}

// StreamClosed records the end of a live SSE connection.
func (m *Metrics) StreamClosed() {
	m.SSEConnections.Dec()
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
