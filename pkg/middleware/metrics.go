package middleware

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warden-proxy/warden/pkg/domain"
)

// Metrics aggregates the Prometheus instruments the interceptor records into.
// It owns its registry so tests can assert on an isolated instance, and the
// admin listener exposes it through Handler.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	flaggedTotal    *prometheus.CounterVec
	duration        *prometheus.HistogramVec
}

// NewMetrics builds and registers the validation instruments.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_requests_total",
			Help: "Requests seen by the interceptor, partitioned by method and outcome.",
		}, []string{"method", "outcome"}),
		rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_rejections_total",
			Help: "Rejected requests, partitioned by taxonomy category and request scope.",
		}, []string{"category", "scope"}),
		flaggedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_flagged_headers_total",
			Help: "Spoofable forwarding headers observed on requests, partitioned by header name.",
		}, []string{"header"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_validation_duration_seconds",
			Help:    "Wall-clock time spent validating one request.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(m.requestsTotal, m.rejectionsTotal, m.flaggedTotal, m.duration)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe records the outcome of one validated request. Label values are
// taxonomy constants and header names only, never request payloads.
func (m *Metrics) Observe(method string, verdict domain.Verdict, flags []domain.Event, elapsed time.Duration) {
	if m == nil {
		return
	}

	outcome := "allow"
	if !verdict.Allowed {
		outcome = "reject"
		m.rejectionsTotal.WithLabelValues(string(verdict.Category), string(verdict.Scope)).Inc()
	}

	m.requestsTotal.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())

	for _, flag := range flags {
		m.flaggedTotal.WithLabelValues(flag.Field).Inc()
	}
}
