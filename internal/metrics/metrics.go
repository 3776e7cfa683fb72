// Package metrics exposes Prometheus metrics for the API.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bi-demo/internal/domain"
)

// Metrics owns a private registry with the API counters. It implements
// domain.StatsRecorder.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	apiCalls        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New initialises the registry and the API metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bi_api_requests_total",
		Help: "API calls by handler function and outcome bucket.",
	}, []string{"func", "bucket"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bi_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
	registry.MustRegister(calls, duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		apiCalls:        calls,
		requestDuration: duration,
	}
}

// IncrStats counts one API call.
func (m *Metrics) IncrStats(bucket domain.MetricBucket, funcName string) {
	m.apiCalls.WithLabelValues(funcName, string(bucket)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return m.handler
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware observes request latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		m.requestDuration.WithLabelValues(routePattern(r), r.Method).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// Tee fans IncrStats out to several recorders.
func Tee(recorders ...domain.StatsRecorder) domain.StatsRecorder {
	var out tee
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type tee []domain.StatsRecorder

func (t tee) IncrStats(bucket domain.MetricBucket, funcName string) {
	for _, r := range t {
		r.IncrStats(bucket, funcName)
	}
}

// Discard drops every call.
var Discard domain.StatsRecorder = discard{}

type discard struct{}

func (discard) IncrStats(domain.MetricBucket, string) {}
