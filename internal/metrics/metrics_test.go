package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bi-demo/internal/domain"
)

func TestIncrStats(t *testing.T) {
	m := New()
	m.IncrStats(domain.BucketSuccess, "get_list")
	m.IncrStats(domain.BucketSuccess, "get_list")
	m.IncrStats(domain.BucketWarning, "post")

	assert.InDelta(t, 2, testutil.ToFloat64(m.apiCalls.WithLabelValues("get_list", "success")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.apiCalls.WithLabelValues("post", "warning")), 0.001)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.IncrStats(domain.BucketError, "delete")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bi_api_requests_total{bucket="error",func="delete"} 1`)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/chart/{pk}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/chart/7", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `route="/api/v1/chart/{pk}"`)
}

type countingRecorder struct{ calls int }

func (c *countingRecorder) IncrStats(domain.MetricBucket, string) { c.calls++ }

func TestTee(t *testing.T) {
	a, b := &countingRecorder{}, &countingRecorder{}
	Tee(a, nil, b).IncrStats(domain.BucketSuccess, "get")
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)

	Discard.IncrStats(domain.BucketSuccess, "get")
}
