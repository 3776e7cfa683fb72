package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedHandler(rl *RateLimiter) http.Handler {
	return rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chart/", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_Budget(t *testing.T) {
	tests := []struct {
		name     string
		rps      float64
		burst    int
		requests int
		wantLast int
	}{
		{"within burst", 100, 10, 5, http.StatusNoContent},
		{"exactly burst", 1, 3, 3, http.StatusNoContent},
		{"over burst", 1, 2, 3, http.StatusTooManyRequests},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := limitedHandler(NewRateLimiter(RateLimitConfig{RequestsPerSecond: tc.rps, Burst: tc.burst}))
			var rec *httptest.ResponseRecorder
			for range tc.requests {
				rec = hit(h, "")
			}
			assert.Equal(t, tc.wantLast, rec.Code)
		})
	}
}

func TestRateLimiter_AdmittedRequestsCarryHeaders(t *testing.T) {
	h := limitedHandler(NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 4}))

	rec := hit(h, "")
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimiter_RejectionBody(t *testing.T) {
	h := limitedHandler(NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.5, Burst: 1}))
	require.Equal(t, http.StatusNoContent, hit(h, "").Code)

	rec := hit(h, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimiter_ClientsAreIsolated(t *testing.T) {
	h := limitedHandler(NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))

	require.Equal(t, http.StatusNoContent, hit(h, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:2000").Code, "same host, new port")
	assert.Equal(t, http.StatusNoContent, hit(h, "10.0.0.2:1000").Code)
}

func TestClientIP(t *testing.T) {
	tests := map[string]struct {
		remoteAddr string
		xff        string
		want       string
	}{
		"ipv4":            {remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		"ipv6":            {remoteAddr: "[::1]:12345", want: "::1"},
		"forwarded-for":   {remoteAddr: "10.0.0.1:1234", xff: "203.0.113.50", want: "10.0.0.1"},
		"no port present": {remoteAddr: "10.0.0.9", want: "10.0.0.9"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			assert.Equal(t, tc.want, clientIP(req))
		})
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	clock := time.Date(2019, 1, 2, 3, 4, 5, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	rl.now = func() time.Time { return clock }
	h := limitedHandler(rl)

	hit(h, "10.0.0.1:1")
	hit(h, "10.0.0.2:1")
	assert.Zero(t, rl.Sweep(time.Minute))

	clock = clock.Add(90 * time.Second)
	hit(h, "10.0.0.1:1")

	assert.Equal(t, 1, rl.Sweep(time.Minute), "only the idle client goes")
	assert.Zero(t, rl.Sweep(time.Minute))
}
