package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for the rate limiter middleware.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate limit (tokens added per second).
	RequestsPerSecond float64
	// Burst is the maximum number of requests allowed in a burst.
	Burst int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// RateLimiter enforces a per-client token-bucket limit.
type RateLimiter struct {
	cfg     RateLimitConfig
	clients sync.Map // client ip -> *clientLimiter
	now     func() time.Time
}

// NewRateLimiter creates a RateLimiter. Stale clients are dropped by Sweep.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{cfg: cfg, now: time.Now}
}

func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	v, _ := rl.clients.LoadOrStore(ip, &clientLimiter{
		limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst),
	})
	cl := v.(*clientLimiter)
	cl.mu.Lock()
	cl.lastSeen = rl.now()
	cl.mu.Unlock()
	return cl.limiter
}

// Sweep forgets clients not seen for longer than idle.
func (rl *RateLimiter) Sweep(idle time.Duration) int {
	removed := 0
	cutoff := rl.now().Add(-idle)
	rl.clients.Range(func(key, value any) bool {
		cl := value.(*clientLimiter)
		cl.mu.Lock()
		stale := cl.lastSeen.Before(cutoff)
		cl.mu.Unlock()
		if stale {
			rl.clients.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Middleware responds with 429 Too Many Requests once a client exceeds its
// budget and sets rate-limit headers on admitted requests.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.limiterFor(clientIP(r))

		reservation := limiter.Reserve()
		if !reservation.OK() {
			writeTooManyRequests(w, 0)
			return
		}
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			writeTooManyRequests(w, int(delay.Seconds())+1)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Burst))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the host part of RemoteAddr. X-Forwarded-For is ignored
// since clients control it.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	if retryAfterSecs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    429,
		"message": "rate limit exceeded",
	})
}
