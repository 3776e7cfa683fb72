package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"bi-demo/internal/api"
	"bi-demo/internal/middleware"
)

const rateLimitIdle = 10 * time.Minute

// Router assembles the HTTP surface: ambient middleware, health and metrics
// endpoints, the session routes and the REST API.
func (a *App) Router() http.Handler {
	h := api.NewHandler(api.Deps{
		Auth:       a.Auth,
		Users:      a.Services.Security,
		Databases:  a.Services.Databases,
		Datasets:   a.Services.Datasets,
		Charts:     a.Services.Charts,
		Dashboards: a.Services.Dashboards,
		SQLLab:     a.Services.SQLLab,
		Importer:   a.Services.Import,
		Stats:      a.Stats,
		Logger:     a.logger.With("component", "api"),
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(a.logger.With("component", "http")))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           7200,
	}))
	if a.limiter != nil {
		r.Use(a.limiter.Middleware)
	}
	r.Use(a.Metrics.Middleware)

	r.Get("/health", h.Health())
	r.Get("/health/ready", a.ready)
	r.Handle("/metrics", a.Metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(a.Auth.Middleware())
		h.Routes(r)
	})
	return r
}

// ready reports whether the metastore answers.
func (a *App) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status, body := http.StatusOK, map[string]string{"status": "OK"}
	if err := a.readDB.PingContext(ctx); err != nil {
		a.logger.Warn("readiness check failed", "error", err)
		status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// SweepRateLimits drops idle rate-limit buckets every interval until ctx is
// done.
func (a *App) SweepRateLimits(ctx context.Context, interval time.Duration) error {
	if a.limiter == nil {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := a.limiter.Sweep(rateLimitIdle); n > 0 {
				a.logger.Debug("rate limiter swept", "clients", n)
			}
		}
	}
}
