// Package api provides the HTTP handlers of the BI REST API.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"bi-demo/internal/domain"
	"bi-demo/internal/middleware"
	"bi-demo/internal/service/importexport"
	"bi-demo/internal/service/sqllab"
)

// DatabaseService manages registered databases.
type DatabaseService interface {
	crudService[domain.Database, domain.DatabasePostRequest, domain.DatabasePutRequest]
	Get(ctx context.Context, id int64) (*domain.Database, error)
	RelatedObjects(ctx context.Context, id int64) (*domain.RelatedObjects, error)
}

// DatasetService manages datasets.
type DatasetService interface {
	crudService[domain.Dataset, domain.DatasetPostRequest, domain.DatasetPutRequest]
	Get(ctx context.Context, id int64) (*domain.Dataset, error)
}

// ChartService manages charts.
type ChartService interface {
	crudService[domain.Chart, domain.ChartPostRequest, domain.ChartPutRequest]
	Get(ctx context.Context, id int64) (*domain.Chart, error)
}

// DashboardService manages dashboards. Get accepts an id or a slug.
type DashboardService interface {
	crudService[domain.Dashboard, domain.DashboardPostRequest, domain.DashboardPutRequest]
	Get(ctx context.Context, idOrSlug string) (*domain.Dashboard, error)
}

// SQLLab executes ad-hoc SQL.
type SQLLab interface {
	Execute(ctx context.Context, req sqllab.ExecuteRequest) (*sqllab.ExecuteResult, error)
	GetByClientID(ctx context.Context, clientID string) (*domain.Query, error)
}

// Importer loads asset bundles.
type Importer interface {
	Import(ctx context.Context, assetType string, data []byte, overwrite bool) error
}

// Authenticator checks login credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
}

// Deps are the collaborators of a Handler.
type Deps struct {
	Auth       *middleware.Authenticator
	Users      Authenticator
	Databases  DatabaseService
	Datasets   DatasetService
	Charts     ChartService
	Dashboards DashboardService
	SQLLab     SQLLab
	Importer   Importer
	Stats      domain.StatsRecorder
	Logger     *slog.Logger
}

// Handler serves the REST API.
type Handler struct {
	auth       *middleware.Authenticator
	users      Authenticator
	databases  DatabaseService
	datasets   DatasetService
	charts     ChartService
	dashboards DashboardService
	sqllab     SQLLab
	importer   Importer
	stats      domain.StatsRecorder
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stats := d.Stats
	if stats == nil {
		stats = noStats{}
	}
	return &Handler{
		auth:       d.Auth,
		users:      d.Users,
		databases:  d.Databases,
		datasets:   d.Datasets,
		charts:     d.Charts,
		dashboards: d.Dashboards,
		sqllab:     d.SQLLab,
		importer:   d.Importer,
		stats:      stats,
		validate:   newValidator(),
		logger:     logger,
	}
}

type noStats struct{}

func (noStats) IncrStats(domain.MetricBucket, string) {}

// Routes registers the session endpoints and everything under /api/v1.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/login/", h.loginPage)
	r.Post("/login/", h.login)
	r.Get("/logout/", h.logout)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/me/", h.instrument("me", h.me))
		r.Route("/database", (&resource[domain.Database, domain.DatabasePostRequest, domain.DatabasePutRequest]{
			h: h, name: "database", view: domain.ViewDatabase, assetType: importexport.TypeDatabase,
			svc: h.databases, get: byID(h.databases.Get),
			id: func(d *domain.Database) int64 { return d.ID },
			extra: func(r chi.Router) {
				r.Get("/{pk}/related_objects/", h.instrument("related_objects", h.databaseRelatedObjects))
			},
		}).routes)
		r.Route("/dataset", (&resource[domain.Dataset, domain.DatasetPostRequest, domain.DatasetPutRequest]{
			h: h, name: "dataset", view: domain.ViewDataset, assetType: importexport.TypeDataset,
			svc: h.datasets, get: byID(h.datasets.Get),
			id: func(d *domain.Dataset) int64 { return d.ID },
		}).routes)
		r.Route("/chart", (&resource[domain.Chart, domain.ChartPostRequest, domain.ChartPutRequest]{
			h: h, name: "chart", view: domain.ViewChart, assetType: importexport.TypeChart,
			svc: h.charts, get: byID(h.charts.Get),
			id: func(c *domain.Chart) int64 { return c.ID },
		}).routes)
		r.Route("/dashboard", (&resource[domain.Dashboard, domain.DashboardPostRequest, domain.DashboardPutRequest]{
			h: h, name: "dashboard", view: domain.ViewDashboard, assetType: importexport.TypeDashboard,
			svc: h.dashboards, get: h.dashboards.Get,
			id: func(d *domain.Dashboard) int64 { return d.ID },
		}).routes)
		r.Route("/sqllab", func(r chi.Router) {
			r.Post("/execute/", h.instrument("execute", h.executeSQL))
			r.Get("/query/{client_id}", h.instrument("get_query", h.getQuery))
		})
	})
}

// byID adapts an id lookup to the path parameter.
func byID[T any](get func(ctx context.Context, id int64) (*T, error)) func(ctx context.Context, pk string) (*T, error) {
	return func(ctx context.Context, pk string) (*T, error) {
		id, err := strconv.ParseInt(pk, 10, 64)
		if err != nil || id <= 0 {
			return nil, domain.ErrNotFound("%q not found", pk)
		}
		return get(ctx, id)
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return v
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// Health reports liveness.
func (h *Handler) Health() http.HandlerFunc { return h.health }
