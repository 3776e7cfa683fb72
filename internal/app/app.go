// Package app provides application-level wiring and dependency injection
// for the BI metadata service.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"bi-demo/internal/config"
	"bi-demo/internal/db/repository"
	"bi-demo/internal/domain"
	"bi-demo/internal/metrics"
	"bi-demo/internal/middleware"
	"bi-demo/internal/service/assets"
	"bi-demo/internal/service/importexport"
	"bi-demo/internal/service/security"
	"bi-demo/internal/service/sqllab"
)

// Deps holds the external dependencies that main() (or a test harness) must
// provide: database handles, config and an optional extra stats observer.
type Deps struct {
	Cfg     *config.Config
	WriteDB *sql.DB
	ReadDB  *sql.DB
	// Stats receives every IncrStats call next to the Prometheus counter.
	Stats  domain.StatsRecorder
	Logger *slog.Logger
}

// Repos exposes the repositories. Fixture helpers in tests work against them
// directly.
type Repos struct {
	Users           *repository.UserRepo
	Roles           *repository.RoleRepo
	PermissionViews *repository.PermissionViewRepo
	Databases       *repository.DatabaseRepo
	Datasets        *repository.DatasetRepo
	Charts          *repository.ChartRepo
	Dashboards      *repository.DashboardRepo
	Queries         *repository.QueryRepo
}

// Services groups the service pointers the API handler needs.
type Services struct {
	Security   *security.Manager
	Databases  *assets.DatabaseService
	Datasets   *assets.DatasetService
	Charts     *assets.ChartService
	Dashboards *assets.DashboardService
	SQLLab     *sqllab.Service
	Import     *importexport.Service
}

// App holds the fully-wired application.
type App struct {
	Repos     Repos
	Services  Services
	Metrics   *metrics.Metrics
	Stats     domain.StatsRecorder
	Auth      *middleware.Authenticator
	Connector *sqllab.Connector

	limiter *middleware.RateLimiter
	cfg     *config.Config
	writeDB *sql.DB
	readDB  *sql.DB
	logger  *slog.Logger
}

// New wires all repositories and services from the provided deps and syncs
// the builtin roles.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	readDB := deps.ReadDB
	if readDB == nil {
		readDB = deps.WriteDB
	}

	// === Repositories (write-pool) ===
	repos := Repos{
		Users:           repository.NewUserRepo(deps.WriteDB),
		Roles:           repository.NewRoleRepo(deps.WriteDB),
		PermissionViews: repository.NewPermissionViewRepo(deps.WriteDB),
		Databases:       repository.NewDatabaseRepo(deps.WriteDB),
		Datasets:        repository.NewDatasetRepo(deps.WriteDB),
		Charts:          repository.NewChartRepo(deps.WriteDB),
		Dashboards:      repository.NewDashboardRepo(deps.WriteDB),
		Queries:         repository.NewQueryRepo(deps.WriteDB),
	}

	// === Security ===
	sec := security.NewManager(repos.Users, repos.Roles, repos.PermissionViews,
		logger.With("component", "security"), security.WithHashCost(cfg.Auth.BcryptCost))
	if err := sec.SyncRoles(ctx); err != nil {
		return nil, fmt.Errorf("sync roles: %w", err)
	}

	tokens, err := middleware.NewSessionTokens(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("session tokens: %w", err)
	}
	auth := middleware.NewAuthenticator(tokens, sec, cfg.Auth.CookieName, logger.With("component", "auth"))

	// === Asset services ===
	connector := sqllab.NewConnector()
	services := Services{
		Security: sec,
		Databases: assets.NewDatabaseService(assets.DatabaseRepos{
			Databases:  repos.Databases,
			Datasets:   repos.Datasets,
			Charts:     repos.Charts,
			Dashboards: repos.Dashboards,
		}, sec, connector, logger.With("component", "databases")),
		Datasets:   assets.NewDatasetService(repos.Datasets, repos.Databases, sec),
		Charts:     assets.NewChartService(repos.Charts, repos.Datasets, repos.Databases),
		Dashboards: assets.NewDashboardService(repos.Dashboards),
		SQLLab:     sqllab.NewService(repos.Databases, repos.Queries, connector, logger.With("component", "sqllab")),
		Import: importexport.NewService(repos.Databases, repos.Datasets, repos.Charts, repos.Dashboards, sec,
			logger.With("component", "import")),
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		})
	}

	m := metrics.New()
	return &App{
		Repos:     repos,
		Services:  services,
		Metrics:   m,
		Stats:     metrics.Tee(m, deps.Stats),
		Auth:      auth,
		Connector: connector,
		limiter:   limiter,
		cfg:       cfg,
		writeDB:   deps.WriteDB,
		readDB:    readDB,
		logger:    logger,
	}, nil
}

// WriteDB returns the single-connection write pool of the metastore.
func (a *App) WriteDB() *sql.DB { return a.writeDB }

// Close releases the pooled SQL Lab connections. The metastore handles belong
// to the caller.
func (a *App) Close() error {
	return a.Connector.Close()
}
