package assets

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"bi-demo/internal/domain"
	"bi-demo/internal/service/security"
	"bi-demo/internal/service/sqllab"
)

// ConnectionCache drops pooled connections when a database changes.
type ConnectionCache interface {
	Forget(uri string)
}

// DatabaseService manages registered databases.
type DatabaseService struct {
	repo       domain.DatabaseRepository
	datasets   domain.DatasetRepository
	charts     domain.ChartRepository
	dashboards domain.DashboardRepository
	perms      PermissionRegistry
	conns      ConnectionCache
	logger     *slog.Logger
}

// DatabaseRepos are the repositories a DatabaseService reads and writes.
type DatabaseRepos struct {
	Databases  domain.DatabaseRepository
	Datasets   domain.DatasetRepository
	Charts     domain.ChartRepository
	Dashboards domain.DashboardRepository
}

// NewDatabaseService creates a DatabaseService. conns may be nil.
func NewDatabaseService(repos DatabaseRepos, perms PermissionRegistry, conns ConnectionCache, logger *slog.Logger) *DatabaseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DatabaseService{
		repo:       repos.Databases,
		datasets:   repos.Datasets,
		charts:     repos.Charts,
		dashboards: repos.Dashboards,
		perms:      perms,
		conns:      conns,
		logger:     logger,
	}
}

func (s *DatabaseService) List(ctx context.Context, q domain.ListQuery) ([]domain.Database, int64, error) {
	if _, err := security.Require(ctx, domain.PermCanRead, domain.ViewDatabase); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, q)
}

func (s *DatabaseService) Get(ctx context.Context, id int64) (*domain.Database, error) {
	if _, err := security.Require(ctx, domain.PermCanRead, domain.ViewDatabase); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// GetByName looks a database up without a permission check; it serves
// internal callers such as fixtures and imports.
func (s *DatabaseService) GetByName(ctx context.Context, name string) (*domain.Database, error) {
	d, err := s.repo.GetByName(ctx, name)
	if isNotFound(err) {
		return nil, domain.ErrNotFound("database %q not found", name)
	}
	return d, err
}

func (s *DatabaseService) Create(ctx context.Context, req domain.DatabasePostRequest) (*domain.Database, error) {
	if _, err := security.Require(ctx, domain.PermCanWrite, domain.ViewDatabase); err != nil {
		return nil, err
	}
	if _, _, err := sqllab.ParseURI(req.SQLAlchemyURI); err != nil {
		return nil, err
	}
	if existing, err := s.repo.FindFirst(ctx, map[string]any{"database_name": req.DatabaseName}); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, domain.ErrConflict("a database with the name %q already exists", req.DatabaseName)
	}

	expose := true
	if req.ExposeInSQLLab != nil {
		expose = *req.ExposeInSQLLab
	}
	d, err := s.repo.Save(ctx, &domain.Database{
		UUID:           req.UUID,
		DatabaseName:   req.DatabaseName,
		SQLAlchemyURI:  req.SQLAlchemyURI,
		Extra:          req.Extra,
		ExposeInSQLLab: expose,
		AllowCTAS:      req.AllowCTAS,
		AllowCVAS:      req.AllowCVAS,
		AllowDML:       req.AllowDML,
		CacheTimeout:   req.CacheTimeout,
	})
	if err != nil {
		return nil, err
	}
	if err := s.registerPerm(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info("database created", "database", d.DatabaseName, "id", d.ID)
	return d, nil
}

func (s *DatabaseService) Update(ctx context.Context, id int64, req domain.DatabasePutRequest) (*domain.Database, error) {
	if _, err := security.Require(ctx, domain.PermCanWrite, domain.ViewDatabase); err != nil {
		return nil, err
	}
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldPerm, oldURI := d.Perm(), d.SQLAlchemyURI

	if req.DatabaseName != nil {
		d.DatabaseName = *req.DatabaseName
	}
	if req.SQLAlchemyURI != nil {
		if _, _, err := sqllab.ParseURI(*req.SQLAlchemyURI); err != nil {
			return nil, err
		}
		d.SQLAlchemyURI = *req.SQLAlchemyURI
	}
	if req.Extra != nil {
		d.Extra = *req.Extra
	}
	if req.ExposeInSQLLab != nil {
		d.ExposeInSQLLab = *req.ExposeInSQLLab
	}
	if req.AllowCTAS != nil {
		d.AllowCTAS = *req.AllowCTAS
	}
	if req.AllowCVAS != nil {
		d.AllowCVAS = *req.AllowCVAS
	}
	if req.AllowDML != nil {
		d.AllowDML = *req.AllowDML
	}
	if req.CacheTimeout != nil {
		d.CacheTimeout = req.CacheTimeout
	}

	updated, err := s.repo.Save(ctx, d)
	if err != nil {
		return nil, err
	}
	if updated.Perm() != oldPerm {
		if err := s.perms.DeleteViewMenu(ctx, oldPerm); err != nil {
			return nil, err
		}
		if err := s.registerPerm(ctx, updated); err != nil {
			return nil, err
		}
	}
	if s.conns != nil && updated.SQLAlchemyURI != oldURI {
		s.conns.Forget(oldURI)
	}
	return updated, nil
}

// Delete removes databases that no dataset references.
func (s *DatabaseService) Delete(ctx context.Context, ids ...int64) error {
	if _, err := security.Require(ctx, domain.PermCanWrite, domain.ViewDatabase); err != nil {
		return err
	}
	var victims []*domain.Database
	for _, id := range ids {
		d, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		_, n, err := s.datasets.List(ctx, domain.ListQuery{
			Filters:  []domain.ListFilter{{Col: "database_id", Opr: domain.OpEqual, Value: id}},
			PageSize: 1,
		})
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrConflict("there are %d datasets associated with database %s", n, d.DatabaseName)
		}
		victims = append(victims, d)
	}
	if err := s.repo.Delete(ctx, ids...); err != nil {
		return err
	}
	for _, d := range victims {
		if err := s.perms.DeleteViewMenu(ctx, d.Perm()); err != nil {
			return fmt.Errorf("drop permission for %s: %w", d.DatabaseName, err)
		}
		if s.conns != nil {
			s.conns.Forget(d.SQLAlchemyURI)
		}
	}
	return nil
}

// RelatedObjects returns the charts over datasets of database id and the
// dashboards holding any of them, both ordered by id.
func (s *DatabaseService) RelatedObjects(ctx context.Context, id int64) (*domain.RelatedObjects, error) {
	if _, err := security.Require(ctx, domain.PermCanRead, domain.ViewDatabase); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	datasets, err := collectPages(func(q domain.ListQuery) ([]domain.Dataset, int64, error) {
		q.Filters = []domain.ListFilter{{Col: "database_id", Opr: domain.OpEqual, Value: id}}
		return s.datasets.List(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	datasetIDs := make([]int64, 0, len(datasets))
	for _, d := range datasets {
		datasetIDs = append(datasetIDs, d.ID)
	}

	charts, err := collectPages(func(q domain.ListQuery) ([]domain.Chart, int64, error) {
		return s.charts.List(ctx, q, datasetIDs)
	})
	if err != nil {
		return nil, err
	}

	out := &domain.RelatedObjects{Charts: charts, Dashboards: []domain.Dashboard{}}
	seen := map[int64]bool{}
	var dashboardIDs []int64
	for _, c := range charts {
		for _, d := range c.Dashboards {
			if !seen[d] {
				seen[d] = true
				dashboardIDs = append(dashboardIDs, d)
			}
		}
	}
	slices.Sort(dashboardIDs)
	for _, d := range dashboardIDs {
		dash, err := s.dashboards.GetByID(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("related dashboard %d: %w", d, err)
		}
		out.Dashboards = append(out.Dashboards, *dash)
	}
	return out, nil
}

// collectPages reads every page of a list call ordered by id.
func collectPages[T any](list func(q domain.ListQuery) ([]T, int64, error)) ([]T, error) {
	out := []T{}
	for page := 0; ; page++ {
		rows, total, err := list(domain.ListQuery{OrderColumn: "id", Page: page, PageSize: domain.MaxPageSize})
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		if len(rows) == 0 || int64(len(out)) >= total {
			return out, nil
		}
	}
}

func (s *DatabaseService) registerPerm(ctx context.Context, d *domain.Database) error {
	if _, err := s.perms.AddPermissionView(ctx, domain.PermDatabaseAccess, d.Perm()); err != nil {
		return fmt.Errorf("register database permission: %w", err)
	}
	return nil
}
