package assets

import (
	"context"

	"bi-demo/internal/domain"
	"bi-demo/internal/service/security"
)

// ChartService manages charts. Reads are scoped to the datasets the acting
// user can access; writes require ownership unless the user is an admin.
type ChartService struct {
	repo      domain.ChartRepository
	datasets  domain.DatasetRepository
	databases domain.DatabaseRepository
}

// NewChartService creates a ChartService.
func NewChartService(repo domain.ChartRepository, datasets domain.DatasetRepository, databases domain.DatabaseRepository) *ChartService {
	return &ChartService{repo: repo, datasets: datasets, databases: databases}
}

func (s *ChartService) List(ctx context.Context, q domain.ListQuery) ([]domain.Chart, int64, error) {
	u, err := security.Require(ctx, domain.PermCanRead, domain.ViewChart)
	if err != nil {
		return nil, 0, err
	}
	scope, err := datasourceScope(ctx, u, s.datasets, s.databases)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, q, scope)
}

func (s *ChartService) Get(ctx context.Context, id int64) (*domain.Chart, error) {
	u, err := security.Require(ctx, domain.PermCanRead, domain.ViewChart)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.canReadDatasource(ctx, u, c.DatasourceID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound("chart %d not found", id)
	}
	return c, nil
}

// canReadDatasource reports whether u may read the dataset. A dangling
// datasource is readable only by admins.
func (s *ChartService) canReadDatasource(ctx context.Context, u *domain.User, datasourceID int64) (bool, error) {
	ds, err := s.datasets.GetByID(ctx, datasourceID)
	if isNotFound(err) {
		return security.IsAdmin(u), nil
	}
	if err != nil {
		return false, err
	}
	db, err := s.databases.GetByID(ctx, ds.DatabaseID)
	if err != nil {
		return false, err
	}
	return security.CanAccessDatasource(u, ds, db), nil
}

func (s *ChartService) checkDatasource(ctx context.Context, u *domain.User, datasourceID int64) error {
	if _, err := s.datasets.GetByID(ctx, datasourceID); err != nil {
		if isNotFound(err) {
			return domain.ErrValidation("datasource %d does not exist", datasourceID)
		}
		return err
	}
	ok, err := s.canReadDatasource(ctx, u, datasourceID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrAccessDenied("you do not have access to datasource %d", datasourceID)
	}
	return nil
}

func (s *ChartService) Create(ctx context.Context, req domain.ChartPostRequest) (*domain.Chart, error) {
	u, err := security.Require(ctx, domain.PermCanWrite, domain.ViewChart)
	if err != nil {
		return nil, err
	}
	if err := s.checkDatasource(ctx, u, req.DatasourceID); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, &domain.Chart{
		SliceName:            req.SliceName,
		VizType:              req.VizType,
		Params:               req.Params,
		DatasourceID:         req.DatasourceID,
		DatasourceType:       req.DatasourceType,
		Description:          req.Description,
		CacheTimeout:         req.CacheTimeout,
		CertifiedBy:          req.CertifiedBy,
		CertificationDetails: req.CertificationDetails,
		CreatedByID:          &u.ID,
		Owners:               ownersOrSelf(req.Owners, u),
		Dashboards:           req.Dashboards,
	})
}

func (s *ChartService) Update(ctx context.Context, id int64, req domain.ChartPutRequest) (*domain.Chart, error) {
	u, err := security.Require(ctx, domain.PermCanWrite, domain.ViewChart)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(u, c.Owners, "chart", id); err != nil {
		return nil, err
	}

	if req.DatasourceID != nil && *req.DatasourceID != c.DatasourceID {
		if err := s.checkDatasource(ctx, u, *req.DatasourceID); err != nil {
			return nil, err
		}
		c.DatasourceID = *req.DatasourceID
	}
	if req.SliceName != nil {
		c.SliceName = *req.SliceName
	}
	if req.VizType != nil {
		c.VizType = *req.VizType
	}
	if req.Params != nil {
		c.Params = *req.Params
	}
	if req.DatasourceType != nil {
		c.DatasourceType = *req.DatasourceType
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.CacheTimeout != nil {
		c.CacheTimeout = req.CacheTimeout
	}
	if req.CertifiedBy != nil {
		c.CertifiedBy = req.CertifiedBy
	}
	if req.CertificationDetails != nil {
		c.CertificationDetails = req.CertificationDetails
	}
	if req.Owners != nil {
		c.Owners = *req.Owners
	}
	if req.Dashboards != nil {
		c.Dashboards = *req.Dashboards
	}
	return s.repo.Update(ctx, c)
}

// Delete removes charts, all or none. Every chart must be owned by the
// acting user unless the user is an admin.
func (s *ChartService) Delete(ctx context.Context, ids ...int64) error {
	u, err := security.Require(ctx, domain.PermCanWrite, domain.ViewChart)
	if err != nil {
		return err
	}
	for _, id := range ids {
		c, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := requireOwner(u, c.Owners, "chart", id); err != nil {
			return err
		}
	}
	return s.repo.Delete(ctx, ids...)
}
