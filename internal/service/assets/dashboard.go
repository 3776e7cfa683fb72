package assets

import (
	"context"
	"strconv"

	"bi-demo/internal/domain"
	"bi-demo/internal/service/security"
)

// DashboardService manages dashboards.
type DashboardService struct {
	repo domain.DashboardRepository
}

// NewDashboardService creates a DashboardService.
func NewDashboardService(repo domain.DashboardRepository) *DashboardService {
	return &DashboardService{repo: repo}
}

func (s *DashboardService) List(ctx context.Context, q domain.ListQuery) ([]domain.Dashboard, int64, error) {
	if _, err := security.Require(ctx, domain.PermCanRead, domain.ViewDashboard); err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, q)
}

// Get accepts a numeric id or a slug.
func (s *DashboardService) Get(ctx context.Context, idOrSlug string) (*domain.Dashboard, error) {
	if _, err := security.Require(ctx, domain.PermCanRead, domain.ViewDashboard); err != nil {
		return nil, err
	}
	if id, err := strconv.ParseInt(idOrSlug, 10, 64); err == nil {
		return s.repo.GetByID(ctx, id)
	}
	return s.repo.GetBySlug(ctx, idOrSlug)
}

func (s *DashboardService) Create(ctx context.Context, req domain.DashboardPostRequest) (*domain.Dashboard, error) {
	u, err := security.Require(ctx, domain.PermCanWrite, domain.ViewDashboard)
	if err != nil {
		return nil, err
	}
	if err := s.checkSlug(ctx, req.Slug, 0); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, &domain.Dashboard{
		DashboardTitle:       req.DashboardTitle,
		Slug:                 req.Slug,
		PositionJSON:         req.PositionJSON,
		CSS:                  req.CSS,
		JSONMetadata:         req.JSONMetadata,
		Published:            req.Published,
		CertifiedBy:          req.CertifiedBy,
		CertificationDetails: req.CertificationDetails,
		CreatedByID:          &u.ID,
		Owners:               ownersOrSelf(req.Owners, u),
		Roles:                req.Roles,
	})
}

func (s *DashboardService) checkSlug(ctx context.Context, slug *string, selfID int64) error {
	if slug == nil || *slug == "" {
		return nil
	}
	existing, err := s.repo.GetBySlug(ctx, *slug)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != selfID {
		return domain.ErrValidation("must be unique: slug %q", *slug)
	}
	return nil
}

func (s *DashboardService) Update(ctx context.Context, id int64, req domain.DashboardPutRequest) (*domain.Dashboard, error) {
	u, err := security.Require(ctx, domain.PermCanWrite, domain.ViewDashboard)
	if err != nil {
		return nil, err
	}
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(u, d.Owners, "dashboard", id); err != nil {
		return nil, err
	}
	if err := s.checkSlug(ctx, req.Slug, id); err != nil {
		return nil, err
	}

	if req.DashboardTitle != nil {
		d.DashboardTitle = *req.DashboardTitle
	}
	if req.Slug != nil {
		d.Slug = req.Slug
		if *req.Slug == "" {
			d.Slug = nil
		}
	}
	if req.PositionJSON != nil {
		d.PositionJSON = *req.PositionJSON
	}
	if req.CSS != nil {
		d.CSS = *req.CSS
	}
	if req.JSONMetadata != nil {
		d.JSONMetadata = *req.JSONMetadata
	}
	if req.Published != nil {
		d.Published = *req.Published
	}
	if req.CertifiedBy != nil {
		d.CertifiedBy = req.CertifiedBy
	}
	if req.CertificationDetails != nil {
		d.CertificationDetails = req.CertificationDetails
	}
	if req.Owners != nil {
		d.Owners = *req.Owners
	}
	if req.Roles != nil {
		d.Roles = *req.Roles
	}
	return s.repo.Update(ctx, d)
}

func (s *DashboardService) Delete(ctx context.Context, ids ...int64) error {
	u, err := security.Require(ctx, domain.PermCanWrite, domain.ViewDashboard)
	if err != nil {
		return err
	}
	for _, id := range ids {
		d, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := requireOwner(u, d.Owners, "dashboard", id); err != nil {
			return err
		}
	}
	return s.repo.Delete(ctx, ids...)
}
