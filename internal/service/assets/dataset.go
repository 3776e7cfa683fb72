package assets

import (
	"context"
	"fmt"

	"bi-demo/internal/domain"
	"bi-demo/internal/service/security"
)

// DatasetService manages datasets.
type DatasetService struct {
	repo      domain.DatasetRepository
	databases domain.DatabaseRepository
	perms     PermissionRegistry
}

// NewDatasetService creates a DatasetService.
func NewDatasetService(repo domain.DatasetRepository, databases domain.DatabaseRepository, perms PermissionRegistry) *DatasetService {
	return &DatasetService{repo: repo, databases: databases, perms: perms}
}

// List returns the datasets the acting user can access.
func (s *DatasetService) List(ctx context.Context, q domain.ListQuery) ([]domain.Dataset, int64, error) {
	u, err := security.Require(ctx, domain.PermCanRead, domain.ViewDataset)
	if err != nil {
		return nil, 0, err
	}
	scope, err := datasourceScope(ctx, u, s.repo, s.databases)
	if err != nil {
		return nil, 0, err
	}
	if scope != nil {
		values := make([]any, len(scope))
		for i, id := range scope {
			values[i] = id
		}
		q.Filters = append(q.Filters, domain.ListFilter{Col: "id", Opr: domain.OpIn, Value: values})
	}
	return s.repo.List(ctx, q)
}

func (s *DatasetService) Get(ctx context.Context, id int64) (*domain.Dataset, error) {
	u, err := security.Require(ctx, domain.PermCanRead, domain.ViewDataset)
	if err != nil {
		return nil, err
	}
	ds, db, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !security.CanAccessDatasource(u, ds, db) {
		return nil, domain.ErrNotFound("dataset %d not found", id)
	}
	return ds, nil
}

func (s *DatasetService) load(ctx context.Context, id int64) (*domain.Dataset, *domain.Database, error) {
	ds, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	db, err := s.databases.GetByID(ctx, ds.DatabaseID)
	if err != nil {
		return nil, nil, err
	}
	return ds, db, nil
}

func (s *DatasetService) Create(ctx context.Context, req domain.DatasetPostRequest) (*domain.Dataset, error) {
	if _, err := security.Require(ctx, domain.PermCanWrite, domain.ViewDataset); err != nil {
		return nil, err
	}
	db, err := s.databases.GetByID(ctx, req.Database)
	if isNotFound(err) {
		return nil, domain.ErrValidation("database %d does not exist", req.Database)
	}
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.FindFirst(ctx, map[string]any{
		"database_id": db.ID, "schema": req.Schema, "table_name": req.TableName,
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrConflict("dataset %s already exists", existing.Perm(db.DatabaseName))
	}

	ds, err := s.repo.Save(ctx, &domain.Dataset{
		TableName:  req.TableName,
		Schema:     req.Schema,
		SQL:        req.SQL,
		DatabaseID: db.ID,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.perms.AddPermissionView(ctx, domain.PermDatasourceAccess, ds.Perm(db.DatabaseName)); err != nil {
		return nil, fmt.Errorf("register dataset permission: %w", err)
	}
	return ds, nil
}

func (s *DatasetService) Update(ctx context.Context, id int64, req domain.DatasetPutRequest) (*domain.Dataset, error) {
	if _, err := security.Require(ctx, domain.PermCanWrite, domain.ViewDataset); err != nil {
		return nil, err
	}
	ds, db, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	oldPerm := ds.Perm(db.DatabaseName)

	if req.TableName != nil {
		ds.TableName = *req.TableName
	}
	if req.Schema != nil {
		ds.Schema = *req.Schema
	}
	if req.SQL != nil {
		ds.SQL = *req.SQL
	}
	if req.Description != nil {
		ds.Description = *req.Description
	}
	if req.MainDttmCol != nil {
		ds.MainDttmCol = *req.MainDttmCol
	}
	if req.Extra != nil {
		ds.Extra = *req.Extra
	}
	updated, err := s.repo.Save(ctx, ds)
	if err != nil {
		return nil, err
	}
	if newPerm := updated.Perm(db.DatabaseName); newPerm != oldPerm {
		if err := s.perms.DeleteViewMenu(ctx, oldPerm); err != nil {
			return nil, err
		}
		if _, err := s.perms.AddPermissionView(ctx, domain.PermDatasourceAccess, newPerm); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func (s *DatasetService) Delete(ctx context.Context, ids ...int64) error {
	if _, err := security.Require(ctx, domain.PermCanWrite, domain.ViewDataset); err != nil {
		return err
	}
	perms := make([]string, 0, len(ids))
	for _, id := range ids {
		ds, db, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		perms = append(perms, ds.Perm(db.DatabaseName))
	}
	if err := s.repo.Delete(ctx, ids...); err != nil {
		return err
	}
	for _, p := range perms {
		if err := s.perms.DeleteViewMenu(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
