// Package assets implements CRUD for databases, datasets, charts and
// dashboards with the permission and ownership rules of the API.
package assets

import (
	"context"
	"errors"

	"bi-demo/internal/domain"
	"bi-demo/internal/service/security"
)

// PermissionRegistry maintains the permission views that data access is
// granted on.
type PermissionRegistry interface {
	AddPermissionView(ctx context.Context, permission, view string) (*domain.PermissionView, error)
	DeleteViewMenu(ctx context.Context, view string) error
}

// requireOwner allows admins and the listed owners.
func requireOwner(u *domain.User, owners []int64, what string, id int64) error {
	if security.IsAdmin(u) {
		return nil
	}
	for _, o := range owners {
		if o == u.ID {
			return nil
		}
	}
	return domain.ErrAccessDenied("changing %s %d is forbidden", what, id)
}

// ownersOrSelf defaults an empty owner list to the acting user.
func ownersOrSelf(owners []int64, u *domain.User) []int64 {
	if len(owners) == 0 {
		return []int64{u.ID}
	}
	return owners
}

// datasourceScope returns the ids of the datasets u may read, or nil when
// u may read all of them.
func datasourceScope(ctx context.Context, u *domain.User, datasets domain.DatasetRepository, databases domain.DatabaseRepository) ([]int64, error) {
	if security.CanAccess(u, domain.PermAllDatasourceAccess, domain.ViewAllDatasourceAccess) ||
		security.CanAccess(u, domain.PermAllDatabaseAccess, domain.ViewAllDatabaseAccess) {
		return nil, nil
	}

	dbCache := map[int64]*domain.Database{}
	ids := []int64{}
	for page := 0; ; page++ {
		batch, total, err := datasets.List(ctx, domain.ListQuery{Page: page, PageSize: domain.MaxPageSize, OrderColumn: "id"})
		if err != nil {
			return nil, err
		}
		for i := range batch {
			ds := &batch[i]
			db, ok := dbCache[ds.DatabaseID]
			if !ok {
				if db, err = databases.GetByID(ctx, ds.DatabaseID); err != nil {
					return nil, err
				}
				dbCache[ds.DatabaseID] = db
			}
			if security.CanAccessDatasource(u, ds, db) {
				ids = append(ids, ds.ID)
			}
		}
		if int64((page+1)*domain.MaxPageSize) >= total {
			break
		}
	}
	return ids, nil
}

func isNotFound(err error) bool {
	var nf *domain.NotFoundError
	return errors.As(err, &nf)
}
