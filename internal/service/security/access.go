package security

import (
	"context"
	"sort"

	"bi-demo/internal/domain"
)

// IsAdmin reports whether u holds the Admin role.
func IsAdmin(u *domain.User) bool {
	return u != nil && u.HasRole(domain.RoleAdmin)
}

// CanAccess reports whether any of u's roles grants permission on view.
// Admins can access everything.
func CanAccess(u *domain.User, permission, view string) bool {
	if u == nil {
		return false
	}
	if IsAdmin(u) {
		return true
	}
	for _, r := range u.Roles {
		for _, pv := range r.Permissions {
			if pv.Matches(permission, view) {
				return true
			}
		}
	}
	return false
}

// CanAccessDatabase reports whether u may query database d.
func CanAccessDatabase(u *domain.User, d *domain.Database) bool {
	return CanAccess(u, domain.PermAllDatabaseAccess, domain.ViewAllDatabaseAccess) ||
		CanAccess(u, domain.PermDatabaseAccess, d.Perm())
}

// CanAccessDatasource reports whether u may read dataset ds on database d.
func CanAccessDatasource(u *domain.User, ds *domain.Dataset, d *domain.Database) bool {
	return CanAccessDatabase(u, d) ||
		CanAccess(u, domain.PermAllDatasourceAccess, domain.ViewAllDatasourceAccess) ||
		CanAccess(u, domain.PermDatasourceAccess, ds.Perm(d.DatabaseName))
}

// UserPermissions returns u's distinct (permission, view) pairs, sorted.
func UserPermissions(u *domain.User) [][2]string {
	seen := map[[2]string]bool{}
	var out [][2]string
	for _, r := range u.Roles {
		for _, pv := range r.Permissions {
			key := [2]string{pv.Permission.Name, pv.ViewMenu.Name}
			if !seen[key] {
				seen[key] = true
				out = append(out, key)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][1] != out[j][1] {
			return out[i][1] < out[j][1]
		}
		return out[i][0] < out[j][0]
	})
	return out
}

// CurrentUser returns the acting user from ctx.
func CurrentUser(ctx context.Context) (*domain.User, error) {
	u, ok := domain.UserFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthenticated("authentication required")
	}
	return u, nil
}

// Require returns an AccessDeniedError unless the acting user holds
// permission on view.
func Require(ctx context.Context, permission, view string) (*domain.User, error) {
	u, err := CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if !CanAccess(u, permission, view) {
		return nil, domain.ErrAccessDenied("%s on %s required", permission, view)
	}
	return u, nil
}
