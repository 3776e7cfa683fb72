package security

import (
	"context"
	"fmt"

	"bi-demo/internal/domain"
)

type grant struct {
	permission string
	view       string
}

func assetGrants(perms []string, views ...string) []grant {
	var out []grant
	for _, v := range views {
		for _, p := range perms {
			out = append(out, grant{p, v})
		}
	}
	return out
}

var (
	readWrite = []string{domain.PermCanRead, domain.PermCanWrite}
	readOnly  = []string{domain.PermCanRead}
)

// DataPermissions are the permissions that grant access to data rather than
// to features. Roles derived from Gamma for tests drop them.
var DataPermissions = map[string]bool{
	domain.PermDatasourceAccess:    true,
	domain.PermDatabaseAccess:      true,
	domain.PermAllDatasourceAccess: true,
	domain.PermAllDatabaseAccess:   true,
}

func builtinRoles() map[string][]grant {
	sqlLab := []grant{
		{domain.PermCanExecuteSQLQuery, domain.ViewSQLLab},
		{domain.PermCanRead, domain.ViewDatabase},
	}
	admin := append(assetGrants(readWrite, domain.ViewChart, domain.ViewDashboard, domain.ViewDataset, domain.ViewDatabase),
		grant{domain.PermAllDatasourceAccess, domain.ViewAllDatasourceAccess},
		grant{domain.PermAllDatabaseAccess, domain.ViewAllDatabaseAccess},
		grant{domain.PermCanExecuteSQLQuery, domain.ViewSQLLab},
	)
	alpha := append(assetGrants(readWrite, domain.ViewChart, domain.ViewDashboard, domain.ViewDataset),
		grant{domain.PermCanRead, domain.ViewDatabase},
		grant{domain.PermAllDatasourceAccess, domain.ViewAllDatasourceAccess},
	)
	gamma := append(assetGrants(readWrite, domain.ViewChart, domain.ViewDashboard),
		assetGrants(readOnly, domain.ViewDataset)...)

	return map[string][]grant{
		domain.RoleAdmin:  admin,
		domain.RoleAlpha:  alpha,
		domain.RoleGamma:  gamma,
		domain.RoleSQLLab: sqlLab,
		domain.RolePublic: nil,
	}
}

// SyncRoles creates the builtin roles and their permission views. It only
// adds missing grants, so it is safe to run on every start.
func (m *Manager) SyncRoles(ctx context.Context) error {
	for name, grants := range builtinRoles() {
		role, err := m.AddRole(ctx, name)
		if err != nil {
			return fmt.Errorf("sync role %s: %w", name, err)
		}
		for _, g := range grants {
			pv, err := m.pvs.Ensure(ctx, g.permission, g.view)
			if err != nil {
				return fmt.Errorf("sync role %s: %w", name, err)
			}
			if err := m.roles.AddPermission(ctx, role.ID, pv.ID); err != nil {
				return fmt.Errorf("sync role %s: %w", name, err)
			}
		}
	}
	m.logger.Info("builtin roles synced")
	return nil
}
