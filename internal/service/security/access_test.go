package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bi-demo/internal/domain"
)

func pv(permission, view string) domain.PermissionView {
	return domain.PermissionView{
		Permission: domain.Permission{Name: permission},
		ViewMenu:   domain.ViewMenu{Name: view},
	}
}

func userWith(perms ...domain.PermissionView) *domain.User {
	return &domain.User{Username: "u", Roles: []domain.Role{{Name: "r", Permissions: perms}}}
}

func TestCanAccess(t *testing.T) {
	admin := &domain.User{Roles: []domain.Role{{Name: domain.RoleAdmin}}}
	reader := userWith(pv(domain.PermCanRead, domain.ViewChart))

	assert.True(t, CanAccess(admin, domain.PermCanWrite, domain.ViewChart))
	assert.True(t, CanAccess(reader, domain.PermCanRead, domain.ViewChart))
	assert.False(t, CanAccess(reader, domain.PermCanWrite, domain.ViewChart))
	assert.False(t, CanAccess(nil, domain.PermCanRead, domain.ViewChart))
}

func TestCanAccessDatasource(t *testing.T) {
	db := &domain.Database{ID: 1, DatabaseName: "examples"}
	ds := &domain.Dataset{ID: 7, TableName: "birth_names", DatabaseID: 1}

	tests := []struct {
		name string
		user *domain.User
		want bool
	}{
		{"no grants", userWith(), false},
		{"datasource access", userWith(pv(domain.PermDatasourceAccess, "[examples].[birth_names](id:7)")), true},
		{"other datasource", userWith(pv(domain.PermDatasourceAccess, "[examples].[other](id:8)")), false},
		{"database access", userWith(pv(domain.PermDatabaseAccess, "[examples].(id:1)")), true},
		{"all datasources", userWith(pv(domain.PermAllDatasourceAccess, domain.ViewAllDatasourceAccess)), true},
		{"all databases", userWith(pv(domain.PermAllDatabaseAccess, domain.ViewAllDatabaseAccess)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAccessDatasource(tt.user, ds, db))
		})
	}
}

func TestRequire(t *testing.T) {
	_, err := Require(context.Background(), domain.PermCanRead, domain.ViewChart)
	var unauth *domain.UnauthenticatedError
	require.ErrorAs(t, err, &unauth)

	ctx := domain.WithUser(context.Background(), userWith())
	_, err = Require(ctx, domain.PermCanRead, domain.ViewChart)
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)

	ctx = domain.WithUser(context.Background(), userWith(pv(domain.PermCanRead, domain.ViewChart)))
	u, err := Require(ctx, domain.PermCanRead, domain.ViewChart)
	require.NoError(t, err)
	assert.Equal(t, "u", u.Username)
}

func TestUserPermissions_Dedupes(t *testing.T) {
	u := &domain.User{Roles: []domain.Role{
		{Permissions: []domain.PermissionView{pv("can_read", "Chart"), pv("can_write", "Chart")}},
		{Permissions: []domain.PermissionView{pv("can_read", "Chart"), pv("can_read", "Dashboard")}},
	}}
	assert.Equal(t, [][2]string{
		{"can_read", "Chart"}, {"can_write", "Chart"}, {"can_read", "Dashboard"},
	}, UserPermissions(u))
}
