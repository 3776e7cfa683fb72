package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "bi-demo/internal/db"
	"bi-demo/internal/domain"
)

func TestPermissionViewRepo_EnsureIsIdempotent(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	repo := NewPermissionViewRepo(writeDB)
	ctx := context.Background()

	first, err := repo.Ensure(ctx, domain.PermCanRead, domain.ViewChart)
	require.NoError(t, err)
	second, err := repo.Ensure(ctx, domain.PermCanRead, domain.ViewChart)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.Matches(domain.PermCanRead, domain.ViewChart))

	found, err := repo.Find(ctx, domain.PermCanRead, domain.ViewChart)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	_, err = repo.Find(ctx, domain.PermCanWrite, domain.ViewChart)
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestPermissionViewRepo_DeleteViewCascades(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	pvs := NewPermissionViewRepo(writeDB)
	roles := NewRoleRepo(writeDB)
	ctx := context.Background()

	pv, err := pvs.Ensure(ctx, domain.PermDatasourceAccess, "[examples].[birth_names](id:1)")
	require.NoError(t, err)
	role, err := roles.Create(ctx, "readers")
	require.NoError(t, err)
	require.NoError(t, roles.AddPermission(ctx, role.ID, pv.ID))

	require.NoError(t, pvs.DeleteView(ctx, "[examples].[birth_names](id:1)"))

	role, err = roles.GetByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, role.Permissions)
	list, err := pvs.ListByPermission(ctx, domain.PermDatasourceAccess)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUserRepo_CRUD(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	users := NewUserRepo(writeDB)
	roles := NewRoleRepo(writeDB)
	pvs := NewPermissionViewRepo(writeDB)
	ctx := context.Background()

	gamma, err := roles.Create(ctx, domain.RoleGamma)
	require.NoError(t, err)
	pv, err := pvs.Ensure(ctx, domain.PermCanRead, domain.ViewDashboard)
	require.NoError(t, err)
	require.NoError(t, roles.AddPermission(ctx, gamma.ID, pv.ID))

	u, err := users.Create(ctx, &domain.User{
		Username: "gamma",
		Email:    "gamma@fab.org",
		Active:   true,
		Roles:    []domain.Role{*gamma},
	})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	require.Len(t, u.Roles, 1)
	assert.Equal(t, domain.RoleGamma, u.Roles[0].Name)
	require.Len(t, u.Roles[0].Permissions, 1)
	assert.True(t, u.Roles[0].Permissions[0].Matches(domain.PermCanRead, domain.ViewDashboard))
	assert.False(t, u.CreatedAt.IsZero())

	found, err := users.GetByUsername(ctx, "gamma")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = users.Create(ctx, &domain.User{Username: "gamma", Email: "other@fab.org"})
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)

	require.NoError(t, users.SetRoles(ctx, u.ID, nil))
	found, err = users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, found.Roles)

	require.NoError(t, users.Delete(ctx, u.ID))
	_, err = users.GetByID(ctx, u.ID)
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)

	err = users.Delete(ctx, u.ID)
	require.ErrorAs(t, err, &notFound)
}

func TestRoleRepo_SetPermissionsReplaces(t *testing.T) {
	writeDB, _ := internaldb.OpenTestSQLite(t)
	roles := NewRoleRepo(writeDB)
	pvs := NewPermissionViewRepo(writeDB)
	ctx := context.Background()

	read, err := pvs.Ensure(ctx, domain.PermCanRead, domain.ViewChart)
	require.NoError(t, err)
	write, err := pvs.Ensure(ctx, domain.PermCanWrite, domain.ViewChart)
	require.NoError(t, err)

	role, err := roles.Create(ctx, "editors")
	require.NoError(t, err)
	require.NoError(t, roles.SetPermissions(ctx, role.ID, []int64{read.ID, write.ID}))
	require.NoError(t, roles.SetPermissions(ctx, role.ID, []int64{write.ID}))

	role, err = roles.GetByName(ctx, "editors")
	require.NoError(t, err)
	require.Len(t, role.Permissions, 1)
	assert.Equal(t, write.ID, role.Permissions[0].ID)

	require.NoError(t, roles.RemovePermission(ctx, role.ID, write.ID))
	require.NoError(t, roles.Delete(ctx, role.ID))
	_, err = roles.GetByID(ctx, role.ID)
	require.Error(t, err)
}
