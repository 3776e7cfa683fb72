//go:build integration

package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bi-demo/internal/domain"
	"bi-demo/internal/harness"
)

func TestSQLLab_QueryExamples(t *testing.T) {
	h := harness.New(t)

	res, err := h.RunSQL("SELECT COUNT(*) AS n FROM birth_names", harness.RunSQLOptions{
		Username:     harness.AdminUsername,
		RaiseOnError: true,
		ClientID:     "count_births",
	})
	require.NoError(t, err)
	data := res["data"].([]any)
	require.Len(t, data, 1)
	assert.Greater(t, data[0].(map[string]any)["n"].(float64), float64(0))

	q := h.GetQueryByClientID("count_births")
	require.NotNil(t, q)
	assert.Equal(t, domain.QueryStatusSuccess, q.Status)
}

func TestSQLLab_QueryLimit(t *testing.T) {
	h := harness.New(t)
	limit := 5

	res, err := h.RunSQL("SELECT name FROM birth_names", harness.RunSQLOptions{
		Username:     harness.AdminUsername,
		RaiseOnError: true,
		QueryLimit:   &limit,
	})
	require.NoError(t, err)
	assert.Len(t, res["data"], limit)
}

func TestSQLLab_SelectAsCTA(t *testing.T) {
	h := harness.New(t)
	h.Login(harness.AdminUsername)

	_, err := h.RunSQL("SELECT name, num FROM birth_names WHERE state = 'CA'", harness.RunSQLOptions{
		RaiseOnError: true,
		SelectAsCTA:  true,
		TmpTableName: "ca_births",
	})
	require.NoError(t, err)

	res, err := h.RunSQL("SELECT COUNT(*) AS n FROM ca_births", harness.RunSQLOptions{RaiseOnError: true})
	require.NoError(t, err)
	assert.Greater(t, res["data"].([]any)[0].(map[string]any)["n"].(float64), float64(0))
}

// TestSQLLab_DatabaseAccess checks that a SQL Lab user needs
// database_access on the examples database.
func TestSQLLab_DatabaseAccess(t *testing.T) {
	h := harness.New(t)
	examples, err := h.GetDatabaseByName("examples")
	require.NoError(t, err)
	sqlLab := h.GetRole(domain.RoleSQLLab)
	require.NotNil(t, sqlLab)

	h.WithTemporaryUser(harness.TemporaryUserOptions{
		CloneUser:  h.GetUser("gamma"),
		ExtraRoles: []domain.Role{*sqlLab},
		Login:      true,
	}, func(*domain.User) {
		res, err := h.RunSQL("SELECT 1", harness.RunSQLOptions{RaiseOnError: true})
		require.ErrorIs(t, err, harness.ErrRunSQLFailed)
		assert.Contains(t, res["error"], "do not have access")
	})

	h.WithTemporaryUser(harness.TemporaryUserOptions{
		CloneUser:  h.GetUser("gamma"),
		ExtraRoles: []domain.Role{*sqlLab},
		ExtraPermissions: []harness.PermissionGrant{
			harness.Unresolved{Permission: domain.PermDatabaseAccess, ViewMenu: examples.Perm()},
		},
		Login: true,
	}, func(*domain.User) {
		_, err := h.RunSQL("SELECT 1", harness.RunSQLOptions{RaiseOnError: true})
		require.NoError(t, err)
	})
}
