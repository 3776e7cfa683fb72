//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bi-demo/internal/domain"
	"bi-demo/internal/harness"
)

func countDashboards(t *testing.T, h *harness.Harness, title string) float64 {
	t.Helper()
	resp := h.GetList(harness.AssetDashboard, map[string]any{
		"filters": []any{map[string]any{"col": "dashboard_title", "opr": domain.OpEqual, "value": title}},
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode(), resp.String())
	return h.JSON(resp).Path("count").Data().(float64)
}

// TestWorkflow_ImportDashboard imports the default dashboard bundle, then
// imports it again with and without overwrite.
func TestWorkflow_ImportDashboard(t *testing.T) {
	h := harness.New(t)
	h.Login(harness.AdminUsername)

	type step struct {
		name string
		fn   func(t *testing.T)
	}
	steps := []step{
		{"first_import", func(t *testing.T) {
			bundle, err := harness.CreateImportV1ZipFile(harness.AssetDashboard, harness.ImportAssets{})
			require.NoError(t, err)
			resp := h.ImportBundle(harness.AssetDashboard, bundle, false)
			require.Equal(t, http.StatusOK, resp.StatusCode(), resp.String())
			assert.Equal(t, "OK", h.JSON(resp).Path("message").Data())
			assert.EqualValues(t, 1, countDashboards(t, h, "Test dash"))
			assert.Equal(t, harness.DefaultChartUUID, h.GetSlice("Deck Path").UUID)
		}},
		{"reimport_without_overwrite", func(t *testing.T) {
			bundle, err := harness.CreateImportV1ZipFile(harness.AssetDashboard, harness.ImportAssets{})
			require.NoError(t, err)
			resp := h.ImportBundle(harness.AssetDashboard, bundle, false)
			require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode(), resp.String())
			body := h.JSON(resp)
			assert.Equal(t, "Error importing dashboard", body.Path("errors.0.message").Data())
		}},
		{"reimport_with_overwrite", func(t *testing.T) {
			dash := harness.DashboardConfig()
			dash["dashboard_title"] = "Test dash"
			dash["css"] = "body { color: red; }"
			bundle, err := harness.CreateImportV1ZipFile(harness.AssetDashboard, harness.ImportAssets{
				Dashboards: []map[string]any{dash},
			})
			require.NoError(t, err)
			resp := h.ImportBundle(harness.AssetDashboard, bundle, true)
			require.Equal(t, http.StatusOK, resp.StatusCode(), resp.String())
			assert.EqualValues(t, 1, countDashboards(t, h, "Test dash"))
		}},
	}
	for _, s := range steps {
		if !t.Run(s.name, s.fn) {
			t.FailNow()
		}
	}
}

func TestImport_SeveralDatabases(t *testing.T) {
	h := harness.New(t)
	h.Login(harness.AdminUsername)

	first := harness.DatabaseConfig()
	second := harness.DatabaseConfig()
	second["database_name"] = "imported_database_2"
	second["uuid"] = "5b3c1d7e-1c7a-4f57-9a1e-2f3d8c4b6a90"

	bundle, err := harness.CreateImportV1ZipFile(harness.AssetDatabase, harness.ImportAssets{
		Databases: []map[string]any{first, second},
	})
	require.NoError(t, err)
	resp := h.ImportBundle(harness.AssetDatabase, bundle, false)
	require.Equal(t, http.StatusOK, resp.StatusCode(), resp.String())

	for _, name := range []string{"imported_database", "imported_database_2"} {
		d, err := h.GetDatabaseByName(name)
		require.NoError(t, err, name)
		assert.True(t, d.AllowCTAS)
	}
}

func TestImport_TypeMismatch(t *testing.T) {
	h := harness.New(t)
	h.Login(harness.AdminUsername)

	bundle, err := harness.CreateImportV1ZipFile(harness.AssetChart, harness.ImportAssets{})
	require.NoError(t, err)
	resp := h.ImportBundle(harness.AssetDashboard, bundle, false)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode())
	assert.Contains(t, resp.String(), "Must be equal to Dashboard.")
}

func TestImport_RequiresWriteAccess(t *testing.T) {
	h := harness.New(t)
	h.Login("gamma")

	bundle, err := harness.CreateImportV1ZipFile(harness.AssetDataset, harness.ImportAssets{})
	require.NoError(t, err)
	resp := h.ImportBundle(harness.AssetDataset, bundle, false)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode())
}
