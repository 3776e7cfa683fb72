package harness

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"gopkg.in/yaml.v3"

	"bi-demo/internal/service/importexport"
)

// Asset types CreateImportV1ZipFile accepts. They match the API path
// segments of the import endpoints.
const (
	AssetDatabase  = "database"
	AssetDataset   = "dataset"
	AssetChart     = "chart"
	AssetDashboard = "dashboard"
)

// UUIDs the default configs reference each other by.
const (
	DefaultDatabaseUUID  = "b8a1ccd3-779d-4ab7-8ad8-9ab119d7fe89"
	DefaultDatasetUUID   = "10808100-158b-42c4-842e-f32b99d88dfb"
	DefaultChartUUID     = "0c23747a-6528-4629-97bf-e4b78d3b9df1"
	DefaultDashboardUUID = "c4b28c4e-a1fe-4cf8-a5ac-d6f11d6fdd51"
)

var metadataTypes = map[string]string{
	AssetDatabase:  importexport.TypeDatabase,
	AssetDataset:   importexport.TypeDataset,
	AssetChart:     importexport.TypeChart,
	AssetDashboard: importexport.TypeDashboard,
}

// MetadataFile returns a fresh metadata.yaml for bundles of assetType. ok is
// false for an unknown asset type.
func MetadataFile(assetType string) (metadata map[string]any, ok bool) {
	typ, ok := metadataTypes[assetType]
	if !ok {
		return nil, false
	}
	return metadataConfig(typ), true
}

func metadataConfig(typ string) map[string]any {
	return map[string]any{
		"version":   "1.0.0",
		"type":      typ,
		"timestamp": "2020-11-04T21:27:44.423819+00:00",
	}
}

// DatabaseConfig is the default database an import bundle carries.
func DatabaseConfig() map[string]any {
	return map[string]any{
		"database_name":    "imported_database",
		"sqlalchemy_uri":   "sqlite:///test.db",
		"uuid":             DefaultDatabaseUUID,
		"allow_ctas":       true,
		"allow_cvas":       true,
		"allow_dml":        true,
		"expose_in_sqllab": true,
		"cache_timeout":    nil,
		"extra": map[string]any{
			"metadata_params":                 map[string]any{},
			"engine_params":                   map[string]any{},
			"metadata_cache_timeout":          map[string]any{},
			"schemas_allowed_for_file_upload": []any{},
		},
		"version": "1.0.0",
	}
}

// DatasetConfig is the default dataset, on DatabaseConfig's database.
func DatasetConfig() map[string]any {
	return map[string]any{
		"table_name":    "imported_dataset",
		"main_dttm_col": nil,
		"description":   "This is a dataset that was exported",
		"schema":        nil,
		"sql":           nil,
		"extra":         map[string]any{},
		"uuid":          DefaultDatasetUUID,
		"database_uuid": DefaultDatabaseUUID,
		"version":       "1.0.0",
	}
}

// ChartConfig is the default chart, over DatasetConfig's dataset.
func ChartConfig() map[string]any {
	return map[string]any{
		"slice_name": "Deck Path",
		"viz_type":   "deck_path",
		"params": map[string]any{
			"color_picker": map[string]any{"a": 1, "b": 135, "g": 122, "r": 0},
			"datasource":   "12__table",
			"js_columns":   []any{"color"},
			"line_type":    "json",
			"line_width":   150,
			"viz_type":     "deck_path",
		},
		"cache_timeout":         nil,
		"certified_by":          nil,
		"certification_details": nil,
		"uuid":                  DefaultChartUUID,
		"dataset_uuid":          DefaultDatasetUUID,
		"version":               "1.0.0",
	}
}

// DashboardConfig is the default dashboard, laid out around ChartConfig's
// chart.
func DashboardConfig() map[string]any {
	return map[string]any{
		"dashboard_title":       "Test dash",
		"description":           nil,
		"css":                   "",
		"slug":                  nil,
		"certified_by":          nil,
		"certification_details": nil,
		"published":             false,
		"uuid":                  DefaultDashboardUUID,
		"position": map[string]any{
			"CHART-SVAlICPOSJ": map[string]any{
				"children": []any{},
				"id":       "CHART-SVAlICPOSJ",
				"meta": map[string]any{
					"chartId":   83,
					"height":    50,
					"sliceName": "Deck Path",
					"uuid":      DefaultChartUUID,
					"width":     4,
				},
				"parents": []any{"ROOT_ID", "GRID_ID", "ROW-dP_CHaK2q"},
				"type":    "CHART",
			},
			"DASHBOARD_VERSION_KEY": "v2",
			"GRID_ID": map[string]any{
				"children": []any{"ROW-dP_CHaK2q"},
				"id":       "GRID_ID",
				"parents":  []any{"ROOT_ID"},
				"type":     "GRID",
			},
			"ROOT_ID": map[string]any{
				"children": []any{"GRID_ID"},
				"id":       "ROOT_ID",
				"type":     "ROOT",
			},
			"ROW-dP_CHaK2q": map[string]any{
				"children": []any{"CHART-SVAlICPOSJ"},
				"id":       "ROW-dP_CHaK2q",
				"meta":     map[string]any{"0": "ROOT_ID", "background": "BACKGROUND_TRANSPARENT"},
				"parents":  []any{"ROOT_ID", "GRID_ID"},
				"type":     "ROW",
			},
		},
		"metadata": map[string]any{
			"timed_refresh_immune_slices": []any{},
			"expanded_slices":             map[string]any{},
			"refresh_frequency":           0,
			"default_filters":             "{}",
			"color_scheme":                nil,
			"remote_id":                   7,
		},
		"version": "1.0.0",
	}
}

// ImportAssets holds explicit payloads per category. A nil slice lets
// CreateImportV1ZipFile fall back to the category default when the asset
// type needs one.
type ImportAssets struct {
	Databases  []map[string]any
	Datasets   []map[string]any
	Charts     []map[string]any
	Dashboards []map[string]any
}

type bundleCategory struct {
	dir      string
	payloads []map[string]any
	required bool
	fallback func() map[string]any
}

// CreateImportV1ZipFile builds an import bundle for assetType. Every entry
// sits under export/: metadata.yaml, then <category>/<assetType>_<n>.yaml
// for each explicit payload or <category>/<assetType>.yaml for a default.
func CreateImportV1ZipFile(assetType string, assets ImportAssets) (*bytes.Reader, error) {
	metadata, ok := MetadataFile(assetType)
	if !ok {
		return nil, fmt.Errorf("unknown asset type %q", assetType)
	}

	categories := []bundleCategory{
		{importexport.DirDatabases, assets.Databases, true, DatabaseConfig},
		{importexport.DirDatasets, assets.Datasets, assetType != AssetDatabase, DatasetConfig},
		{importexport.DirCharts, assets.Charts, assetType == AssetChart || assetType == AssetDashboard, ChartConfig},
		{importexport.DirDashboards, assets.Dashboards, assetType == AssetDashboard, DashboardConfig},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := writeYAML(zw, "export/metadata.yaml", metadata); err != nil {
		return nil, err
	}
	for _, c := range categories {
		switch {
		case len(c.payloads) > 0:
			for i, p := range c.payloads {
				name := fmt.Sprintf("export/%s/%s_%d.yaml", c.dir, assetType, i+1)
				if err := writeYAML(zw, name, p); err != nil {
					return nil, err
				}
			}
		case c.required:
			if err := writeYAML(zw, fmt.Sprintf("export/%s/%s.yaml", c.dir, assetType), c.fallback()); err != nil {
				return nil, err
			}
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close bundle: %w", err)
	}
	return bytes.NewReader(buf.Bytes()), nil
}

func writeYAML(zw *zip.Writer, name string, v any) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return enc.Close()
}

// ImportBundle uploads bundle to the import endpoint of assetType and asserts
// the stats call it caused.
func (h *Harness) ImportBundle(assetType string, bundle *bytes.Reader, overwrite bool) *resty.Response {
	h.t.Helper()
	h.Stats.Reset()
	resp, err := h.Client.R().
		SetFileReader("formData", assetType+".zip", bundle).
		SetFormData(map[string]string{"overwrite": strconv.FormatBool(overwrite)}).
		Post("/api/v1/" + assetType + "/import/")
	h.req.NoError(err)
	AssertMetric(h.t, h.Stats, resp.StatusCode(), "import_")
	return resp
}
