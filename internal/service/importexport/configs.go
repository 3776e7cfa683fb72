package importexport

import (
	"encoding/json"
	"fmt"
)

type databaseConfig struct {
	DatabaseName   string `yaml:"database_name"`
	SQLAlchemyURI  string `yaml:"sqlalchemy_uri"`
	UUID           string `yaml:"uuid"`
	Extra          any    `yaml:"extra"`
	ExposeInSQLLab *bool  `yaml:"expose_in_sqllab"`
	AllowCTAS      bool   `yaml:"allow_ctas"`
	AllowCVAS      bool   `yaml:"allow_cvas"`
	AllowDML       bool   `yaml:"allow_dml"`
	CacheTimeout   *int64 `yaml:"cache_timeout"`
	Version        string `yaml:"version"`
}

func (c databaseConfig) missing() []string {
	return missingFields(map[string]string{
		"database_name":  c.DatabaseName,
		"sqlalchemy_uri": c.SQLAlchemyURI,
		"uuid":           c.UUID,
	})
}

type datasetConfig struct {
	TableName    string  `yaml:"table_name"`
	Schema       *string `yaml:"schema"`
	SQL          *string `yaml:"sql"`
	Description  *string `yaml:"description"`
	MainDttmCol  *string `yaml:"main_dttm_col"`
	Extra        any     `yaml:"extra"`
	UUID         string  `yaml:"uuid"`
	DatabaseUUID string  `yaml:"database_uuid"`
	Version      string  `yaml:"version"`
}

func (c datasetConfig) missing() []string {
	return missingFields(map[string]string{
		"table_name":    c.TableName,
		"uuid":          c.UUID,
		"database_uuid": c.DatabaseUUID,
	})
}

type chartConfig struct {
	SliceName            string  `yaml:"slice_name"`
	VizType              string  `yaml:"viz_type"`
	Params               any     `yaml:"params"`
	Description          *string `yaml:"description"`
	CacheTimeout         *int64  `yaml:"cache_timeout"`
	CertifiedBy          *string `yaml:"certified_by"`
	CertificationDetails *string `yaml:"certification_details"`
	UUID                 string  `yaml:"uuid"`
	DatasetUUID          string  `yaml:"dataset_uuid"`
	Version              string  `yaml:"version"`
}

func (c chartConfig) missing() []string {
	return missingFields(map[string]string{
		"slice_name":   c.SliceName,
		"viz_type":     c.VizType,
		"uuid":         c.UUID,
		"dataset_uuid": c.DatasetUUID,
	})
}

type dashboardConfig struct {
	DashboardTitle       string         `yaml:"dashboard_title"`
	Slug                 *string        `yaml:"slug"`
	CSS                  *string        `yaml:"css"`
	Position             map[string]any `yaml:"position"`
	Metadata             any            `yaml:"metadata"`
	Published            bool           `yaml:"published"`
	CertifiedBy          *string        `yaml:"certified_by"`
	CertificationDetails *string        `yaml:"certification_details"`
	UUID                 string         `yaml:"uuid"`
	Version              string         `yaml:"version"`
}

func (c dashboardConfig) missing() []string {
	return missingFields(map[string]string{
		"dashboard_title": c.DashboardTitle,
		"uuid":            c.UUID,
	})
}

// chartUUIDs returns the chart uuids referenced by the dashboard layout.
func (c dashboardConfig) chartUUIDs() []string {
	var out []string
	seen := map[string]bool{}
	for _, node := range c.Position {
		m, ok := node.(map[string]any)
		if !ok || m["type"] != "CHART" {
			continue
		}
		meta, ok := m["meta"].(map[string]any)
		if !ok {
			continue
		}
		if id, ok := meta["uuid"].(string); ok && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func missingFields(fields map[string]string) []string {
	var out []string
	for name, v := range fields {
		if v == "" {
			out = append(out, name)
		}
	}
	return out
}

// jsonText renders a YAML value as the JSON text stored on the model.
// Strings are taken as already-encoded JSON.
func jsonText(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "{}", nil
	case string:
		if t == "" {
			return "{}", nil
		}
		return t, nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", fmt.Errorf("encode json: %w", err)
		}
		return string(b), nil
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
