package domain

import (
	"fmt"
	"time"
)

// Database is a registered connection that datasets and SQL Lab queries target.
type Database struct {
	ID             int64     `db:"id" json:"id"`
	UUID           string    `db:"uuid" json:"uuid"`
	DatabaseName   string    `db:"database_name" json:"database_name"`
	SQLAlchemyURI  string    `db:"sqlalchemy_uri" json:"sqlalchemy_uri"`
	Extra          string    `db:"extra" json:"extra"`
	ExposeInSQLLab bool      `db:"expose_in_sqllab" json:"expose_in_sqllab"`
	AllowCTAS      bool      `db:"allow_ctas" json:"allow_ctas"`
	AllowCVAS      bool      `db:"allow_cvas" json:"allow_cvas"`
	AllowDML       bool      `db:"allow_dml" json:"allow_dml"`
	CacheTimeout   *int64    `db:"cache_timeout" json:"cache_timeout"`
	CreatedAt      time.Time `db:"-" json:"created_on"`
}

// Perm is the view menu name that database_access is granted on.
func (d *Database) Perm() string {
	return fmt.Sprintf("[%s].(id:%d)", d.DatabaseName, d.ID)
}

// Dataset is a physical or virtual table registered on a database.
type Dataset struct {
	ID          int64     `db:"id" json:"id"`
	UUID        string    `db:"uuid" json:"uuid"`
	TableName   string    `db:"table_name" json:"table_name"`
	Schema      string    `db:"schema" json:"schema"`
	SQL         string    `db:"sql" json:"sql"`
	DatabaseID  int64     `db:"database_id" json:"database_id"`
	Description string    `db:"description" json:"description"`
	MainDttmCol string    `db:"main_dttm_col" json:"main_dttm_col"`
	Extra       string    `db:"extra" json:"extra"`
	CreatedAt   time.Time `db:"-" json:"created_on"`
}

// Perm is the view menu name that datasource_access is granted on.
func (d *Dataset) Perm(databaseName string) string {
	return fmt.Sprintf("[%s].[%s](id:%d)", databaseName, d.TableName, d.ID)
}

// DatasourceTypeTable is the only datasource type charts can reference.
const DatasourceTypeTable = "table"

// Chart is a saved visualization over a dataset.
type Chart struct {
	ID                   int64     `json:"id"`
	UUID                 string    `json:"uuid"`
	SliceName            string    `json:"slice_name"`
	VizType              string    `json:"viz_type"`
	Params               string    `json:"params"`
	DatasourceID         int64     `json:"datasource_id"`
	DatasourceType       string    `json:"datasource_type"`
	Description          string    `json:"description"`
	CacheTimeout         *int64    `json:"cache_timeout"`
	CertifiedBy          *string   `json:"certified_by"`
	CertificationDetails *string   `json:"certification_details"`
	CreatedByID          *int64    `json:"created_by_fk"`
	Owners               []int64   `json:"owners"`
	Dashboards           []int64   `json:"dashboards"`
	ChangedOn            time.Time `json:"changed_on"`
}

// IsOwner reports whether userID is among the chart owners.
func (c *Chart) IsOwner(userID int64) bool {
	return containsID(c.Owners, userID)
}

// Dashboard is a published arrangement of charts.
type Dashboard struct {
	ID                   int64     `json:"id"`
	UUID                 string    `json:"uuid"`
	DashboardTitle       string    `json:"dashboard_title"`
	Slug                 *string   `json:"slug"`
	PositionJSON         string    `json:"position_json"`
	CSS                  string    `json:"css"`
	JSONMetadata         string    `json:"json_metadata"`
	Published            bool      `json:"published"`
	CertifiedBy          *string   `json:"certified_by"`
	CertificationDetails *string   `json:"certification_details"`
	CreatedByID          *int64    `json:"created_by_fk"`
	Owners               []int64   `json:"owners"`
	Roles                []int64   `json:"roles"`
	Charts               []int64   `json:"charts"`
	ChangedOn            time.Time `json:"changed_on"`
}

// IsOwner reports whether userID is among the dashboard owners.
func (d *Dashboard) IsOwner(userID int64) bool {
	return containsID(d.Owners, userID)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// RelatedObjects lists the charts built on a database's datasets and the
// dashboards those charts appear on.
type RelatedObjects struct {
	Charts     []Chart
	Dashboards []Dashboard
}
