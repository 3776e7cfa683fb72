package domain

// DatabasePostRequest is the body for registering a database.
type DatabasePostRequest struct {
	DatabaseName   string `json:"database_name" validate:"required,max=250"`
	SQLAlchemyURI  string `json:"sqlalchemy_uri" validate:"required"`
	Extra          string `json:"extra" validate:"omitempty,json"`
	ExposeInSQLLab *bool  `json:"expose_in_sqllab"`
	AllowCTAS      bool   `json:"allow_ctas"`
	AllowCVAS      bool   `json:"allow_cvas"`
	AllowDML       bool   `json:"allow_dml"`
	CacheTimeout   *int64 `json:"cache_timeout" validate:"omitempty,gte=0"`
	UUID           string `json:"uuid" validate:"omitempty,uuid"`
}

// DatabasePutRequest is a partial update of a database.
type DatabasePutRequest struct {
	DatabaseName   *string `json:"database_name" validate:"omitempty,min=1,max=250"`
	SQLAlchemyURI  *string `json:"sqlalchemy_uri" validate:"omitempty,min=1"`
	Extra          *string `json:"extra" validate:"omitempty,json"`
	ExposeInSQLLab *bool   `json:"expose_in_sqllab"`
	AllowCTAS      *bool   `json:"allow_ctas"`
	AllowCVAS      *bool   `json:"allow_cvas"`
	AllowDML       *bool   `json:"allow_dml"`
	CacheTimeout   *int64  `json:"cache_timeout" validate:"omitempty,gte=0"`
}

// DatasetPostRequest is the body for registering a dataset.
type DatasetPostRequest struct {
	Database  int64  `json:"database" validate:"required,gt=0"`
	TableName string `json:"table_name" validate:"required,max=250"`
	Schema    string `json:"schema" validate:"max=255"`
	SQL       string `json:"sql"`
}

// DatasetPutRequest is a partial update of a dataset.
type DatasetPutRequest struct {
	TableName   *string `json:"table_name" validate:"omitempty,min=1,max=250"`
	Schema      *string `json:"schema" validate:"omitempty,max=255"`
	SQL         *string `json:"sql"`
	Description *string `json:"description"`
	MainDttmCol *string `json:"main_dttm_col"`
	Extra       *string `json:"extra" validate:"omitempty,json"`
}

// ChartPostRequest is the body for creating a chart.
type ChartPostRequest struct {
	SliceName            string  `json:"slice_name" validate:"required,max=250"`
	VizType              string  `json:"viz_type" validate:"max=250"`
	Params               string  `json:"params" validate:"omitempty,json"`
	DatasourceID         int64   `json:"datasource_id" validate:"required,gt=0"`
	DatasourceType       string  `json:"datasource_type" validate:"required,oneof=table"`
	Description          string  `json:"description"`
	CacheTimeout         *int64  `json:"cache_timeout" validate:"omitempty,gte=0"`
	CertifiedBy          *string `json:"certified_by"`
	CertificationDetails *string `json:"certification_details"`
	Owners               []int64 `json:"owners"`
	Dashboards           []int64 `json:"dashboards"`
}

// ChartPutRequest is a partial update of a chart.
type ChartPutRequest struct {
	SliceName            *string  `json:"slice_name" validate:"omitempty,min=1,max=250"`
	VizType              *string  `json:"viz_type" validate:"omitempty,max=250"`
	Params               *string  `json:"params" validate:"omitempty,json"`
	DatasourceID         *int64   `json:"datasource_id" validate:"omitempty,gt=0"`
	DatasourceType       *string  `json:"datasource_type" validate:"omitempty,oneof=table"`
	Description          *string  `json:"description"`
	CacheTimeout         *int64   `json:"cache_timeout" validate:"omitempty,gte=0"`
	CertifiedBy          *string  `json:"certified_by"`
	CertificationDetails *string  `json:"certification_details"`
	Owners               *[]int64 `json:"owners"`
	Dashboards           *[]int64 `json:"dashboards"`
}

// DashboardPostRequest is the body for creating a dashboard.
type DashboardPostRequest struct {
	DashboardTitle       string  `json:"dashboard_title" validate:"required,max=500"`
	Slug                 *string `json:"slug" validate:"omitempty,min=1,max=255"`
	PositionJSON         string  `json:"position_json" validate:"omitempty,json"`
	CSS                  string  `json:"css"`
	JSONMetadata         string  `json:"json_metadata" validate:"omitempty,json"`
	Published            bool    `json:"published"`
	CertifiedBy          *string `json:"certified_by"`
	CertificationDetails *string `json:"certification_details"`
	Owners               []int64 `json:"owners"`
	Roles                []int64 `json:"roles"`
}

// DashboardPutRequest is a partial update of a dashboard.
type DashboardPutRequest struct {
	DashboardTitle       *string  `json:"dashboard_title" validate:"omitempty,min=1,max=500"`
	Slug                 *string  `json:"slug" validate:"omitempty,max=255"`
	PositionJSON         *string  `json:"position_json" validate:"omitempty,json"`
	CSS                  *string  `json:"css"`
	JSONMetadata         *string  `json:"json_metadata" validate:"omitempty,json"`
	Published            *bool    `json:"published"`
	CertifiedBy          *string  `json:"certified_by"`
	CertificationDetails *string  `json:"certification_details"`
	Owners               *[]int64 `json:"owners"`
	Roles                *[]int64 `json:"roles"`
}
