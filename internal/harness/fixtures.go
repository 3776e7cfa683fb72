package harness

import (
	"context"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"bi-demo/internal/app"
	"bi-demo/internal/db/repository"
	"bi-demo/internal/domain"
)

// Fake databases some tests register next to the examples database.
const (
	FakeDBName          = "fake_db_100"
	FakeDBID            = 100
	FakeDBForMacrosName = "db_for_macros_testing"
	FakeDBForMacrosID   = 200
)

const fakeDBExtra = `{"schemas_allowed_for_file_upload": ["this_schema_is_allowed", "this_schema_is_allowed_too"]}`

// GetOrCreate looks up the first row of store matching criteria, building a
// T from criteria when there is none. Overrides are applied on both paths,
// matched to fields by their db tag, and the row is saved, so repeated calls
// converge on one row carrying the latest overrides.
func GetOrCreate[T any](h *Harness, store domain.FixtureStore[T], criteria, overrides map[string]any) *T {
	h.t.Helper()
	obj, err := store.FindFirst(h.ctx, criteria)
	h.req.NoError(err)
	if obj == nil {
		obj = new(T)
		h.req.NoError(decodeFields(criteria, obj))
	}

	h.req.NoError(decodeFields(overrides, obj))
	saved, err := store.Save(h.ctx, obj)
	h.req.NoError(err)
	return saved
}

func decodeFields(fields map[string]any, out any) error {
	if len(fields) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "db",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(fields)
}

// CreateFakeDB registers fake_db_100, an in-memory SQLite database that
// allows file uploads into two schemas.
func (h *Harness) CreateFakeDB() *domain.Database {
	h.t.Helper()
	return GetOrCreate[domain.Database](h, h.App.Repos.Databases,
		map[string]any{"database_name": FakeDBName},
		map[string]any{
			"sqlalchemy_uri": "sqlite:///:memory:",
			"id":             FakeDBID,
			"extra":          fakeDBExtra,
		})
}

// DeleteFakeDB removes fake_db_100 if present.
func (h *Harness) DeleteFakeDB() {
	h.t.Helper()
	h.deleteDatabaseNamed(FakeDBName)
}

// CreateFakeDBForMacros registers a database whose URI names a driver that
// is never connected to. Template rendering tests only need its metadata.
func (h *Harness) CreateFakeDBForMacros() *domain.Database {
	h.t.Helper()
	return GetOrCreate[domain.Database](h, h.App.Repos.Databases,
		map[string]any{"database_name": FakeDBForMacrosName},
		map[string]any{
			"sqlalchemy_uri": "db_for_macros_testing://user@host:8080/hive",
			"id":             FakeDBForMacrosID,
		})
}

// DeleteFakeDBForMacros removes db_for_macros_testing if present.
func (h *Harness) DeleteFakeDBForMacros() {
	h.t.Helper()
	h.deleteDatabaseNamed(FakeDBForMacrosName)
}

func (h *Harness) deleteDatabaseNamed(name string) {
	d, err := h.App.Repos.Databases.FindFirst(h.ctx, map[string]any{"database_name": name})
	h.req.NoError(err)
	if d != nil {
		h.req.NoError(h.App.Repos.Databases.Delete(h.ctx, d.ID))
	}
}

// InsertDashboardParams describes a dashboard written straight to the
// metastore.
type InsertDashboardParams struct {
	Title                string
	Slug                 *string
	Owners               []int64
	Roles                []int64
	CreatedByID          *int64
	Charts               []int64
	PositionJSON         string
	CSS                  string
	JSONMetadata         string
	Published            bool
	CertifiedBy          *string
	CertificationDetails *string
}

// InsertDashboard stores a dashboard without going through the API.
func (h *Harness) InsertDashboard(p InsertDashboardParams) *domain.Dashboard {
	h.t.Helper()
	d, err := h.App.Repos.Dashboards.Create(h.ctx, &domain.Dashboard{
		DashboardTitle:       p.Title,
		Slug:                 p.Slug,
		Owners:               p.Owners,
		Roles:                p.Roles,
		CreatedByID:          p.CreatedByID,
		Charts:               p.Charts,
		PositionJSON:         p.PositionJSON,
		CSS:                  p.CSS,
		JSONMetadata:         p.JSONMetadata,
		Published:            p.Published,
		CertifiedBy:          p.CertifiedBy,
		CertificationDetails: p.CertificationDetails,
	})
	h.req.NoError(err)
	return d
}

// ChartOption adjusts a chart before InsertChart stores it.
type ChartOption func(*domain.Chart)

// WithVizType sets the visualization type.
func WithVizType(vizType string) ChartOption {
	return func(c *domain.Chart) { c.VizType = vizType }
}

// WithParams sets the chart's form data.
func WithParams(params string) ChartOption {
	return func(c *domain.Chart) { c.Params = params }
}

// WithDescription sets the chart's description.
func WithDescription(description string) ChartOption {
	return func(c *domain.Chart) { c.Description = description }
}

// WithCacheTimeout sets the chart's cache timeout in seconds.
func WithCacheTimeout(seconds int64) ChartOption {
	return func(c *domain.Chart) { c.CacheTimeout = &seconds }
}

// WithCertification marks the chart as certified.
func WithCertification(by, details string) ChartOption {
	return func(c *domain.Chart) {
		c.CertifiedBy = &by
		c.CertificationDetails = &details
	}
}

// WithCreatedBy records userID as the chart's creator.
func WithCreatedBy(userID int64) ChartOption {
	return func(c *domain.Chart) { c.CreatedByID = &userID }
}

// InsertChart stores a table chart without going through the API.
func (h *Harness) InsertChart(name string, owners []int64, datasourceID int64, opts ...ChartOption) *domain.Chart {
	h.t.Helper()
	c := &domain.Chart{
		SliceName:      name,
		VizType:        "table",
		Params:         "{}",
		DatasourceID:   datasourceID,
		DatasourceType: domain.DatasourceTypeTable,
		Owners:         owners,
	}
	for _, opt := range opts {
		opt(c)
	}
	created, err := h.App.Repos.Charts.Create(h.ctx, c)
	h.req.NoError(err)
	return created
}

// GetDashBySlug returns the dashboard with slug, or nil.
func (h *Harness) GetDashBySlug(slug string) *domain.Dashboard {
	h.t.Helper()
	d, err := h.App.Repos.Dashboards.GetBySlug(h.ctx, slug)
	if isNotFound(err) {
		return nil
	}
	h.req.NoError(err)
	return d
}

// GetSlice returns the chart named name and fails the test when it does not
// exist.
func (h *Harness) GetSlice(name string) *domain.Chart {
	h.t.Helper()
	c, err := h.App.Repos.Charts.GetByName(h.ctx, name)
	h.req.NoError(err, "chart %q", name)
	return c
}

// GetTable returns the dataset for table name. A zero databaseID selects the
// examples database and an empty schema the examples schema.
func (h *Harness) GetTable(name string, databaseID int64, schema string) *domain.Dataset {
	h.t.Helper()
	if databaseID == 0 {
		examples, err := h.GetDatabaseByName(app.ExamplesDatabaseName)
		h.req.NoError(err)
		databaseID = examples.ID
	}
	if schema == "" {
		schema = app.ExamplesSchema
	}
	ds, err := h.App.Repos.Datasets.FindFirst(h.ctx, map[string]any{
		"table_name":  name,
		"database_id": databaseID,
		"schema":      schema,
	})
	h.req.NoError(err)
	h.req.NotNil(ds, "dataset %s.%s on database %d", schema, name, databaseID)
	return ds
}

// GetTableByID returns the dataset with id and fails the test when it does
// not exist.
func (h *Harness) GetTableByID(id int64) *domain.Dataset {
	h.t.Helper()
	ds, err := h.App.Repos.Datasets.GetByID(h.ctx, id)
	h.req.NoError(err)
	return ds
}

// GetDatabaseByID returns the database with id and fails the test when it
// does not exist.
func (h *Harness) GetDatabaseByID(id int64) *domain.Database {
	h.t.Helper()
	d, err := h.App.Repos.Databases.GetByID(h.ctx, id)
	h.req.NoError(err)
	return d
}

// GetBirthNamesDataset returns the example dataset every seeded harness has.
func (h *Harness) GetBirthNamesDataset() *domain.Dataset {
	h.t.Helper()
	return h.GetTable("birth_names", 0, "")
}

// GetNonexistentNumericID returns an id no row of table holds.
func (h *Harness) GetNonexistentNumericID(table string) int64 {
	h.t.Helper()
	id, err := repository.NextID(h.ctx, h.App.WriteDB(), table)
	h.req.NoError(err)
	return id
}

// GetDttm is a fixed timestamp for tests that need one.
func GetDttm() time.Time {
	return time.Date(2019, time.January, 2, 3, 4, 5, 678900000, time.UTC)
}

// TempStore is a FixtureStore that can also remove what it saved.
type TempStore[T any] interface {
	domain.FixtureStore[T]
	Delete(ctx context.Context, ids ...int64) error
}

// WithTempObject saves obj, passes the stored row to fn and deletes it
// afterwards, also when fn fails the test.
func WithTempObject[T any](h *Harness, store TempStore[T], obj *T, id func(*T) int64, fn func(*T)) {
	h.t.Helper()
	saved, err := store.Save(h.ctx, obj)
	h.req.NoError(err)
	defer func() {
		if err := store.Delete(h.ctx, id(saved)); err != nil && !isNotFound(err) {
			h.t.Errorf("delete temporary object: %v", err)
		}
	}()
	fn(saved)
}

// GrantPublicAccessToTable grants the Public role datasource_access on table.
func (h *Harness) GrantPublicAccessToTable(table *domain.Dataset) {
	h.t.Helper()
	h.GrantRoleAccessToTable(table, domain.RolePublic)
}

// GrantRoleAccessToTable grants roleName every datasource_access pair whose
// view names table.
func (h *Harness) GrantRoleAccessToTable(table *domain.Dataset, roleName string) {
	h.t.Helper()
	sec := h.App.Services.Security
	role, pvs := h.tableAccess(table, roleName)
	for i := range pvs {
		h.req.NoError(sec.AddPermissionRole(h.ctx, role, &pvs[i]))
	}
}

// RevokePublicAccessToTable undoes GrantPublicAccessToTable.
func (h *Harness) RevokePublicAccessToTable(table *domain.Dataset) {
	h.t.Helper()
	h.RevokeRoleAccessToTable(domain.RolePublic, table)
}

// RevokeRoleAccessToTable removes from roleName every datasource_access pair
// whose view names table.
func (h *Harness) RevokeRoleAccessToTable(roleName string, table *domain.Dataset) {
	h.t.Helper()
	sec := h.App.Services.Security
	role, pvs := h.tableAccess(table, roleName)
	for i := range pvs {
		h.req.NoError(sec.DelPermissionRole(h.ctx, role, &pvs[i]))
	}
}

func (h *Harness) tableAccess(table *domain.Dataset, roleName string) (*domain.Role, []domain.PermissionView) {
	h.t.Helper()
	sec := h.App.Services.Security
	role, err := sec.FindRole(h.ctx, roleName)
	h.req.NoError(err, "role %q", roleName)

	database := h.GetDatabaseByID(table.DatabaseID)
	perm := table.Perm(database.DatabaseName)
	all, err := sec.PermissionViewsFor(h.ctx, domain.PermDatasourceAccess)
	h.req.NoError(err)

	var out []domain.PermissionView
	for _, pv := range all {
		if strings.Contains(pv.ViewMenu.Name, perm) {
			out = append(out, pv)
		}
	}
	return role, out
}
