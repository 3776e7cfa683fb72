package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bi-demo/internal/domain"
	"bi-demo/internal/middleware"
	"bi-demo/internal/service/importexport"
	"bi-demo/internal/service/sqllab"
	"bi-demo/internal/testutil"
)

// === Stubs ===

type stubCRUD[T, P, U any] struct {
	listFn   func(ctx context.Context, q domain.ListQuery) ([]T, int64, error)
	getFn    func(ctx context.Context, id int64) (*T, error)
	createFn func(ctx context.Context, req P) (*T, error)
	updateFn func(ctx context.Context, id int64, req U) (*T, error)
	deleteFn func(ctx context.Context, ids ...int64) error
}

func (s *stubCRUD[T, P, U]) List(ctx context.Context, q domain.ListQuery) ([]T, int64, error) {
	if s.listFn == nil {
		panic("List called but not configured")
	}
	return s.listFn(ctx, q)
}

func (s *stubCRUD[T, P, U]) Get(ctx context.Context, id int64) (*T, error) {
	if s.getFn == nil {
		panic("Get called but not configured")
	}
	return s.getFn(ctx, id)
}

func (s *stubCRUD[T, P, U]) Create(ctx context.Context, req P) (*T, error) {
	if s.createFn == nil {
		panic("Create called but not configured")
	}
	return s.createFn(ctx, req)
}

func (s *stubCRUD[T, P, U]) Update(ctx context.Context, id int64, req U) (*T, error) {
	if s.updateFn == nil {
		panic("Update called but not configured")
	}
	return s.updateFn(ctx, id, req)
}

func (s *stubCRUD[T, P, U]) Delete(ctx context.Context, ids ...int64) error {
	if s.deleteFn == nil {
		panic("Delete called but not configured")
	}
	return s.deleteFn(ctx, ids...)
}

type stubDashboards struct {
	stubCRUD[domain.Dashboard, domain.DashboardPostRequest, domain.DashboardPutRequest]
	getBySlugFn func(ctx context.Context, idOrSlug string) (*domain.Dashboard, error)
}

func (s *stubDashboards) Get(ctx context.Context, idOrSlug string) (*domain.Dashboard, error) {
	return s.getBySlugFn(ctx, idOrSlug)
}

type stubDatabases struct {
	stubCRUD[domain.Database, domain.DatabasePostRequest, domain.DatabasePutRequest]
	relatedFn func(ctx context.Context, id int64) (*domain.RelatedObjects, error)
}

func (s *stubDatabases) RelatedObjects(ctx context.Context, id int64) (*domain.RelatedObjects, error) {
	if s.relatedFn == nil {
		panic("RelatedObjects called but not configured")
	}
	return s.relatedFn(ctx, id)
}

type stubSQLLab struct {
	executeFn func(ctx context.Context, req sqllab.ExecuteRequest) (*sqllab.ExecuteResult, error)
	queryFn   func(ctx context.Context, clientID string) (*domain.Query, error)
}

func (s *stubSQLLab) Execute(ctx context.Context, req sqllab.ExecuteRequest) (*sqllab.ExecuteResult, error) {
	return s.executeFn(ctx, req)
}

func (s *stubSQLLab) GetByClientID(ctx context.Context, clientID string) (*domain.Query, error) {
	return s.queryFn(ctx, clientID)
}

type stubImporter struct {
	assetType string
	data      []byte
	overwrite bool
	err       error
}

func (s *stubImporter) Import(_ context.Context, assetType string, data []byte, overwrite bool) error {
	s.assetType, s.data, s.overwrite = assetType, data, overwrite
	return s.err
}

type stubUsers map[string]*domain.User

func (s stubUsers) Authenticate(_ context.Context, username, password string) (*domain.User, error) {
	u, ok := s[username]
	if !ok || password != "general" {
		return nil, domain.ErrUnauthenticated("invalid username or password")
	}
	return u, nil
}

func (s stubUsers) GetUser(_ context.Context, id int64) (*domain.User, error) {
	for _, u := range s {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound("user %d not found", id)
}

// === Fixture ===

type apiFixture struct {
	server     *httptest.Server
	spy        *testutil.StatsSpy
	databases  *stubDatabases
	charts     *stubCRUD[domain.Chart, domain.ChartPostRequest, domain.ChartPutRequest]
	dashboards *stubDashboards
	sqllab     *stubSQLLab
	importer   *stubImporter
	token      string
}

var (
	adminUser = &domain.User{ID: 1, Username: "admin", Active: true, Roles: []domain.Role{{Name: domain.RoleAdmin}}}
	gammaUser = &domain.User{ID: 2, Username: "gamma", Active: true, Roles: []domain.Role{{
		Name: domain.RoleGamma,
		Permissions: []domain.PermissionView{{
			Permission: domain.Permission{Name: domain.PermCanRead},
			ViewMenu:   domain.ViewMenu{Name: domain.ViewChart},
		}},
	}}}
)

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	tokens, err := middleware.NewSessionTokens("secret", time.Hour)
	require.NoError(t, err)
	users := stubUsers{"admin": adminUser, "gamma": gammaUser}
	auth := middleware.NewAuthenticator(tokens, users, "", nil)

	f := &apiFixture{
		spy:        &testutil.StatsSpy{},
		databases:  &stubDatabases{},
		charts:     &stubCRUD[domain.Chart, domain.ChartPostRequest, domain.ChartPutRequest]{},
		dashboards: &stubDashboards{},
		sqllab:     &stubSQLLab{},
		importer:   &stubImporter{},
	}
	h := NewHandler(Deps{
		Auth:       auth,
		Users:      users,
		Databases:  f.databases,
		Datasets:   &stubCRUD[domain.Dataset, domain.DatasetPostRequest, domain.DatasetPutRequest]{},
		Charts:     f.charts,
		Dashboards: f.dashboards,
		SQLLab:     f.sqllab,
		Importer:   f.importer,
		Stats:      f.spy,
	})
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(auth.Middleware())
	h.Routes(r)
	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)

	f.token, err = tokens.Issue(adminUser.ID, adminUser.Username)
	require.NoError(t, err)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)
	return f.send(t, req)
}

func (f *apiFixture) send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// === Tests ===

func TestInstrument_OneCallPerRequest(t *testing.T) {
	f := newAPIFixture(t)
	f.charts.getFn = func(_ context.Context, id int64) (*domain.Chart, error) {
		if id == 1 {
			return &domain.Chart{ID: 1, SliceName: "Girls"}, nil
		}
		return nil, domain.ErrNotFound("chart %d not found", id)
	}
	f.charts.createFn = func(context.Context, domain.ChartPostRequest) (*domain.Chart, error) {
		return nil, errors.New("boom")
	}

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		status   int
		bucket   domain.MetricBucket
		funcName string
	}{
		{"success", http.MethodGet, "/api/v1/chart/1", nil, http.StatusOK, domain.BucketSuccess, "get"},
		{"not found", http.MethodGet, "/api/v1/chart/2", nil, http.StatusNotFound, domain.BucketWarning, "get"},
		{"bad pk", http.MethodGet, "/api/v1/chart/abc", nil, http.StatusNotFound, domain.BucketWarning, "get"},
		{"internal", http.MethodPost, "/api/v1/chart/", map[string]any{
			"slice_name": "x", "datasource_id": 1, "datasource_type": "table",
		}, http.StatusInternalServerError, domain.BucketError, "post"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f.spy.Reset()
			resp, _ := f.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, []testutil.StatsCall{{Bucket: tc.bucket, FuncName: tc.funcName}}, f.spy.Calls())
		})
	}
}

func TestInternalError_HidesCauseAndCarriesRequestID(t *testing.T) {
	f := newAPIFixture(t)
	f.charts.createFn = func(context.Context, domain.ChartPostRequest) (*domain.Chart, error) {
		return nil, errors.New("database is locked")
	}

	resp, body := f.do(t, http.MethodPost, "/api/v1/chart/", map[string]any{
		"slice_name": "x", "datasource_id": 1, "datasource_type": "table",
	})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal server error", body["message"])
	assert.NotEmpty(t, body["request_id"])
	assert.Equal(t, resp.Header.Get(middleware.RequestIDHeader), body["request_id"])
}

func TestList_DecodesRisonQuery(t *testing.T) {
	f := newAPIFixture(t)
	var got domain.ListQuery
	f.charts.listFn = func(_ context.Context, q domain.ListQuery) ([]domain.Chart, int64, error) {
		got = q
		return []domain.Chart{{ID: 3}, {ID: 5}}, 12, nil
	}

	q := "(filters:!((col:slice_name,opr:ct,value:girl)),order_column:slice_name,order_direction:desc,page:1,page_size:2)"
	resp, body := f.do(t, http.MethodGet, "/api/v1/chart/?q="+url.QueryEscape(q), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []domain.ListFilter{{Col: "slice_name", Opr: "ct", Value: "girl"}}, got.Filters)
	assert.Equal(t, "slice_name", got.OrderColumn)
	assert.True(t, got.Desc())
	assert.Equal(t, 1, got.Page)
	assert.Equal(t, 2, got.PageSize)
	assert.InDelta(t, 12, body["count"], 0.001)
	assert.Equal(t, []any{float64(3), float64(5)}, body["ids"])
}

func TestList_InvalidRison(t *testing.T) {
	f := newAPIFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/api/v1/chart/?q="+url.QueryEscape("(filters:!("), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBulkDelete(t *testing.T) {
	f := newAPIFixture(t)
	var got []int64
	f.charts.deleteFn = func(_ context.Context, ids ...int64) error {
		got = ids
		return nil
	}

	resp, body := f.do(t, http.MethodDelete, "/api/v1/chart/?q="+url.QueryEscape("!(1,2)"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []int64{1, 2}, got)
	assert.Equal(t, "Deleted 2 charts", body["message"])
	assert.Equal(t, "bulk_delete", f.spy.Calls()[0].FuncName)
}

func TestPost_ValidationMessagesByField(t *testing.T) {
	f := newAPIFixture(t)
	resp, body := f.do(t, http.MethodPost, "/api/v1/chart/", map[string]any{"datasource_type": "druid"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	msg, ok := body["message"].(map[string]any)
	require.True(t, ok, "message should be keyed by field: %v", body)
	assert.Equal(t, []any{"Missing data for required field."}, msg["slice_name"])
	assert.Contains(t, msg, "datasource_type")
}

func TestPost_UnknownFieldRejected(t *testing.T) {
	f := newAPIFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/api/v1/chart/", map[string]any{
		"slice_name": "x", "datasource_id": 1, "datasource_type": "table", "bogus": 1,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDashboardGetBySlug(t *testing.T) {
	f := newAPIFixture(t)
	f.dashboards.getBySlugFn = func(_ context.Context, idOrSlug string) (*domain.Dashboard, error) {
		assert.Equal(t, "births", idOrSlug)
		return &domain.Dashboard{ID: 9, DashboardTitle: "Births"}, nil
	}
	resp, body := f.do(t, http.MethodGet, "/api/v1/dashboard/births", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.InDelta(t, 9, body["id"], 0.001)
}

func importRequest(t *testing.T, serverURL, token string, overwrite bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("formData", "chart_export.zip")
	require.NoError(t, err)
	_, err = fw.Write([]byte("zipdata"))
	require.NoError(t, err)
	if overwrite {
		require.NoError(t, mw.WriteField("overwrite", "true"))
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, serverURL+"/api/v1/chart/import/", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestImport(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.send(t, importRequest(t, f.server.URL, f.token, true))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body["message"])
	assert.Equal(t, importexport.TypeChart, f.importer.assetType)
	assert.Equal(t, []byte("zipdata"), f.importer.data)
	assert.True(t, f.importer.overwrite)
	assert.Equal(t, []testutil.StatsCall{{Bucket: domain.BucketSuccess, FuncName: "import_"}}, f.spy.Calls())
}

func TestImport_ErrorEnvelope(t *testing.T) {
	f := newAPIFixture(t)
	f.importer.err = &domain.ImportError{
		Message: "Error importing chart",
		Extra:   map[string]any{"charts/chart.yaml": "Chart already exists and `overwrite=true` was not passed"},
	}

	resp, body := f.send(t, importRequest(t, f.server.URL, f.token, false))
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.False(t, f.importer.overwrite)

	errs, ok := body["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errs, 1)
	first := errs[0].(map[string]any)
	assert.Equal(t, "Error importing chart", first["message"])
	assert.Equal(t, "GENERIC_COMMAND_ERROR", first["error_type"])
	assert.Equal(t, map[string]any{
		"charts/chart.yaml": "Chart already exists and `overwrite=true` was not passed",
	}, first["extra"])
}

func TestExecuteSQL(t *testing.T) {
	f := newAPIFixture(t)
	var got sqllab.ExecuteRequest
	f.sqllab.executeFn = func(_ context.Context, req sqllab.ExecuteRequest) (*sqllab.ExecuteResult, error) {
		got = req
		switch req.SQL {
		case "SELECT 1":
			return &sqllab.ExecuteResult{QueryID: 1, Status: domain.QueryStatusSuccess, Data: []map[string]any{{"1": 1}}}, nil
		case "SELECT nope":
			return nil, &sqllab.QueryError{QueryID: 2, Err: errors.New("no such column: nope")}
		default:
			return nil, domain.ErrAccessDenied("you do not have access to database examples")
		}
	}

	resp, body := f.do(t, http.MethodPost, "/api/v1/sqllab/execute/", map[string]any{
		"database_id": 1, "sql": "SELECT 1", "client_id": "abc", "queryLimit": 10,
		"templateParams": "{}", "ctas_method": "TABLE",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.QueryStatusSuccess, body["status"])
	require.NotNil(t, got.QueryLimit)
	assert.Equal(t, 10, *got.QueryLimit)

	resp, body = f.do(t, http.MethodPost, "/api/v1/sqllab/execute/", map[string]any{"database_id": 1, "sql": "SELECT nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "no such column: nope", body["error"])

	resp, body = f.do(t, http.MethodPost, "/api/v1/sqllab/execute/", map[string]any{"database_id": 1, "sql": "SELECT 2"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, body, "error")

	resp, body = f.do(t, http.MethodPost, "/api/v1/sqllab/execute/", map[string]any{"sql": "SELECT 1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "error")
}

func TestInfo_ListsHeldPermissions(t *testing.T) {
	f := newAPIFixture(t)
	token, err := middleware.NewSessionTokens("secret", time.Hour)
	require.NoError(t, err)
	f.token, err = token.Issue(gammaUser.ID, gammaUser.Username)
	require.NoError(t, err)

	resp, body := f.do(t, http.MethodGet, "/api/v1/chart/_info", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{domain.PermCanRead}, body["permissions"])
}

func TestLoginLogout(t *testing.T) {
	f := newAPIFixture(t)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	resp, err := client.PostForm(f.server.URL+"/login/", url.Values{"username": {"admin"}, "password": {"nope"}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = client.PostForm(f.server.URL+"/login/", url.Values{"username": {"admin"}, "password": {"general"}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "session" {
			session = c
		}
	}
	require.NotNil(t, session)

	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/me/", nil)
	require.NoError(t, err)
	req.AddCookie(session)
	resp, body := f.send(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "admin", body["username"])
	assert.Equal(t, true, body["is_admin"])

	resp, err = client.Get(f.server.URL + "/logout/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login/", resp.Header.Get("Location"))
	require.NotEmpty(t, resp.Cookies())
	assert.Negative(t, resp.Cookies()[0].MaxAge)
}

func TestAnonymousIsUnauthorized(t *testing.T) {
	f := newAPIFixture(t)
	req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/chart/_info", nil)
	require.NoError(t, err)
	resp, body := f.send(t, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, strings.Contains(body["message"].(string), "authentication"))
}

func TestDatabaseRelatedObjects(t *testing.T) {
	f := newAPIFixture(t)
	slug := "births"
	f.databases.relatedFn = func(_ context.Context, id int64) (*domain.RelatedObjects, error) {
		if id != 1 {
			return nil, domain.ErrNotFound("database %d not found", id)
		}
		return &domain.RelatedObjects{
			Charts:     []domain.Chart{{ID: 3, SliceName: "Girls", VizType: "table"}},
			Dashboards: []domain.Dashboard{{ID: 5, DashboardTitle: "Births", Slug: &slug, JSONMetadata: "{}"}},
		}, nil
	}

	resp, body := f.do(t, http.MethodGet, "/api/v1/database/1/related_objects/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []testutil.StatsCall{{Bucket: domain.BucketSuccess, FuncName: "related_objects"}}, f.spy.Calls())

	charts := body["charts"].(map[string]any)
	assert.InDelta(t, 1, charts["count"], 0)
	chart := charts["result"].([]any)[0].(map[string]any)
	assert.Equal(t, "Girls", chart["slice_name"])
	assert.Equal(t, "table", chart["viz_type"])

	dashboards := body["dashboards"].(map[string]any)
	dash := dashboards["result"].([]any)[0].(map[string]any)
	assert.Equal(t, "Births", dash["title"])
	assert.Equal(t, "births", dash["slug"])

	f.spy.Reset()
	resp, _ = f.do(t, http.MethodGet, "/api/v1/database/2/related_objects/", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, []testutil.StatsCall{{Bucket: domain.BucketWarning, FuncName: "related_objects"}}, f.spy.Calls())
}
