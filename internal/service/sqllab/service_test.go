package sqllab

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "bi-demo/internal/db"
	"bi-demo/internal/db/repository"
	"bi-demo/internal/domain"
	"bi-demo/internal/testutil"
)

type fixture struct {
	svc      *Service
	database *domain.Database
	queries  *repository.QueryRepo
	dbs      *repository.DatabaseRepo
}

func setup(t *testing.T) *fixture {
	t.Helper()
	meta, _ := internaldb.OpenTestSQLite(t)

	path := filepath.Join(t.TempDir(), "examples.db")
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec(`CREATE TABLE birth_names (name TEXT, gender TEXT, num INTEGER);
		INSERT INTO birth_names VALUES ('Aaron', 'boy', 10), ('Abby', 'girl', 20), ('Zoe', 'girl', 5);`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	users := repository.NewUserRepo(meta)
	for _, name := range []string{"admin", "gamma"} {
		_, err := users.Create(context.Background(), &domain.User{Username: name, Email: name + "@fab.org", Active: true})
		require.NoError(t, err)
	}

	dbs := repository.NewDatabaseRepo(meta)
	database, err := dbs.Save(context.Background(), &domain.Database{
		DatabaseName:   "examples",
		SQLAlchemyURI:  "sqlite:///" + path,
		ExposeInSQLLab: true,
		AllowCTAS:      true,
	})
	require.NoError(t, err)

	connector := NewConnector()
	t.Cleanup(func() { _ = connector.Close() })
	queries := repository.NewQueryRepo(meta)
	return &fixture{
		svc:      NewService(dbs, queries, connector, nil),
		database: database,
		queries:  queries,
		dbs:      dbs,
	}
}

func sqlLabUser(perms ...domain.PermissionView) *domain.User {
	base := []domain.PermissionView{{
		Permission: domain.Permission{Name: domain.PermCanExecuteSQLQuery},
		ViewMenu:   domain.ViewMenu{Name: domain.ViewSQLLab},
	}}
	return &domain.User{ID: 2, Username: "gamma", Roles: []domain.Role{{Name: "r", Permissions: append(base, perms...)}}}
}

func adminCtx() context.Context {
	return domain.WithUser(context.Background(), &domain.User{
		ID: 1, Username: "admin", Roles: []domain.Role{{Name: domain.RoleAdmin}},
	})
}

func strPtr(s string) *string { return &s }

func TestExecute_SelectWithLimit(t *testing.T) {
	f := setup(t)
	limit := 2

	res, err := f.svc.Execute(adminCtx(), ExecuteRequest{
		DatabaseID: f.database.ID,
		SQL:        "SELECT name, num FROM birth_names ORDER BY num DESC",
		ClientID:   strPtr("client1"),
		QueryLimit: &limit,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.QueryStatusSuccess, res.Status)
	require.Len(t, res.Data, 2)
	assert.Equal(t, "Abby", res.Data[0]["name"])
	assert.Equal(t, "name", res.Columns[0].ColumnName)
	assert.Equal(t, "client1", res.Query.ClientID)
	assert.Contains(t, res.Query.ExecutedSQL, "LIMIT 2")

	q, err := f.svc.GetByClientID(adminCtx(), "client1")
	require.NoError(t, err)
	assert.Equal(t, domain.QueryStatusSuccess, q.Status)
	assert.Equal(t, 2, q.Rows)
}

func TestExecute_TemplateParams(t *testing.T) {
	f := setup(t)

	res, err := f.svc.Execute(adminCtx(), ExecuteRequest{
		DatabaseID:     f.database.ID,
		SQL:            "SELECT COUNT(*) AS n FROM birth_names WHERE gender = '{{ .gender }}'",
		TemplateParams: json.RawMessage(`"{\"gender\": \"girl\"}"`),
	})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.EqualValues(t, 2, res.Data[0]["n"])
	assert.NotEmpty(t, res.Query.ClientID)
}

func TestExecute_FailureIsRecorded(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Execute(adminCtx(), ExecuteRequest{
		DatabaseID: f.database.ID,
		SQL:        "SELECT * FROM no_such_table",
		ClientID:   strPtr("broken"),
	})
	require.Error(t, err)
	assert.True(t, IsQueryError(err))

	q, err := f.svc.GetByClientID(adminCtx(), "broken")
	require.NoError(t, err)
	assert.Equal(t, domain.QueryStatusFailed, q.Status)
	assert.Contains(t, q.ErrorMessage, "no_such_table")
}

func TestExecute_CTAS(t *testing.T) {
	f := setup(t)
	ctx := adminCtx()

	_, err := f.svc.Execute(ctx, ExecuteRequest{
		DatabaseID:   f.database.ID,
		SQL:          "SELECT name FROM birth_names WHERE gender = 'girl'",
		SelectAsCTA:  true,
		TmpTableName: "girls",
		ClientID:     strPtr("ctas"),
	})
	require.NoError(t, err)

	res, err := f.svc.Execute(ctx, ExecuteRequest{DatabaseID: f.database.ID, SQL: "SELECT * FROM girls"})
	require.NoError(t, err)
	assert.Len(t, res.Data, 2)

	q, err := f.svc.GetByClientID(adminCtx(), "ctas")
	require.NoError(t, err)
	assert.True(t, q.SelectAsCTA)
	assert.Equal(t, "girls", q.TmpTableName)

	_, err = f.svc.Execute(ctx, ExecuteRequest{
		DatabaseID:  f.database.ID,
		SQL:         "SELECT 1",
		SelectAsCTA: true,
		CTASMethod:  string(domain.CTASView),
	})
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation, "views are not allowed on this database")
}

func TestExecute_Permissions(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Execute(context.Background(), ExecuteRequest{DatabaseID: f.database.ID, SQL: "SELECT 1"})
	var unauth *domain.UnauthenticatedError
	require.ErrorAs(t, err, &unauth)

	ctx := domain.WithUser(context.Background(), sqlLabUser())
	_, err = f.svc.Execute(ctx, ExecuteRequest{DatabaseID: f.database.ID, SQL: "SELECT 1"})
	var denied *domain.AccessDeniedError
	require.ErrorAs(t, err, &denied)

	ctx = domain.WithUser(context.Background(), sqlLabUser(domain.PermissionView{
		Permission: domain.Permission{Name: domain.PermDatabaseAccess},
		ViewMenu:   domain.ViewMenu{Name: f.database.Perm()},
	}))
	res, err := f.svc.Execute(ctx, ExecuteRequest{DatabaseID: f.database.ID, SQL: "SELECT 1 AS one"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Data[0]["one"])

	_, err = f.svc.Execute(ctx, ExecuteRequest{DatabaseID: f.database.ID, SQL: "DELETE FROM birth_names"})
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = f.svc.Execute(adminCtx(), ExecuteRequest{DatabaseID: 9999, SQL: "SELECT 1"})
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestExecute_DuckDB(t *testing.T) {
	f := setup(t)
	ctx := adminCtx()

	duck, err := f.dbs.Save(context.Background(), &domain.Database{
		DatabaseName:   "duck",
		SQLAlchemyURI:  "duckdb://",
		ExposeInSQLLab: true,
		AllowDML:       true,
	})
	require.NoError(t, err)

	res, err := f.svc.Execute(ctx, ExecuteRequest{
		DatabaseID: duck.ID,
		SQL:        "CREATE TABLE t AS SELECT * FROM range(5) r(i); SELECT CAST(SUM(i) AS BIGINT) AS total FROM t",
	})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.EqualValues(t, 10, res.Data[0]["total"])
}

func TestGetByClientID_OnlyOwnerOrAdmin(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Execute(adminCtx(), ExecuteRequest{
		DatabaseID: f.database.ID,
		SQL:        "SELECT 1",
		ClientID:   strPtr("mine"),
	})
	require.NoError(t, err)

	_, err = f.svc.GetByClientID(domain.WithUser(context.Background(), sqlLabUser()), "mine")
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)

	_, err = f.svc.GetByClientID(context.Background(), "mine")
	var unauth *domain.UnauthenticatedError
	require.ErrorAs(t, err, &unauth)
}

func TestExecute_RecordFailureStopsExecution(t *testing.T) {
	f := setup(t)
	finished := false
	queries := &testutil.MockQueryRepo{
		CreateFn: func(context.Context, *domain.Query) (*domain.Query, error) {
			return nil, errors.New("disk full")
		},
		FinishFn: func(context.Context, *domain.Query) error {
			finished = true
			return nil
		},
	}
	svc := NewService(f.dbs, queries, NewConnector(), nil)

	_, err := svc.Execute(adminCtx(), ExecuteRequest{DatabaseID: f.database.ID, SQL: "SELECT 1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record query")
	assert.False(t, IsQueryError(err))
	assert.False(t, finished)
}
