// Package sqllab executes ad-hoc SQL against registered databases and keeps
// the execution history.
package sqllab

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bi-demo/internal/domain"
	"bi-demo/internal/eid"
	"bi-demo/internal/service/security"
)

// ExecuteRequest is the body of a SQL Lab execution.
type ExecuteRequest struct {
	DatabaseID     int64           `json:"database_id" validate:"required,gt=0"`
	SQL            string          `json:"sql" validate:"required"`
	ClientID       *string         `json:"client_id"`
	QueryLimit     *int            `json:"queryLimit" validate:"omitempty,gte=0"`
	SQLEditorID    *string         `json:"sql_editor_id"`
	CTASMethod     string          `json:"ctas_method" validate:"omitempty,oneof=TABLE VIEW"`
	TemplateParams json.RawMessage `json:"templateParams"`
	TmpTableName   string          `json:"tmp_table_name"`
	SelectAsCTA    bool            `json:"select_as_cta"`
	Schema         string          `json:"schema"`
}

// Column describes one result column.
type Column struct {
	ColumnName string `json:"column_name"`
	Name       string `json:"name"`
	Type       string `json:"type"`
}

// QueryInfo is the history record echoed back with a result.
type QueryInfo struct {
	ID           int64   `json:"id"`
	ClientID     string  `json:"clientId"`
	DBID         int64   `json:"dbId"`
	SQL          string  `json:"sql"`
	ExecutedSQL  string  `json:"executedSql"`
	Limit        *int    `json:"limit"`
	Rows         int     `json:"rows"`
	Schema       string  `json:"schema"`
	SQLEditorID  string  `json:"sqlEditorId"`
	State        string  `json:"state"`
	CTAS         bool    `json:"ctas"`
	CTASMethod   string  `json:"ctas_method"`
	TempTable    string  `json:"tempTable"`
	ErrorMessage *string `json:"errorMessage"`
	StartDttm    float64 `json:"startDttm"`
	EndDttm      float64 `json:"endDttm"`
}

// ExecuteResult is the body returned for a successful execution.
type ExecuteResult struct {
	QueryID int64            `json:"query_id"`
	Status  string           `json:"status"`
	Data    []map[string]any `json:"data"`
	Columns []Column         `json:"columns"`
	Query   QueryInfo        `json:"query"`
}

// QueryError is returned when a statement fails on the target database.
// The execution record is stored before it is returned.
type QueryError struct {
	QueryID int64
	Err     error
}

func (e *QueryError) Error() string { return e.Err.Error() }
func (e *QueryError) Unwrap() error { return e.Err }

// Service runs SQL Lab executions.
type Service struct {
	databases domain.DatabaseRepository
	queries   domain.QueryRepository
	connector *Connector
	logger    *slog.Logger
}

// NewService creates a Service.
func NewService(databases domain.DatabaseRepository, queries domain.QueryRepository, connector *Connector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		databases: databases,
		queries:   queries,
		connector: connector,
		logger:    logger,
	}
}

// Execute runs req as the user in ctx. Permission and validation problems
// are returned before anything is recorded; statement failures are recorded
// and returned as *QueryError.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	user, err := security.Require(ctx, domain.PermCanExecuteSQLQuery, domain.ViewSQLLab)
	if err != nil {
		return nil, err
	}
	database, err := s.databases.GetByID(ctx, req.DatabaseID)
	if err != nil {
		return nil, err
	}
	if !security.CanAccessDatabase(user, database) {
		return nil, domain.ErrAccessDenied("you do not have access to database %s", database.DatabaseName)
	}
	if !database.ExposeInSQLLab {
		return nil, domain.ErrAccessDenied("database %s is not exposed in SQL Lab", database.DatabaseName)
	}

	plan, err := s.plan(req, database)
	if err != nil {
		return nil, err
	}

	record := &domain.Query{
		ClientID:     plan.clientID,
		DatabaseID:   database.ID,
		UserID:       &user.ID,
		SQL:          req.SQL,
		Schema:       req.Schema,
		SQLEditorID:  deref(req.SQLEditorID),
		Limit:        req.QueryLimit,
		SelectAsCTA:  req.SelectAsCTA,
		CTASMethod:   plan.ctasMethod,
		TmpTableName: plan.tmpTable,
		Status:       domain.QueryStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	if _, err := s.queries.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("record query: %w", err)
	}

	columns, data, runErr := s.run(ctx, database, plan.statements)
	record.ExecutedSQL = joinStatements(plan.statements)
	if runErr != nil {
		record.Status = domain.QueryStatusFailed
		record.ErrorMessage = runErr.Error()
	} else {
		record.Status = domain.QueryStatusSuccess
		record.Rows = len(data)
	}
	if err := s.queries.Finish(ctx, record); err != nil {
		s.logger.Error("finish query record", "client_id", record.ClientID, "error", err)
	}

	s.logger.Info("sql lab execution",
		"client_id", record.ClientID,
		"database", database.DatabaseName,
		"user", user.Username,
		"status", record.Status,
		"rows", record.Rows,
	)
	if runErr != nil {
		return nil, &QueryError{QueryID: record.ID, Err: runErr}
	}

	return &ExecuteResult{
		QueryID: record.ID,
		Status:  record.Status,
		Data:    data,
		Columns: columns,
		Query:   queryInfo(record),
	}, nil
}

type executionPlan struct {
	clientID   string
	statements []string
	ctasMethod domain.CTASMethod
	tmpTable   string
}

func (s *Service) plan(req ExecuteRequest, database *domain.Database) (*executionPlan, error) {
	params, err := DecodeTemplateParams(req.TemplateParams)
	if err != nil {
		return nil, err
	}
	rendered, err := RenderTemplate(req.SQL, params)
	if err != nil {
		return nil, err
	}
	statements := SplitStatements(rendered)
	if len(statements) == 0 {
		return nil, domain.ErrValidation("no SQL statement to execute")
	}

	p := &executionPlan{clientID: deref(req.ClientID), ctasMethod: domain.CTASTable}
	if p.clientID == "" {
		p.clientID = eid.New()
	}
	if req.CTASMethod != "" {
		p.ctasMethod = domain.CTASMethod(req.CTASMethod)
		if !p.ctasMethod.Valid() {
			return nil, domain.ErrValidation("invalid ctas_method %q", req.CTASMethod)
		}
	}

	if !database.AllowDML {
		for _, stmt := range statements {
			if !IsSelect(stmt) {
				return nil, domain.ErrValidation("only SELECT statements are allowed against this database")
			}
		}
	}

	last := len(statements) - 1
	if req.SelectAsCTA {
		if p.ctasMethod == domain.CTASTable && !database.AllowCTAS {
			return nil, domain.ErrValidation("CREATE TABLE AS is not allowed on database %s", database.DatabaseName)
		}
		if p.ctasMethod == domain.CTASView && !database.AllowCVAS {
			return nil, domain.ErrValidation("CREATE VIEW AS is not allowed on database %s", database.DatabaseName)
		}
		if p.ctasMethod == domain.CTASView && len(statements) > 1 {
			return nil, domain.ErrValidation("CREATE VIEW AS requires a single SELECT statement")
		}
		p.tmpTable = req.TmpTableName
		if p.tmpTable == "" {
			p.tmpTable = eid.Prefixed("tmp")
		}
		ctas, err := BuildCTAS(statements[last], p.ctasMethod, req.Schema, p.tmpTable)
		if err != nil {
			return nil, err
		}
		statements[last] = ctas
	} else if req.QueryLimit != nil {
		statements[last] = ApplyLimit(statements[last], *req.QueryLimit)
	}
	p.statements = statements
	return p, nil
}

// run executes all statements on one connection and returns the rows of
// the last.
func (s *Service) run(ctx context.Context, database *domain.Database, statements []string) ([]Column, []map[string]any, error) {
	pool, err := s.connector.Open(database.SQLAlchemyURI)
	if err != nil {
		return nil, nil, err
	}
	conn, err := pool.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", database.DatabaseName, err)
	}
	defer conn.Close()

	last := len(statements) - 1
	for _, stmt := range statements[:last] {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return nil, nil, err
		}
	}
	if !IsSelect(statements[last]) {
		if _, err := conn.ExecContext(ctx, statements[last]); err != nil {
			return nil, nil, err
		}
		return []Column{}, []map[string]any{}, nil
	}

	rows, err := conn.QueryContext(ctx, statements[last])
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	return scanResult(rows)
}

func scanResult(rows *sql.Rows) ([]Column, []map[string]any, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, err
	}
	columns := make([]Column, len(types))
	for i, ct := range types {
		columns[i] = Column{ColumnName: ct.Name(), Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	data := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(columns))
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[columns[i].ColumnName] = v
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, data, nil
}

// GetByClientID returns a recorded execution.
func (s *Service) GetByClientID(ctx context.Context, clientID string) (*domain.Query, error) {
	user, err := security.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	q, err := s.queries.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !security.IsAdmin(user) && (q.UserID == nil || *q.UserID != user.ID) {
		return nil, domain.ErrNotFound("query %s not found", clientID)
	}
	return q, nil
}

func queryInfo(q *domain.Query) QueryInfo {
	info := QueryInfo{
		ID:          q.ID,
		ClientID:    q.ClientID,
		DBID:        q.DatabaseID,
		SQL:         q.SQL,
		ExecutedSQL: q.ExecutedSQL,
		Limit:       q.Limit,
		Rows:        q.Rows,
		Schema:      q.Schema,
		SQLEditorID: q.SQLEditorID,
		State:       q.Status,
		CTAS:        q.SelectAsCTA,
		CTASMethod:  string(q.CTASMethod),
		TempTable:   q.TmpTableName,
		StartDttm:   float64(q.StartedAt.UnixMilli()),
	}
	if q.EndedAt != nil {
		info.EndDttm = float64(q.EndedAt.UnixMilli())
	}
	if q.ErrorMessage != "" {
		msg := q.ErrorMessage
		info.ErrorMessage = &msg
	}
	return info
}

func joinStatements(stmts []string) string {
	out := ""
	for i, s := range stmts {
		if i > 0 {
			out += ";\n"
		}
		out += s
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// IsQueryError reports whether err came from the target database rather
// than from request validation or permissions.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}
