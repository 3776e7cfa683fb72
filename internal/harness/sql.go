package harness

import (
	"encoding/json"
	"errors"
	"fmt"

	"bi-demo/internal/app"
	"bi-demo/internal/domain"
)

// ErrRunSQLFailed is returned by RunSQL when RaiseOnError is set and the
// response carries an error.
var ErrRunSQLFailed = errors.New("run_sql failed")

// RunSQLOptions are the optional arguments of RunSQL. Zero values select the
// defaults noted per field.
type RunSQLOptions struct {
	ClientID string
	// Username runs the query in a fresh session as that user.
	Username     string
	RaiseOnError bool
	QueryLimit   *int
	// DatabaseName defaults to the examples database.
	DatabaseName string
	SQLEditorID  string
	SelectAsCTA  bool
	TmpTableName string
	Schema       string
	// CTASMethod defaults to TABLE.
	CTASMethod string
	// TemplateParams defaults to "{}".
	TemplateParams string
}

// RunSQL submits sql to the SQL Lab execute endpoint and returns the decoded
// response body.
func (h *Harness) RunSQL(sql string, opts RunSQLOptions) (map[string]any, error) {
	h.t.Helper()
	if opts.DatabaseName == "" {
		opts.DatabaseName = app.ExamplesDatabaseName
	}
	if opts.CTASMethod == "" {
		opts.CTASMethod = string(domain.CTASTable)
	}
	if opts.TemplateParams == "" {
		opts.TemplateParams = "{}"
	}

	if opts.Username != "" {
		h.Logout()
		h.Login(opts.Username)
		defer h.Logout()
	}

	dbase, err := h.GetDatabaseByName(opts.DatabaseName)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"database_id":    dbase.ID,
		"sql":            sql,
		"client_id":      opts.ClientID,
		"queryLimit":     opts.QueryLimit,
		"sql_editor_id":  opts.SQLEditorID,
		"ctas_method":    opts.CTASMethod,
		"templateParams": opts.TemplateParams,
	}
	if opts.TmpTableName != "" {
		payload["tmp_table_name"] = opts.TmpTableName
	}
	if opts.SelectAsCTA {
		payload["select_as_cta"] = true
	}
	if opts.Schema != "" {
		payload["schema"] = opts.Schema
	}

	resp, err := h.Client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post("/api/v1/sqllab/execute/")
	if err != nil {
		return nil, fmt.Errorf("post sqllab execute: %w", err)
	}

	var body map[string]any
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decode sqllab response (status %d): %w", resp.StatusCode(), err)
	}
	if _, failed := body["error"]; opts.RaiseOnError && failed {
		return body, ErrRunSQLFailed
	}
	return body, nil
}

// GetDatabaseByName looks up a registered database. An unknown name is an
// error.
func (h *Harness) GetDatabaseByName(name string) (*domain.Database, error) {
	d, err := h.App.Repos.Databases.GetByName(h.ctx, name)
	if err != nil {
		return nil, fmt.Errorf("database %q: %w", name, err)
	}
	return d, nil
}

// GetQueryByClientID returns the SQL Lab history record for clientID, or nil.
func (h *Harness) GetQueryByClientID(clientID string) *domain.Query {
	h.t.Helper()
	q, err := h.App.Repos.Queries.GetByClientID(h.ctx, clientID)
	if isNotFound(err) {
		return nil
	}
	h.req.NoError(err)
	return q
}
