package domain

import "time"

// CTASMethod selects what a CREATE ... AS SELECT statement materializes.
type CTASMethod string

// CTAS materialization modes.
const (
	CTASTable CTASMethod = "TABLE"
	CTASView  CTASMethod = "VIEW"
)

// Valid reports whether m is a known materialization mode.
func (m CTASMethod) Valid() bool {
	return m == CTASTable || m == CTASView
}

// Query status values.
const (
	QueryStatusRunning = "running"
	QueryStatusSuccess = "success"
	QueryStatusFailed  = "failed"
)

// Query is a SQL Lab execution record.
type Query struct {
	ID           int64      `json:"id"`
	ClientID     string     `json:"client_id"`
	DatabaseID   int64      `json:"database_id"`
	UserID       *int64     `json:"user_id"`
	SQL          string     `json:"sql"`
	ExecutedSQL  string     `json:"executed_sql"`
	Schema       string     `json:"schema"`
	SQLEditorID  string     `json:"sql_editor_id"`
	Limit        *int       `json:"limit"`
	SelectAsCTA  bool       `json:"select_as_cta"`
	CTASMethod   CTASMethod `json:"ctas_method"`
	TmpTableName string     `json:"tmp_table_name"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message"`
	Rows         int        `json:"rows"`
	StartedAt    time.Time  `json:"start_time"`
	EndedAt      *time.Time `json:"end_time"`
}
