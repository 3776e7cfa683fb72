package repository

import (
	"context"
	"database/sql"
	"time"

	"bi-demo/internal/domain"
)

// QueryRepo implements domain.QueryRepository for SQL Lab history.
type QueryRepo struct {
	db *sql.DB
}

// NewQueryRepo creates a QueryRepo.
func NewQueryRepo(db *sql.DB) *QueryRepo {
	return &QueryRepo{db: db}
}

func (r *QueryRepo) Create(ctx context.Context, q *domain.Query) (*domain.Query, error) {
	var limit sql.NullInt64
	if q.Limit != nil {
		limit = sql.NullInt64{Int64: int64(*q.Limit), Valid: true}
	}
	if q.Status == "" {
		q.Status = domain.QueryStatusRunning
	}
	if q.CTASMethod == "" {
		q.CTASMethod = domain.CTASTable
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO query (client_id, database_id, user_id, sql, schema,
			sql_editor_id, limit_rows, select_as_cta, ctas_method, tmp_table_name, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ClientID, q.DatabaseID, nullInt64(q.UserID), q.SQL, q.Schema, q.SQLEditorID, limit,
		boolToInt(q.SelectAsCTA), string(q.CTASMethod), q.TmpTableName, q.Status)
	if err != nil {
		return nil, mapDBError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	q.ID = id
	return q, nil
}

// Finish records the outcome of an execution and stamps its end time.
func (r *QueryRepo) Finish(ctx context.Context, q *domain.Query) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `UPDATE query SET status = ?, error_message = ?, executed_sql = ?,
			rows = ?, tmp_table_name = ?, end_time = ?
		WHERE id = ?`,
		q.Status, q.ErrorMessage, q.ExecutedSQL, q.Rows, q.TmpTableName, now.Format(time.RFC3339Nano), q.ID)
	if err != nil {
		return mapDBError(err)
	}
	q.EndedAt = &now
	return checkAffected(res, "query", q.ID)
}

func (r *QueryRepo) GetByClientID(ctx context.Context, clientID string) (*domain.Query, error) {
	var (
		q             domain.Query
		userID, limit sql.NullInt64
		selectAsCTA   bool
		ctas, start   string
		end           sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, client_id, database_id, user_id, sql, executed_sql, schema,
			sql_editor_id, limit_rows, select_as_cta, ctas_method, tmp_table_name, status, error_message,
			rows, start_time, end_time
		FROM query WHERE client_id = ?`, clientID).Scan(
		&q.ID, &q.ClientID, &q.DatabaseID, &userID, &q.SQL, &q.ExecutedSQL, &q.Schema, &q.SQLEditorID,
		&limit, &selectAsCTA, &ctas, &q.TmpTableName, &q.Status, &q.ErrorMessage, &q.Rows, &start, &end)
	if err != nil {
		return nil, mapDBError(err)
	}
	q.UserID = int64Ptr(userID)
	if limit.Valid {
		n := int(limit.Int64)
		q.Limit = &n
	}
	q.SelectAsCTA = selectAsCTA
	q.CTASMethod = domain.CTASMethod(ctas)
	q.StartedAt = parseTime(start)
	if end.Valid {
		t := parseTime(end.String)
		q.EndedAt = &t
	}
	return &q, nil
}
