// Package repository implements the domain repository ports on the SQLite metastore.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"bi-demo/internal/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Message: "resource not found"}
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return &domain.ConflictError{Message: "resource already exists: " + strings.TrimPrefix(msg, "UNIQUE constraint failed: ")}
	}
	if strings.Contains(msg, "FOREIGN KEY constraint failed") {
		return &domain.ValidationError{Message: "referenced resource does not exist"}
	}
	return err
}

// checkAffected turns a zero-row mutation into a NotFoundError.
func checkAffected(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("%s %d not found", what, id)
	}
	return nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

var timeLayouts = []string{
	"2006-01-02T15:04:05.999Z",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// listSpec describes which columns of a table list queries may filter and
// order on.
type listSpec struct {
	table        string
	columns      map[string]bool
	defaultOrder string
}

// whereClause renders filters as a SQL predicate. Unknown columns and
// operators are rejected so user input never reaches the statement text.
func (s listSpec) whereClause(filters []domain.ListFilter) (string, []any, error) {
	var (
		conds []string
		args  []any
	)
	for _, f := range filters {
		if !s.columns[f.Col] {
			return "", nil, domain.ErrValidation("cannot filter on column %q", f.Col)
		}
		switch f.Opr {
		case domain.OpEqual, "":
			conds = append(conds, f.Col+" = ?")
			args = append(args, f.Value)
		case domain.OpNotEqual:
			conds = append(conds, f.Col+" != ?")
			args = append(args, f.Value)
		case domain.OpContains:
			conds = append(conds, f.Col+" LIKE ?")
			args = append(args, "%"+fmt.Sprint(f.Value)+"%")
		case domain.OpStartsWith:
			conds = append(conds, f.Col+" LIKE ?")
			args = append(args, fmt.Sprint(f.Value)+"%")
		case domain.OpGreater:
			conds = append(conds, f.Col+" > ?")
			args = append(args, f.Value)
		case domain.OpLess:
			conds = append(conds, f.Col+" < ?")
			args = append(args, f.Value)
		case domain.OpIn:
			values, ok := f.Value.([]any)
			if !ok {
				return "", nil, domain.ErrValidation("operator %q needs a list value", f.Opr)
			}
			if len(values) == 0 {
				conds = append(conds, "1 = 0")
				continue
			}
			conds = append(conds, fmt.Sprintf("%s IN (%s)", f.Col, placeholders(len(values))))
			args = append(args, values...)
		default:
			return "", nil, domain.ErrValidation("unsupported filter operator %q", f.Opr)
		}
	}
	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (s listSpec) orderClause(q domain.ListQuery) (string, error) {
	col := s.defaultOrder
	if q.OrderColumn != "" {
		if !s.columns[q.OrderColumn] {
			return "", domain.ErrValidation("cannot order by column %q", q.OrderColumn)
		}
		col = q.OrderColumn
	}
	dir := "ASC"
	if q.Desc() {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id ASC", col, dir), nil
}

// criteriaClause renders an equality predicate over criteria for FindFirst.
// Keys are sorted so the statement text is stable.
func (s listSpec) criteriaClause(criteria map[string]any) (string, []any, error) {
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	filters := make([]domain.ListFilter, 0, len(keys))
	for _, k := range keys {
		filters = append(filters, domain.ListFilter{Col: k, Opr: domain.OpEqual, Value: criteria[k]})
	}
	return s.whereClause(filters)
}

// countAndSelect runs the count and the page query of a list request.
func countAndSelect(ctx context.Context, db *sql.DB, spec listSpec, selectCols string, q domain.ListQuery, extraCond string, extraArgs []any) (*sql.Rows, int64, error) {
	where, args, err := spec.whereClause(q.Filters)
	if err != nil {
		return nil, 0, err
	}
	if extraCond != "" {
		if where == "" {
			where = " WHERE " + extraCond
		} else {
			where += " AND " + extraCond
		}
		args = append(args, extraArgs...)
	}
	order, err := spec.orderClause(q)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+spec.table+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pageArgs := append(append([]any{}, args...), q.Limit(), q.Offset())
	rows, err := db.QueryContext(ctx,
		"SELECT "+selectCols+" FROM "+spec.table+where+order+" LIMIT ? OFFSET ?", pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func queryIDs(ctx context.Context, db *sql.DB, query string, args ...any) ([]int64, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// replaceLinks rewrites a link table's rows for one parent inside tx.
func replaceLinks(ctx context.Context, tx *sql.Tx, table, parentCol, childCol string, parentID int64, childIDs []int64) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, parentCol), parentID); err != nil {
		return err
	}
	stmt := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s, %s) VALUES (?, ?)", table, parentCol, childCol)
	for _, id := range childIDs {
		if _, err := tx.ExecContext(ctx, stmt, parentID, id); err != nil {
			return mapDBError(err)
		}
	}
	return nil
}

// deleteByIDs removes all rows in ids, or none when any of them is missing.
func deleteByIDs(ctx context.Context, db *sql.DB, table, what string, ids []int64) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	in := placeholders(len(ids))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var found int
	if err := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id IN (%s)", table, in), int64Args(ids)...).Scan(&found); err != nil {
		return err
	}
	if found != len(ids) {
		return domain.ErrNotFound("%s not found", what)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", table, in), int64Args(ids)...); err != nil {
		return mapDBError(err)
	}
	return tx.Commit()
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

var nextIDTables = map[string]bool{
	"dbs": true, "tables": true, "slices": true, "dashboards": true,
	"ab_user": true, "ab_role": true, "query": true,
}

// NextID returns an id one past the largest id in table, which no row holds.
func NextID(ctx context.Context, db *sql.DB, table string) (int64, error) {
	if !nextIDTables[table] {
		return 0, domain.ErrValidation("unknown table %q", table)
	}
	var id int64
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) + 1 FROM "+table).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
