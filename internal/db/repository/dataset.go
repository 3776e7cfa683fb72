package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"bi-demo/internal/domain"
)

const datasetColumns = `id, uuid, table_name, schema, sql, database_id, description, main_dttm_col, extra, created_on`

var datasetSpec = listSpec{
	table: "tables",
	columns: map[string]bool{
		"id": true, "uuid": true, "table_name": true, "schema": true, "sql": true,
		"database_id": true, "description": true, "main_dttm_col": true, "created_on": true,
	},
	defaultOrder: "table_name",
}

// DatasetRepo implements domain.DatasetRepository.
type DatasetRepo struct {
	db *sql.DB
}

// NewDatasetRepo creates a DatasetRepo.
func NewDatasetRepo(db *sql.DB) *DatasetRepo {
	return &DatasetRepo{db: db}
}

func scanDataset(row scanner) (*domain.Dataset, error) {
	var (
		d       domain.Dataset
		created string
	)
	if err := row.Scan(&d.ID, &d.UUID, &d.TableName, &d.Schema, &d.SQL, &d.DatabaseID,
		&d.Description, &d.MainDttmCol, &d.Extra, &created); err != nil {
		return nil, err
	}
	d.CreatedAt = parseTime(created)
	return &d, nil
}

func (r *DatasetRepo) GetByID(ctx context.Context, id int64) (*domain.Dataset, error) {
	d, err := scanDataset(r.db.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM tables WHERE id = ?`, id))
	if err != nil {
		return nil, mapDBError(err)
	}
	return d, nil
}

func (r *DatasetRepo) GetByUUID(ctx context.Context, id string) (*domain.Dataset, error) {
	d, err := scanDataset(r.db.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM tables WHERE uuid = ?`, id))
	if err != nil {
		return nil, mapDBError(err)
	}
	return d, nil
}

// FindFirst returns the lowest-id dataset matching every criterion, or nil.
func (r *DatasetRepo) FindFirst(ctx context.Context, criteria map[string]any) (*domain.Dataset, error) {
	where, args, err := datasetSpec.criteriaClause(criteria)
	if err != nil {
		return nil, err
	}
	d, err := scanDataset(r.db.QueryRowContext(ctx,
		`SELECT `+datasetColumns+` FROM tables`+where+` ORDER BY id LIMIT 1`, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Save inserts d when it has no id, and otherwise inserts or updates the row
// with that id.
func (r *DatasetRepo) Save(ctx context.Context, d *domain.Dataset) (*domain.Dataset, error) {
	if d.UUID == "" {
		d.UUID = uuid.NewString()
	}
	if d.Extra == "" {
		d.Extra = "{}"
	}
	var id any
	if d.ID != 0 {
		id = d.ID
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO tables (id, uuid, table_name, schema, sql, database_id,
			description, main_dttm_col, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uuid = excluded.uuid,
			table_name = excluded.table_name,
			schema = excluded.schema,
			sql = excluded.sql,
			database_id = excluded.database_id,
			description = excluded.description,
			main_dttm_col = excluded.main_dttm_col,
			extra = excluded.extra`,
		id, d.UUID, d.TableName, d.Schema, d.SQL, d.DatabaseID, d.Description, d.MainDttmCol, d.Extra)
	if err != nil {
		return nil, mapDBError(err)
	}
	if d.ID == 0 {
		if d.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
	}
	return r.GetByID(ctx, d.ID)
}

func (r *DatasetRepo) List(ctx context.Context, q domain.ListQuery) ([]domain.Dataset, int64, error) {
	rows, total, err := countAndSelect(ctx, r.db, datasetSpec, datasetColumns, q, "", nil)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []domain.Dataset{}
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

func (r *DatasetRepo) Delete(ctx context.Context, ids ...int64) error {
	return deleteByIDs(ctx, r.db, "tables", "dataset", ids)
}
