package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"bi-demo/internal/domain"
)

const databaseColumns = `id, uuid, database_name, sqlalchemy_uri, extra, expose_in_sqllab,
	allow_ctas, allow_cvas, allow_dml, cache_timeout, created_on`

var databaseSpec = listSpec{
	table: "dbs",
	columns: map[string]bool{
		"id": true, "uuid": true, "database_name": true, "sqlalchemy_uri": true,
		"expose_in_sqllab": true, "allow_ctas": true, "allow_cvas": true,
		"allow_dml": true, "cache_timeout": true, "created_on": true,
	},
	defaultOrder: "database_name",
}

// DatabaseRepo implements domain.DatabaseRepository.
type DatabaseRepo struct {
	db *sql.DB
}

// NewDatabaseRepo creates a DatabaseRepo.
func NewDatabaseRepo(db *sql.DB) *DatabaseRepo {
	return &DatabaseRepo{db: db}
}

func scanDatabase(row scanner) (*domain.Database, error) {
	var (
		d       domain.Database
		timeout sql.NullInt64
		created string
	)
	if err := row.Scan(&d.ID, &d.UUID, &d.DatabaseName, &d.SQLAlchemyURI, &d.Extra, &d.ExposeInSQLLab,
		&d.AllowCTAS, &d.AllowCVAS, &d.AllowDML, &timeout, &created); err != nil {
		return nil, err
	}
	d.CacheTimeout = int64Ptr(timeout)
	d.CreatedAt = parseTime(created)
	return &d, nil
}

func (r *DatabaseRepo) getOne(ctx context.Context, where string, arg any) (*domain.Database, error) {
	d, err := scanDatabase(r.db.QueryRowContext(ctx, `SELECT `+databaseColumns+` FROM dbs WHERE `+where, arg))
	if err != nil {
		return nil, mapDBError(err)
	}
	return d, nil
}

func (r *DatabaseRepo) GetByID(ctx context.Context, id int64) (*domain.Database, error) {
	return r.getOne(ctx, "id = ?", id)
}

func (r *DatabaseRepo) GetByName(ctx context.Context, name string) (*domain.Database, error) {
	return r.getOne(ctx, "database_name = ?", name)
}

func (r *DatabaseRepo) GetByUUID(ctx context.Context, id string) (*domain.Database, error) {
	return r.getOne(ctx, "uuid = ?", id)
}

// FindFirst returns the lowest-id database matching every criterion, or nil.
func (r *DatabaseRepo) FindFirst(ctx context.Context, criteria map[string]any) (*domain.Database, error) {
	where, args, err := databaseSpec.criteriaClause(criteria)
	if err != nil {
		return nil, err
	}
	d, err := scanDatabase(r.db.QueryRowContext(ctx,
		`SELECT `+databaseColumns+` FROM dbs`+where+` ORDER BY id LIMIT 1`, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Save inserts d when it has no id, and otherwise inserts or updates the row
// with that id. A missing uuid is generated.
func (r *DatabaseRepo) Save(ctx context.Context, d *domain.Database) (*domain.Database, error) {
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
	res, err := r.db.ExecContext(ctx, `INSERT INTO dbs (id, uuid, database_name, sqlalchemy_uri, extra,
			expose_in_sqllab, allow_ctas, allow_cvas, allow_dml, cache_timeout)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			uuid = excluded.uuid,
			database_name = excluded.database_name,
			sqlalchemy_uri = excluded.sqlalchemy_uri,
			extra = excluded.extra,
			expose_in_sqllab = excluded.expose_in_sqllab,
			allow_ctas = excluded.allow_ctas,
			allow_cvas = excluded.allow_cvas,
			allow_dml = excluded.allow_dml,
			cache_timeout = excluded.cache_timeout`,
		id, d.UUID, d.DatabaseName, d.SQLAlchemyURI, d.Extra, boolToInt(d.ExposeInSQLLab),
		boolToInt(d.AllowCTAS), boolToInt(d.AllowCVAS), boolToInt(d.AllowDML), nullInt64(d.CacheTimeout))
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

func (r *DatabaseRepo) List(ctx context.Context, q domain.ListQuery) ([]domain.Database, int64, error) {
	rows, total, err := countAndSelect(ctx, r.db, databaseSpec, databaseColumns, q, "", nil)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []domain.Database{}
	for rows.Next() {
		d, err := scanDatabase(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, total, rows.Err()
}

func (r *DatabaseRepo) Delete(ctx context.Context, ids ...int64) error {
	return deleteByIDs(ctx, r.db, "dbs", "database", ids)
}
