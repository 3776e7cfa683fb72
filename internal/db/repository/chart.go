package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"bi-demo/internal/domain"
)

const chartColumns = `id, uuid, slice_name, viz_type, params, datasource_id, datasource_type, description,
	cache_timeout, certified_by, certification_details, created_by_fk, changed_on`

var chartSpec = listSpec{
	table: "slices",
	columns: map[string]bool{
		"id": true, "uuid": true, "slice_name": true, "viz_type": true, "datasource_id": true,
		"datasource_type": true, "description": true, "certified_by": true,
		"created_by_fk": true, "changed_on": true,
	},
	defaultOrder: "changed_on",
}

// ChartRepo implements domain.ChartRepository.
type ChartRepo struct {
	db *sql.DB
}

// NewChartRepo creates a ChartRepo.
func NewChartRepo(db *sql.DB) *ChartRepo {
	return &ChartRepo{db: db}
}

func scanChart(row scanner) (*domain.Chart, error) {
	var (
		c                      domain.Chart
		timeout, createdBy     sql.NullInt64
		certifiedBy, certified sql.NullString
		changed                string
	)
	if err := row.Scan(&c.ID, &c.UUID, &c.SliceName, &c.VizType, &c.Params, &c.DatasourceID,
		&c.DatasourceType, &c.Description, &timeout, &certifiedBy, &certified, &createdBy, &changed); err != nil {
		return nil, err
	}
	c.CacheTimeout = int64Ptr(timeout)
	c.CertifiedBy = stringPtr(certifiedBy)
	c.CertificationDetails = stringPtr(certified)
	c.CreatedByID = int64Ptr(createdBy)
	c.ChangedOn = parseTime(changed)
	return &c, nil
}

func (r *ChartRepo) Create(ctx context.Context, c *domain.Chart) (*domain.Chart, error) {
	if c.UUID == "" {
		c.UUID = uuid.NewString()
	}
	if c.DatasourceType == "" {
		c.DatasourceType = domain.DatasourceTypeTable
	}
	if c.Params == "" {
		c.Params = "{}"
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `INSERT INTO slices (uuid, slice_name, viz_type, params, datasource_id,
			datasource_type, description, cache_timeout, certified_by, certification_details, created_by_fk)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UUID, c.SliceName, c.VizType, c.Params, c.DatasourceID, c.DatasourceType, c.Description,
		nullInt64(c.CacheTimeout), nullString(c.CertifiedBy), nullString(c.CertificationDetails),
		nullInt64(c.CreatedByID))
	if err != nil {
		return nil, mapDBError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := r.writeLinks(ctx, tx, id, c); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// Update overwrites the chart row and replaces its owner and dashboard links.
func (r *ChartRepo) Update(ctx context.Context, c *domain.Chart) (*domain.Chart, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `UPDATE slices SET slice_name = ?, viz_type = ?, params = ?,
			datasource_id = ?, datasource_type = ?, description = ?, cache_timeout = ?,
			certified_by = ?, certification_details = ?,
			changed_on = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`,
		c.SliceName, c.VizType, c.Params, c.DatasourceID, c.DatasourceType, c.Description,
		nullInt64(c.CacheTimeout), nullString(c.CertifiedBy), nullString(c.CertificationDetails), c.ID)
	if err != nil {
		return nil, mapDBError(err)
	}
	if err := checkAffected(res, "chart", c.ID); err != nil {
		return nil, err
	}
	if err := r.writeLinks(ctx, tx, c.ID, c); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, c.ID)
}

func (r *ChartRepo) writeLinks(ctx context.Context, tx *sql.Tx, id int64, c *domain.Chart) error {
	if err := replaceLinks(ctx, tx, "slice_user", "slice_id", "user_id", id, c.Owners); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dashboard_slices WHERE slice_id = ?`, id); err != nil {
		return err
	}
	for _, dashID := range c.Dashboards {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO dashboard_slices (dashboard_id, slice_id) VALUES (?, ?)`, dashID, id); err != nil {
			return mapDBError(err)
		}
	}
	return nil
}

func (r *ChartRepo) getOne(ctx context.Context, where string, arg any) (*domain.Chart, error) {
	c, err := scanChart(r.db.QueryRowContext(ctx,
		`SELECT `+chartColumns+` FROM slices WHERE `+where+` ORDER BY id LIMIT 1`, arg))
	if err != nil {
		return nil, mapDBError(err)
	}
	if err := r.loadLinks(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ChartRepo) GetByID(ctx context.Context, id int64) (*domain.Chart, error) {
	return r.getOne(ctx, "id = ?", id)
}

func (r *ChartRepo) GetByUUID(ctx context.Context, id string) (*domain.Chart, error) {
	return r.getOne(ctx, "uuid = ?", id)
}

func (r *ChartRepo) GetByName(ctx context.Context, name string) (*domain.Chart, error) {
	return r.getOne(ctx, "slice_name = ?", name)
}

func (r *ChartRepo) loadLinks(ctx context.Context, c *domain.Chart) error {
	owners, err := queryIDs(ctx, r.db, `SELECT user_id FROM slice_user WHERE slice_id = ? ORDER BY user_id`, c.ID)
	if err != nil {
		return err
	}
	dashboards, err := queryIDs(ctx, r.db,
		`SELECT dashboard_id FROM dashboard_slices WHERE slice_id = ? ORDER BY dashboard_id`, c.ID)
	if err != nil {
		return err
	}
	c.Owners = owners
	c.Dashboards = dashboards
	return nil
}

// List pages through charts. A non-nil datasourceIDs restricts the result
// to charts over those datasets; an empty one matches nothing.
func (r *ChartRepo) List(ctx context.Context, q domain.ListQuery, datasourceIDs []int64) ([]domain.Chart, int64, error) {
	var (
		cond string
		args []any
	)
	if datasourceIDs != nil {
		if len(datasourceIDs) == 0 {
			cond = "1 = 0"
		} else {
			cond = fmt.Sprintf("datasource_id IN (%s)", placeholders(len(datasourceIDs)))
			args = int64Args(datasourceIDs)
		}
	}

	rows, total, err := countAndSelect(ctx, r.db, chartSpec, chartColumns, q, cond, args)
	if err != nil {
		return nil, 0, err
	}
	out := []domain.Chart{}
	for rows.Next() {
		c, err := scanChart(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		out = append(out, *c)
	}
	if err := rows.Close(); err != nil {
		return nil, 0, err
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range out {
		if err := r.loadLinks(ctx, &out[i]); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

func (r *ChartRepo) Delete(ctx context.Context, ids ...int64) error {
	return deleteByIDs(ctx, r.db, "slices", "chart", ids)
}
