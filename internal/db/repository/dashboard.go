package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"bi-demo/internal/domain"
)

const dashboardColumns = `id, uuid, dashboard_title, slug, position_json, css, json_metadata, published,
	certified_by, certification_details, created_by_fk, changed_on`

var dashboardSpec = listSpec{
	table: "dashboards",
	columns: map[string]bool{
		"id": true, "uuid": true, "dashboard_title": true, "slug": true, "published": true,
		"certified_by": true, "created_by_fk": true, "changed_on": true,
	},
	defaultOrder: "changed_on",
}

// DashboardRepo implements domain.DashboardRepository.
type DashboardRepo struct {
	db *sql.DB
}

// NewDashboardRepo creates a DashboardRepo.
func NewDashboardRepo(db *sql.DB) *DashboardRepo {
	return &DashboardRepo{db: db}
}

func scanDashboard(row scanner) (*domain.Dashboard, error) {
	var (
		d                            domain.Dashboard
		slug, certifiedBy, certified sql.NullString
		createdBy                    sql.NullInt64
		changed                      string
	)
	if err := row.Scan(&d.ID, &d.UUID, &d.DashboardTitle, &slug, &d.PositionJSON, &d.CSS, &d.JSONMetadata,
		&d.Published, &certifiedBy, &certified, &createdBy, &changed); err != nil {
		return nil, err
	}
	d.Slug = stringPtr(slug)
	d.CertifiedBy = stringPtr(certifiedBy)
	d.CertificationDetails = stringPtr(certified)
	d.CreatedByID = int64Ptr(createdBy)
	d.ChangedOn = parseTime(changed)
	return &d, nil
}

func (r *DashboardRepo) Create(ctx context.Context, d *domain.Dashboard) (*domain.Dashboard, error) {
	if d.UUID == "" {
		d.UUID = uuid.NewString()
	}
	defaultJSON(&d.PositionJSON)
	defaultJSON(&d.JSONMetadata)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `INSERT INTO dashboards (uuid, dashboard_title, slug, position_json, css,
			json_metadata, published, certified_by, certification_details, created_by_fk)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.UUID, d.DashboardTitle, nullString(d.Slug), d.PositionJSON, d.CSS, d.JSONMetadata,
		boolToInt(d.Published), nullString(d.CertifiedBy), nullString(d.CertificationDetails),
		nullInt64(d.CreatedByID))
	if err != nil {
		return nil, mapDBError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := writeDashboardLinks(ctx, tx, id, d); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *DashboardRepo) Update(ctx context.Context, d *domain.Dashboard) (*domain.Dashboard, error) {
	defaultJSON(&d.PositionJSON)
	defaultJSON(&d.JSONMetadata)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `UPDATE dashboards SET dashboard_title = ?, slug = ?, position_json = ?,
			css = ?, json_metadata = ?, published = ?, certified_by = ?, certification_details = ?,
			changed_on = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?`,
		d.DashboardTitle, nullString(d.Slug), d.PositionJSON, d.CSS, d.JSONMetadata, boolToInt(d.Published),
		nullString(d.CertifiedBy), nullString(d.CertificationDetails), d.ID)
	if err != nil {
		return nil, mapDBError(err)
	}
	if err := checkAffected(res, "dashboard", d.ID); err != nil {
		return nil, err
	}
	if err := writeDashboardLinks(ctx, tx, d.ID, d); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, d.ID)
}

func defaultJSON(s *string) {
	if *s == "" {
		*s = "{}"
	}
}

func writeDashboardLinks(ctx context.Context, tx *sql.Tx, id int64, d *domain.Dashboard) error {
	if err := replaceLinks(ctx, tx, "dashboard_user", "dashboard_id", "user_id", id, d.Owners); err != nil {
		return err
	}
	if err := replaceLinks(ctx, tx, "dashboard_roles", "dashboard_id", "role_id", id, d.Roles); err != nil {
		return err
	}
	return replaceLinks(ctx, tx, "dashboard_slices", "dashboard_id", "slice_id", id, d.Charts)
}

func (r *DashboardRepo) getOne(ctx context.Context, where string, arg any) (*domain.Dashboard, error) {
	d, err := scanDashboard(r.db.QueryRowContext(ctx,
		`SELECT `+dashboardColumns+` FROM dashboards WHERE `+where, arg))
	if err != nil {
		return nil, mapDBError(err)
	}
	if err := r.loadLinks(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DashboardRepo) GetByID(ctx context.Context, id int64) (*domain.Dashboard, error) {
	return r.getOne(ctx, "id = ?", id)
}

func (r *DashboardRepo) GetByUUID(ctx context.Context, id string) (*domain.Dashboard, error) {
	return r.getOne(ctx, "uuid = ?", id)
}

func (r *DashboardRepo) GetBySlug(ctx context.Context, slug string) (*domain.Dashboard, error) {
	return r.getOne(ctx, "slug = ?", slug)
}

func (r *DashboardRepo) loadLinks(ctx context.Context, d *domain.Dashboard) error {
	var err error
	if d.Owners, err = queryIDs(ctx, r.db,
		`SELECT user_id FROM dashboard_user WHERE dashboard_id = ? ORDER BY user_id`, d.ID); err != nil {
		return err
	}
	if d.Roles, err = queryIDs(ctx, r.db,
		`SELECT role_id FROM dashboard_roles WHERE dashboard_id = ? ORDER BY role_id`, d.ID); err != nil {
		return err
	}
	d.Charts, err = queryIDs(ctx, r.db,
		`SELECT slice_id FROM dashboard_slices WHERE dashboard_id = ? ORDER BY slice_id`, d.ID)
	return err
}

func (r *DashboardRepo) List(ctx context.Context, q domain.ListQuery) ([]domain.Dashboard, int64, error) {
	rows, total, err := countAndSelect(ctx, r.db, dashboardSpec, dashboardColumns, q, "", nil)
	if err != nil {
		return nil, 0, err
	}
	out := []domain.Dashboard{}
	for rows.Next() {
		d, err := scanDashboard(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		out = append(out, *d)
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

func (r *DashboardRepo) Delete(ctx context.Context, ids ...int64) error {
	return deleteByIDs(ctx, r.db, "dashboards", "dashboard", ids)
}
