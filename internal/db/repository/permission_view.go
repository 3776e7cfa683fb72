package repository

import (
	"context"
	"database/sql"
	"errors"

	"bi-demo/internal/domain"
)

const permissionViewSelect = `SELECT pv.id, p.id, p.name, v.id, v.name
	FROM ab_permission_view pv
	JOIN ab_permission p ON p.id = pv.permission_id
	JOIN ab_view_menu v ON v.id = pv.view_menu_id`

// PermissionViewRepo implements domain.PermissionViewRepository.
type PermissionViewRepo struct {
	db *sql.DB
}

// NewPermissionViewRepo creates a PermissionViewRepo.
func NewPermissionViewRepo(db *sql.DB) *PermissionViewRepo {
	return &PermissionViewRepo{db: db}
}

func scanPermissionView(row scanner) (*domain.PermissionView, error) {
	var pv domain.PermissionView
	if err := row.Scan(&pv.ID, &pv.Permission.ID, &pv.Permission.Name, &pv.ViewMenu.ID, &pv.ViewMenu.Name); err != nil {
		return nil, err
	}
	return &pv, nil
}

func (r *PermissionViewRepo) Find(ctx context.Context, permission, view string) (*domain.PermissionView, error) {
	pv, err := scanPermissionView(r.db.QueryRowContext(ctx,
		permissionViewSelect+` WHERE p.name = ? AND v.name = ?`, permission, view))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("permission %s on %s not found", permission, view)
	}
	if err != nil {
		return nil, err
	}
	return pv, nil
}

// Ensure finds or creates the permission, the view menu, and their pair.
func (r *PermissionViewRepo) Ensure(ctx context.Context, permission, view string) (*domain.PermissionView, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO ab_permission (name) VALUES (?)`, permission); err != nil {
		return nil, mapDBError(err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO ab_view_menu (name) VALUES (?)`, view); err != nil {
		return nil, mapDBError(err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO ab_permission_view (permission_id, view_menu_id)
		SELECT p.id, v.id FROM ab_permission p, ab_view_menu v WHERE p.name = ? AND v.name = ?`,
		permission, view); err != nil {
		return nil, mapDBError(err)
	}
	pv, err := scanPermissionView(tx.QueryRowContext(ctx,
		permissionViewSelect+` WHERE p.name = ? AND v.name = ?`, permission, view))
	if err != nil {
		return nil, mapDBError(err)
	}
	return pv, tx.Commit()
}

func (r *PermissionViewRepo) ListByPermission(ctx context.Context, permission string) ([]domain.PermissionView, error) {
	rows, err := r.db.QueryContext(ctx, permissionViewSelect+` WHERE p.name = ? ORDER BY pv.id`, permission)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PermissionView
	for rows.Next() {
		pv, err := scanPermissionView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pv)
	}
	return out, rows.Err()
}

// DeleteView removes a view menu together with every pair and role grant on it.
func (r *PermissionViewRepo) DeleteView(ctx context.Context, view string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM ab_view_menu WHERE name = ?`, view)
	return mapDBError(err)
}

// rolePermissions loads the permission views granted to a role.
func rolePermissions(ctx context.Context, db *sql.DB, roleID int64) ([]domain.PermissionView, error) {
	rows, err := db.QueryContext(ctx, permissionViewSelect+`
		JOIN ab_permission_view_role pvr ON pvr.permission_view_id = pv.id
		WHERE pvr.role_id = ? ORDER BY pv.id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := []domain.PermissionView{}
	for rows.Next() {
		pv, err := scanPermissionView(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, *pv)
	}
	return perms, rows.Err()
}
