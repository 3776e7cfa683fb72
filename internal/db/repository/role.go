package repository

import (
	"context"
	"database/sql"

	"bi-demo/internal/domain"
)

// RoleRepo implements domain.RoleRepository.
type RoleRepo struct {
	db *sql.DB
}

// NewRoleRepo creates a RoleRepo.
func NewRoleRepo(db *sql.DB) *RoleRepo {
	return &RoleRepo{db: db}
}

func (r *RoleRepo) Create(ctx context.Context, name string) (*domain.Role, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO ab_role (name) VALUES (?)`, name)
	if err != nil {
		return nil, mapDBError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &domain.Role{ID: id, Name: name, Permissions: []domain.PermissionView{}}, nil
}

func (r *RoleRepo) GetByID(ctx context.Context, id int64) (*domain.Role, error) {
	return r.get(ctx, `SELECT id, name FROM ab_role WHERE id = ?`, id)
}

func (r *RoleRepo) GetByName(ctx context.Context, name string) (*domain.Role, error) {
	return r.get(ctx, `SELECT id, name FROM ab_role WHERE name = ?`, name)
}

func (r *RoleRepo) get(ctx context.Context, query string, arg any) (*domain.Role, error) {
	var role domain.Role
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&role.ID, &role.Name); err != nil {
		return nil, mapDBError(err)
	}
	perms, err := rolePermissions(ctx, r.db, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms
	return &role, nil
}

func (r *RoleRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ab_role WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	return checkAffected(res, "role", id)
}

func (r *RoleRepo) AddPermission(ctx context.Context, roleID, permissionViewID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO ab_permission_view_role (permission_view_id, role_id) VALUES (?, ?)`,
		permissionViewID, roleID)
	return mapDBError(err)
}

func (r *RoleRepo) RemovePermission(ctx context.Context, roleID, permissionViewID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM ab_permission_view_role WHERE permission_view_id = ? AND role_id = ?`,
		permissionViewID, roleID)
	return mapDBError(err)
}

func (r *RoleRepo) SetPermissions(ctx context.Context, roleID int64, permissionViewIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := replaceLinks(ctx, tx, "ab_permission_view_role", "role_id", "permission_view_id", roleID, permissionViewIDs); err != nil {
		return err
	}
	return tx.Commit()
}
