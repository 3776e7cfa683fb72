package repository

import (
	"context"
	"database/sql"

	"bi-demo/internal/domain"
)

const userColumns = `id, username, first_name, last_name, email, active, password, created_on`

// UserRepo implements domain.UserRepository. Users are returned with their
// roles and each role's permission views loaded.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo creates a UserRepo.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `INSERT INTO ab_user (username, first_name, last_name, email, active, password)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, u.FirstName, u.LastName, u.Email, boolToInt(u.Active), u.PasswordHash)
	if err != nil {
		return nil, mapDBError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if err := replaceLinks(ctx, tx, "ab_user_role", "user_id", "role_id", id, u.RoleIDs()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM ab_user WHERE id = ?`, id)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM ab_user WHERE username = ?`, username)
}

func (r *UserRepo) get(ctx context.Context, query string, arg any) (*domain.User, error) {
	var (
		u       domain.User
		created string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &u.Active, &u.PasswordHash, &created)
	if err != nil {
		return nil, mapDBError(err)
	}
	u.CreatedAt = parseTime(created)

	roles, err := r.roles(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func (r *UserRepo) roles(ctx context.Context, userID int64) ([]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT r.id, r.name FROM ab_role r
		JOIN ab_user_role ur ON ur.role_id = r.id
		WHERE ur.user_id = ? ORDER BY r.id`, userID)
	if err != nil {
		return nil, err
	}
	roles := []domain.Role{}
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			rows.Close()
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range roles {
		perms, err := rolePermissions(ctx, r.db, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}
	return roles, nil
}

func (r *UserRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ab_user WHERE id = ?`, id)
	if err != nil {
		return mapDBError(err)
	}
	return checkAffected(res, "user", id)
}

func (r *UserRepo) SetRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := replaceLinks(ctx, tx, "ab_user_role", "user_id", "role_id", userID, roleIDs); err != nil {
		return err
	}
	return tx.Commit()
}
