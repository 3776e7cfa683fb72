// Package security manages users, roles and permission views, and answers
// access questions for the rest of the service.
package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"bi-demo/internal/domain"
)

// Manager is the security manager: identity storage plus permission checks.
type Manager struct {
	users    domain.UserRepository
	roles    domain.RoleRepository
	pvs      domain.PermissionViewRepository
	logger   *slog.Logger
	hashCost int
}

// Option configures a Manager.
type Option func(*Manager)

// WithHashCost sets the bcrypt cost used for new passwords.
func WithHashCost(cost int) Option {
	return func(m *Manager) { m.hashCost = cost }
}

// NewManager creates a Manager.
func NewManager(users domain.UserRepository, roles domain.RoleRepository, pvs domain.PermissionViewRepository, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		users:    users,
		roles:    roles,
		pvs:      pvs,
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FindUser returns the user with the given username.
func (m *Manager) FindUser(ctx context.Context, username string) (*domain.User, error) {
	u, err := m.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, notFoundAs(err, "user %q not found", username)
	}
	return u, nil
}

// GetUser returns the user with the given id.
func (m *Manager) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return m.users.GetByID(ctx, id)
}

// AddUser validates req, hashes its password and stores the user with the
// requested roles.
func (m *Manager) AddUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := m.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	return m.CreateUser(ctx, &domain.User{
		Username:     req.Username,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Active:       true,
		PasswordHash: hash,
		Roles:        req.Roles,
	})
}

// CreateUser stores u as given. The password hash is taken verbatim.
func (m *Manager) CreateUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	created, err := m.users.Create(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("create user %q: %w", u.Username, err)
	}
	m.logger.Debug("user created", "username", created.Username, "roles", len(created.Roles))
	return created, nil
}

// DeleteUser removes a user and its role bindings.
func (m *Manager) DeleteUser(ctx context.Context, id int64) error {
	if err := m.users.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Debug("user deleted", "user_id", id)
	return nil
}

// SetUserRoles replaces the roles bound to a user.
func (m *Manager) SetUserRoles(ctx context.Context, userID int64, roles []domain.Role) error {
	ids := make([]int64, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	return m.users.SetRoles(ctx, userID, ids)
}

// HashPassword returns the bcrypt hash of password.
func (m *Manager) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate checks a username/password pair.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	u, err := m.users.GetByUsername(ctx, username)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return nil, domain.ErrUnauthenticated("invalid username or password")
		}
		return nil, err
	}
	if !u.Active {
		return nil, domain.ErrUnauthenticated("user %q is inactive", username)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrUnauthenticated("invalid username or password")
	}
	return u, nil
}

// FindRole returns the role with the given name.
func (m *Manager) FindRole(ctx context.Context, name string) (*domain.Role, error) {
	r, err := m.roles.GetByName(ctx, name)
	if err != nil {
		return nil, notFoundAs(err, "role %q not found", name)
	}
	return r, nil
}

// AddRole returns the named role, creating it when absent.
func (m *Manager) AddRole(ctx context.Context, name string) (*domain.Role, error) {
	if name == "" {
		return nil, domain.ErrValidation("role name is required")
	}
	r, err := m.roles.GetByName(ctx, name)
	if err == nil {
		return r, nil
	}
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		return nil, err
	}
	return m.roles.Create(ctx, name)
}

// DeleteRole removes a role. Users holding it lose the binding.
func (m *Manager) DeleteRole(ctx context.Context, id int64) error {
	return m.roles.Delete(ctx, id)
}

// CopyRole copies the permission set of source onto target, creating target
// when absent. With merge the target keeps its own permissions as well;
// otherwise its set is replaced.
func (m *Manager) CopyRole(ctx context.Context, source, target string, merge bool) (*domain.Role, error) {
	src, err := m.FindRole(ctx, source)
	if err != nil {
		return nil, err
	}
	dst, err := m.AddRole(ctx, target)
	if err != nil {
		return nil, err
	}

	var ids []int64
	seen := map[int64]bool{}
	if merge {
		for _, pv := range dst.Permissions {
			seen[pv.ID] = true
			ids = append(ids, pv.ID)
		}
	}
	for _, pv := range src.Permissions {
		if !seen[pv.ID] {
			seen[pv.ID] = true
			ids = append(ids, pv.ID)
		}
	}
	if err := m.roles.SetPermissions(ctx, dst.ID, ids); err != nil {
		return nil, fmt.Errorf("copy role %s to %s: %w", source, target, err)
	}
	return m.roles.GetByID(ctx, dst.ID)
}

// FindPermissionView looks up an existing permission/view pair.
func (m *Manager) FindPermissionView(ctx context.Context, permission, view string) (*domain.PermissionView, error) {
	return m.pvs.Find(ctx, permission, view)
}

// AddPermissionView returns the permission/view pair, creating any missing part.
func (m *Manager) AddPermissionView(ctx context.Context, permission, view string) (*domain.PermissionView, error) {
	return m.pvs.Ensure(ctx, permission, view)
}

// PermissionViewsFor lists every pair of the given permission.
func (m *Manager) PermissionViewsFor(ctx context.Context, permission string) ([]domain.PermissionView, error) {
	return m.pvs.ListByPermission(ctx, permission)
}

// DeleteViewMenu drops a view menu and every grant on it.
func (m *Manager) DeleteViewMenu(ctx context.Context, view string) error {
	return m.pvs.DeleteView(ctx, view)
}

// AddPermissionRole grants pv to role.
func (m *Manager) AddPermissionRole(ctx context.Context, role *domain.Role, pv *domain.PermissionView) error {
	if err := m.roles.AddPermission(ctx, role.ID, pv.ID); err != nil {
		return err
	}
	m.logger.Debug("permission granted", "role", role.Name, "permission", pv.Permission.Name, "view", pv.ViewMenu.Name)
	return nil
}

// DelPermissionRole revokes pv from role.
func (m *Manager) DelPermissionRole(ctx context.Context, role *domain.Role, pv *domain.PermissionView) error {
	if err := m.roles.RemovePermission(ctx, role.ID, pv.ID); err != nil {
		return err
	}
	m.logger.Debug("permission revoked", "role", role.Name, "permission", pv.Permission.Name, "view", pv.ViewMenu.Name)
	return nil
}

func notFoundAs(err error, format string, args ...any) error {
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return domain.ErrNotFound(format, args...)
	}
	return err
}
