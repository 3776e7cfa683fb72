package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bi-demo/internal/domain"
	"bi-demo/internal/eid"
	"bi-demo/internal/service/security"
)

// PermissionGrant is a permission view to hand to a temporary user: either
// Resolved, already looked up, or Unresolved, a (permission, view) name
// pair looked up before use.
type PermissionGrant interface {
	resolve(ctx context.Context, sec *security.Manager) (*domain.PermissionView, error)
}

// Resolved wraps a permission view that is already loaded.
type Resolved struct {
	PermissionView *domain.PermissionView
}

func (r Resolved) resolve(context.Context, *security.Manager) (*domain.PermissionView, error) {
	if r.PermissionView == nil {
		return nil, errors.New("resolved permission grant without a permission view")
	}
	return r.PermissionView, nil
}

// Unresolved names a permission view by its permission and view menu.
type Unresolved struct {
	Permission string
	ViewMenu   string
}

func (u Unresolved) resolve(ctx context.Context, sec *security.Manager) (*domain.PermissionView, error) {
	pv, err := sec.FindPermissionView(ctx, u.Permission, u.ViewMenu)
	if err != nil {
		return nil, fmt.Errorf("resolve permission (%s, %s): %w", u.Permission, u.ViewMenu, err)
	}
	return pv, nil
}

// ResolvePermission turns a grant into a stored permission view.
func (h *Harness) ResolvePermission(g PermissionGrant) (*domain.PermissionView, error) {
	return g.resolve(h.ctx, h.App.Services.Security)
}

// TemporaryUserOptions describe a user that lives for one scope.
type TemporaryUserOptions struct {
	// CloneUser donates roles, names and the password hash.
	CloneUser *domain.User
	// Username defaults to temp_user_<id>.
	Username         string
	ExtraRoles       []domain.Role
	ExtraPermissions []PermissionGrant
	// Login starts a session as the user. Otherwise the user becomes the
	// acting identity of Context.
	Login bool
}

// AcquireTemporaryUser creates a user and attaches it. The returned release
// func removes the role created for ExtraPermissions, ends the session,
// deletes the user and restores the previous identity. Release is
// idempotent and is also registered with t.Cleanup.
func (h *Harness) AcquireTemporaryUser(opts TemporaryUserOptions) (*domain.User, func()) {
	h.t.Helper()
	ctx := h.ctx
	sec := h.App.Services.Security

	username := opts.Username
	if username == "" {
		username = eid.Prefixed("temp_user")
	}
	u := &domain.User{
		Username: username,
		Email:    username + "@temp.com",
		Active:   true,
	}
	if clone := opts.CloneUser; clone != nil {
		u.Roles = append([]domain.Role{}, clone.Roles...)
		u.FirstName = clone.FirstName
		u.LastName = clone.LastName
		u.PasswordHash = clone.PasswordHash
	} else {
		u.FirstName, u.LastName = username, username
		hash, err := sec.HashPassword(DefaultPassword)
		h.req.NoError(err)
		u.PasswordHash = hash
	}
	u.Roles = append(u.Roles, opts.ExtraRoles...)

	var tempRole *domain.Role
	if len(opts.ExtraPermissions) > 0 {
		pvs := make([]*domain.PermissionView, 0, len(opts.ExtraPermissions))
		for _, g := range opts.ExtraPermissions {
			pv, err := g.resolve(ctx, sec)
			h.req.NoError(err)
			pvs = append(pvs, pv)
		}
		role, err := sec.AddRole(ctx, eid.Prefixed("tmp_role"))
		h.req.NoError(err)
		tempRole = role
		for _, pv := range pvs {
			h.req.NoError(sec.AddPermissionRole(ctx, tempRole, pv))
		}
		tempRole, err = sec.FindRole(ctx, tempRole.Name)
		h.req.NoError(err)
		u.Roles = append(u.Roles, *tempRole)
	}

	created, err := sec.CreateUser(ctx, u)
	if err != nil && tempRole != nil {
		_ = sec.DeleteRole(ctx, tempRole.ID)
	}
	h.req.NoError(err)

	previous := h.identity
	if opts.Login {
		h.Login(created.Username)
	} else {
		h.AttachIdentity(created)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if tempRole != nil {
				if err := sec.DeleteRole(ctx, tempRole.ID); err != nil {
					h.t.Errorf("delete temporary role %s: %v", tempRole.Name, err)
				}
			}
			if opts.Login && h.loggedIn == created.Username {
				h.Logout()
			}
			if err := sec.DeleteUser(ctx, created.ID); err != nil {
				h.t.Errorf("delete temporary user %s: %v", created.Username, err)
			}
			h.AttachIdentity(previous)
		})
	}
	h.t.Cleanup(release)
	return created, release
}

// WithTemporaryUser runs fn with a temporary user and releases it when fn
// returns, panics or fails the test.
func (h *Harness) WithTemporaryUser(opts TemporaryUserOptions, fn func(u *domain.User)) {
	h.t.Helper()
	u, release := h.AcquireTemporaryUser(opts)
	defer release()
	fn(u)
}

// CreateUserWithRoles makes sure username exists and holds exactly the named
// roles. New users start as Gamma with the default password. With
// createRoles each role is (re)created as a copy of Gamma without data
// permissions.
func (h *Harness) CreateUserWithRoles(username string, roles []string, createRoles bool) *domain.User {
	h.t.Helper()
	ctx := h.ctx
	sec := h.App.Services.Security

	u := h.GetUser(username)
	if u == nil {
		u = h.CreateUser(username, DefaultPassword, domain.RoleGamma,
			WithNames(username, username), WithEmail(username+"@bi.test"))
	}

	assigned := make([]domain.Role, 0, len(roles))
	for _, name := range roles {
		if createRoles {
			role, err := sec.CopyRole(ctx, domain.RoleGamma, name, false)
			h.req.NoError(err)
			for i := range role.Permissions {
				if security.DataPermissions[role.Permissions[i].Permission.Name] {
					h.req.NoError(sec.DelPermissionRole(ctx, role, &role.Permissions[i]))
				}
			}
		}
		role, err := sec.FindRole(ctx, name)
		h.req.NoError(err)
		assigned = append(assigned, *role)
	}
	h.req.NoError(sec.SetUserRoles(ctx, u.ID, assigned))
	return h.GetUser(username)
}

type userOptions struct {
	first, last, email string
}

// UserOption adjusts CreateUser.
type UserOption func(*userOptions)

// WithNames sets the first and last name.
func WithNames(first, last string) UserOption {
	return func(o *userOptions) { o.first, o.last = first, last }
}

// WithEmail sets the email address.
func WithEmail(email string) UserOption {
	return func(o *userOptions) { o.email = email }
}

// CreateUser adds a user with one role. Names default to "admin user" and
// the email to admin@fab.org.
func (h *Harness) CreateUser(username, password, roleName string, opts ...UserOption) *domain.User {
	h.t.Helper()
	o := userOptions{first: "admin", last: "user", email: "admin@fab.org"}
	for _, opt := range opts {
		opt(&o)
	}
	sec := h.App.Services.Security
	role, err := sec.FindRole(h.ctx, roleName)
	h.req.NoError(err)
	u, err := sec.AddUser(h.ctx, domain.CreateUserRequest{
		Username:  username,
		FirstName: o.first,
		LastName:  o.last,
		Email:     o.email,
		Password:  password,
		Roles:     []domain.Role{*role},
	})
	h.req.NoError(err)
	return u
}

// GetUser returns the user or nil when there is none.
func (h *Harness) GetUser(username string) *domain.User {
	h.t.Helper()
	u, err := h.App.Services.Security.FindUser(h.ctx, username)
	if isNotFound(err) {
		return nil
	}
	h.req.NoError(err)
	return u
}

// GetRole returns the role or nil when there is none.
func (h *Harness) GetRole(name string) *domain.Role {
	h.t.Helper()
	r, err := h.App.Services.Security.FindRole(h.ctx, name)
	if isNotFound(err) {
		return nil
	}
	h.req.NoError(err)
	return r
}

func isNotFound(err error) bool {
	var nf *domain.NotFoundError
	return errors.As(err, &nf)
}
