package domain

import "time"

// Builtin role names.
const (
	RoleAdmin  = "Admin"
	RoleAlpha  = "Alpha"
	RoleGamma  = "Gamma"
	RoleSQLLab = "sql_lab"
	RolePublic = "Public"
)

// User is an authenticated identity. Roles carry the permission set.
type User struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	Email        string
	Active       bool
	PasswordHash string
	Roles        []Role
	CreatedAt    time.Time
}

// HasRole reports whether the user holds a role with the given name.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// RoleIDs returns the IDs of the user's roles.
func (u *User) RoleIDs() []int64 {
	ids := make([]int64, 0, len(u.Roles))
	for _, r := range u.Roles {
		ids = append(ids, r.ID)
	}
	return ids
}

// Role is a named set of permission views.
type Role struct {
	ID          int64
	Name        string
	Permissions []PermissionView
}

// CreateUserRequest holds parameters for creating a new user.
type CreateUserRequest struct {
	Username  string
	FirstName string
	LastName  string
	Email     string
	Password  string
	Roles     []Role
}

// Validate checks that the request is well-formed.
func (r *CreateUserRequest) Validate() error {
	if r.Username == "" {
		return ErrValidation("username is required")
	}
	if r.Email == "" {
		return ErrValidation("email is required")
	}
	return nil
}
