package domain

import "context"

// UserRepository provides CRUD operations for users and their role bindings.
type UserRepository interface {
	Create(ctx context.Context, u *User) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Delete(ctx context.Context, id int64) error
	SetRoles(ctx context.Context, userID int64, roleIDs []int64) error
}

// RoleRepository provides CRUD operations for roles and their permission sets.
type RoleRepository interface {
	Create(ctx context.Context, name string) (*Role, error)
	GetByID(ctx context.Context, id int64) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	Delete(ctx context.Context, id int64) error
	AddPermission(ctx context.Context, roleID, permissionViewID int64) error
	RemovePermission(ctx context.Context, roleID, permissionViewID int64) error
	SetPermissions(ctx context.Context, roleID int64, permissionViewIDs []int64) error
}

// PermissionViewRepository manages permissions, view menus and their pairs.
type PermissionViewRepository interface {
	Find(ctx context.Context, permission, view string) (*PermissionView, error)
	Ensure(ctx context.Context, permission, view string) (*PermissionView, error)
	ListByPermission(ctx context.Context, permission string) ([]PermissionView, error)
	DeleteView(ctx context.Context, view string) error
}

// DatabaseRepository provides operations for registered databases.
type DatabaseRepository interface {
	FixtureStore[Database]
	GetByID(ctx context.Context, id int64) (*Database, error)
	GetByName(ctx context.Context, name string) (*Database, error)
	GetByUUID(ctx context.Context, uuid string) (*Database, error)
	List(ctx context.Context, q ListQuery) ([]Database, int64, error)
	Delete(ctx context.Context, ids ...int64) error
}

// DatasetRepository provides operations for datasets.
type DatasetRepository interface {
	FixtureStore[Dataset]
	GetByID(ctx context.Context, id int64) (*Dataset, error)
	GetByUUID(ctx context.Context, uuid string) (*Dataset, error)
	List(ctx context.Context, q ListQuery) ([]Dataset, int64, error)
	Delete(ctx context.Context, ids ...int64) error
}

// ChartRepository provides operations for charts, their owners and dashboards.
type ChartRepository interface {
	Create(ctx context.Context, c *Chart) (*Chart, error)
	Update(ctx context.Context, c *Chart) (*Chart, error)
	GetByID(ctx context.Context, id int64) (*Chart, error)
	GetByUUID(ctx context.Context, uuid string) (*Chart, error)
	GetByName(ctx context.Context, name string) (*Chart, error)
	List(ctx context.Context, q ListQuery, datasourceIDs []int64) ([]Chart, int64, error)
	Delete(ctx context.Context, ids ...int64) error
}

// DashboardRepository provides operations for dashboards.
type DashboardRepository interface {
	Create(ctx context.Context, d *Dashboard) (*Dashboard, error)
	Update(ctx context.Context, d *Dashboard) (*Dashboard, error)
	GetByID(ctx context.Context, id int64) (*Dashboard, error)
	GetByUUID(ctx context.Context, uuid string) (*Dashboard, error)
	GetBySlug(ctx context.Context, slug string) (*Dashboard, error)
	List(ctx context.Context, q ListQuery) ([]Dashboard, int64, error)
	Delete(ctx context.Context, ids ...int64) error
}

// QueryRepository stores SQL Lab execution records.
type QueryRepository interface {
	Create(ctx context.Context, q *Query) (*Query, error)
	Finish(ctx context.Context, q *Query) error
	GetByClientID(ctx context.Context, clientID string) (*Query, error)
}

// FixtureStore is the lookup-or-save surface get-or-create works against.
// FindFirst returns (nil, nil) when no row matches the criteria.
type FixtureStore[T any] interface {
	FindFirst(ctx context.Context, criteria map[string]any) (*T, error)
	Save(ctx context.Context, obj *T) (*T, error)
}
