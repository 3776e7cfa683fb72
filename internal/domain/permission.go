package domain

// Permission names.
const (
	PermCanRead             = "can_read"
	PermCanWrite            = "can_write"
	PermDatasourceAccess    = "datasource_access"
	PermDatabaseAccess      = "database_access"
	PermAllDatasourceAccess = "all_datasource_access"
	PermAllDatabaseAccess   = "all_database_access"
	PermCanExecuteSQLQuery  = "can_execute_sql_query"
)

// View menu names.
const (
	ViewChart               = "Chart"
	ViewDashboard           = "Dashboard"
	ViewDataset             = "Dataset"
	ViewDatabase            = "Database"
	ViewSQLLab              = "SQLLab"
	ViewAllDatasourceAccess = "all_datasource_access"
	ViewAllDatabaseAccess   = "all_database_access"
)

// Permission is a named action such as can_read or datasource_access.
type Permission struct {
	ID   int64
	Name string
}

// ViewMenu is a named resource a permission applies to.
type ViewMenu struct {
	ID   int64
	Name string
}

// PermissionView binds a permission to a view menu; roles hold sets of these.
type PermissionView struct {
	ID         int64
	Permission Permission
	ViewMenu   ViewMenu
}

// Matches reports whether the pair names the given permission and view.
func (pv PermissionView) Matches(permission, view string) bool {
	return pv.Permission.Name == permission && pv.ViewMenu.Name == view
}
