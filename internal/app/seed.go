package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Registers the "sqlite3" driver for the examples file.
	_ "github.com/mattn/go-sqlite3"

	"bi-demo/internal/domain"
)

// ExamplesDatabaseName is the name the examples database is registered
// under.
const ExamplesDatabaseName = "examples"

// ExamplesSchema is the schema example datasets are registered under.
const ExamplesSchema = "main"

// SeedOptions controls demo data creation.
type SeedOptions struct {
	// Password is given to the admin, alpha and gamma users.
	Password string
	// ExamplesPath is the SQLite file the examples database lives in.
	ExamplesPath string
}

var seedUsers = []struct {
	username, first, last, role string
}{
	{"admin", "admin", "user", domain.RoleAdmin},
	{"alpha", "alpha", "user", domain.RoleAlpha},
	{"gamma", "gamma", "user", domain.RoleGamma},
}

// Seed creates the builtin users and the examples database with its
// birth_names dataset. Idempotent: existing rows are left alone.
func (a *App) Seed(ctx context.Context, opts SeedOptions) error {
	for _, su := range seedUsers {
		if err := a.seedUser(ctx, su.username, su.first, su.last, su.role, opts.Password); err != nil {
			return err
		}
	}
	if opts.ExamplesPath == "" {
		return nil
	}
	if err := loadExamples(ctx, opts.ExamplesPath); err != nil {
		return fmt.Errorf("load examples: %w", err)
	}
	return a.registerExamples(ctx, opts.ExamplesPath)
}

func (a *App) seedUser(ctx context.Context, username, first, last, roleName, password string) error {
	sec := a.Services.Security
	_, err := sec.FindUser(ctx, username)
	if err == nil {
		return nil
	}
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		return fmt.Errorf("find user %s: %w", username, err)
	}
	role, err := sec.FindRole(ctx, roleName)
	if err != nil {
		return fmt.Errorf("seed user %s: %w", username, err)
	}
	if _, err := sec.AddUser(ctx, domain.CreateUserRequest{
		Username:  username,
		FirstName: first,
		LastName:  last,
		Email:     username + "@fab.org",
		Password:  password,
		Roles:     []domain.Role{*role},
	}); err != nil {
		return err
	}
	a.logger.Info("seeded user", "username", username, "role", roleName)
	return nil
}

// registerExamples stores the examples database and the birth_names dataset
// and registers the access permissions on them.
func (a *App) registerExamples(ctx context.Context, path string) error {
	sec := a.Services.Security

	database, err := a.Repos.Databases.FindFirst(ctx, map[string]any{"database_name": ExamplesDatabaseName})
	if err != nil {
		return fmt.Errorf("find examples database: %w", err)
	}
	if database == nil {
		database, err = a.Repos.Databases.Save(ctx, &domain.Database{
			DatabaseName:   ExamplesDatabaseName,
			SQLAlchemyURI:  "sqlite:///" + path,
			ExposeInSQLLab: true,
			AllowCTAS:      true,
			AllowCVAS:      true,
			AllowDML:       true,
		})
		if err != nil {
			return fmt.Errorf("save examples database: %w", err)
		}
		a.logger.Info("registered examples database", "id", database.ID, "path", path)
	}
	if _, err := sec.AddPermissionView(ctx, domain.PermDatabaseAccess, database.Perm()); err != nil {
		return err
	}

	dataset, err := a.Repos.Datasets.FindFirst(ctx, map[string]any{
		"table_name":  birthNamesTable,
		"database_id": database.ID,
		"schema":      ExamplesSchema,
	})
	if err != nil {
		return fmt.Errorf("find birth_names dataset: %w", err)
	}
	if dataset == nil {
		dataset, err = a.Repos.Datasets.Save(ctx, &domain.Dataset{
			TableName:   birthNamesTable,
			Schema:      ExamplesSchema,
			DatabaseID:  database.ID,
			MainDttmCol: "ds",
			Description: "Adding a DESCRip",
		})
		if err != nil {
			return fmt.Errorf("save birth_names dataset: %w", err)
		}
	}
	_, err = sec.AddPermissionView(ctx, domain.PermDatasourceAccess, dataset.Perm(database.DatabaseName))
	return err
}

// loadExamples fills the examples SQLite file. The table is only created
// and filled when missing.
func loadExamples(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer db.Close()

	var n int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, birthNamesTable).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `CREATE TABLE birth_names (
		ds TIMESTAMP,
		gender TEXT,
		name TEXT,
		num INTEGER,
		state TEXT,
		num_boys INTEGER,
		num_girls INTEGER
	)`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO birth_names
		(ds, gender, name, num, state, num_boys, num_girls) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, row := range birthNamesRows() {
		if _, err := stmt.ExecContext(ctx, row.ds, row.gender, row.name, row.num, row.state,
			row.numBoys, row.numGirls); err != nil {
			return err
		}
	}
	return tx.Commit()
}
