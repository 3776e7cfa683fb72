package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// OpenTestSQLite returns the write and read pools of a freshly migrated
// metastore living in the test's temp dir. Both pools close on cleanup.
func OpenTestSQLite(tb testing.TB) (writeDB, readDB *sql.DB) {
	tb.Helper()

	writeDB, readDB, err := OpenSQLitePair(filepath.Join(tb.TempDir(), "metastore.sqlite"), defaultReadConns)
	require.NoError(tb, err, "open metastore")
	tb.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})

	require.NoError(tb, RunMigrations(writeDB), "migrate metastore")
	return writeDB, readDB
}
