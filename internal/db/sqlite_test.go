package db

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		mode     string
		txlock   bool
		wantHead string
	}{
		{"write pool", "/tmp/meta.sqlite", ModeWrite, true, "/tmp/meta.sqlite?"},
		{"read pool", "/tmp/meta.sqlite", ModeRead, false, "/tmp/meta.sqlite?"},
		{"path with query", "file:meta.sqlite?cache=shared", ModeRead, false, "file:meta.sqlite?cache=shared&"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dsn := buildDSN(tc.path, tc.mode)
			assert.True(t, strings.HasPrefix(dsn, tc.wantHead), dsn)
			for _, p := range []string{"_journal_mode=WAL", "_busy_timeout=5000", "_foreign_keys=on"} {
				assert.Contains(t, dsn, p)
			}
			if tc.txlock {
				assert.Contains(t, dsn, "_txlock=immediate")
			} else {
				assert.NotContains(t, dsn, "_txlock")
			}
		})
	}
}

func TestOpenSQLite_RejectsUnknownMode(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "meta.sqlite"), "append", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")
}

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	_, _, err := OpenSQLitePair("/nonexistent/dir/meta.sqlite", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping sqlite")
}

func TestOpenSQLitePair_PoolsAndPragmas(t *testing.T) {
	writeDB, readDB, err := OpenSQLitePair(filepath.Join(t.TempDir(), "meta.sqlite"), 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})

	assert.Equal(t, 1, writeDB.Stats().MaxOpenConnections)
	assert.Equal(t, defaultReadConns, readDB.Stats().MaxOpenConnections)

	var journal string
	require.NoError(t, readDB.QueryRow("PRAGMA journal_mode").Scan(&journal))
	assert.Equal(t, "wal", strings.ToLower(journal))

	var fk int
	require.NoError(t, writeDB.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestOpenTestSQLite_Migrated(t *testing.T) {
	writeDB, readDB := OpenTestSQLite(t)

	v, err := MigrationVersion(writeDB)
	require.NoError(t, err)
	assert.Positive(t, v)

	for _, table := range []string{"ab_user", "ab_role", "dbs", "tables", "slices", "dashboards", "query"} {
		var n int
		err := readDB.QueryRow("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s", table)
	}

	// Migrating again is a no-op.
	require.NoError(t, RunMigrations(writeDB))
	again, err := MigrationVersion(writeDB)
	require.NoError(t, err)
	assert.Equal(t, v, again)
}

func TestOpenTestSQLite_ConcurrentWritersAndReaders(t *testing.T) {
	writeDB, readDB := OpenTestSQLite(t)

	_, err := writeDB.Exec(`INSERT INTO ab_role (name) VALUES ('counter')`)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = writeDB.Exec(`UPDATE ab_role SET name = name WHERE name = 'counter'`)
		}(i)
		go func(idx int) {
			defer wg.Done()
			var n int
			errs[20+idx] = readDB.QueryRow(`SELECT count(*) FROM ab_role`).Scan(&n)
		}(i)
	}
	wg.Wait()

	for i, e := range errs {
		assert.NoError(t, e, "worker %d", i)
	}
}
