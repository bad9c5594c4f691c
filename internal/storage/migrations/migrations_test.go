package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exampleMigration = Migration{
	Version:     1,
	Description: "Add example test table",
	Up:          `CREATE TABLE IF NOT EXISTS test_table (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
	Down:        `DROP TABLE IF EXISTS test_table`,
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyAndRollback(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	manager := NewManager(exampleMigration)

	require.NoError(t, manager.Apply(ctx, db))
	v, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = db.Exec("INSERT INTO test_table (id, name) VALUES (1, 'test')")
	require.NoError(t, err)

	// applying again is a no-op
	require.NoError(t, manager.Apply(ctx, db))

	require.NoError(t, manager.Rollback(ctx, db))
	v, err = Version(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, v)

	_, err = db.Exec("INSERT INTO test_table (id, name) VALUES (2, 'test')")
	assert.Error(t, err, "table should have been dropped")

	assert.Error(t, manager.Rollback(ctx, db), "nothing left to roll back")
}

func TestApply_OnlyPending(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	require.NoError(t, NewManager(exampleMigration).Apply(ctx, db))

	second := Migration{Version: 2, Description: "Add column", Up: `ALTER TABLE test_table ADD COLUMN extra TEXT`}
	manager := NewManager(second, exampleMigration)
	require.NoError(t, manager.Apply(ctx, db))

	v, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, manager.Latest())
}

func TestApply_FailureLeavesVersion(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	bad := Migration{Version: 2, Description: "broken", Up: `CREATE TABLE`}
	err := NewManager(exampleMigration, bad).Apply(ctx, db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 2")

	v, err := Version(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestMigrationOrdering(t *testing.T) {
	manager := NewManager(
		Migration{Version: 3, Description: "Third"},
		Migration{Version: 1, Description: "First"},
		Migration{Version: 2, Description: "Second"},
	)
	manager.sortMigrations()

	require.Len(t, manager.migrations, 3)
	for i, m := range manager.migrations {
		assert.Equal(t, i+1, m.Version)
	}
}
