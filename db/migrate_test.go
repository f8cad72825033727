package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate(t *testing.T) {
	t.Run("creates queue and marker tables", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "prism.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		for _, table := range []string{"schema_migrations", "sync_jobs", "reconcile_markers"} {
			var n int
			require.NoError(t, db.QueryRow(
				"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n))
			assert.Equal(t, 1, n, "table %s should exist", table)
		}

		var marker string
		require.NoError(t, db.QueryRow("SELECT name FROM reconcile_markers").Scan(&marker))
		assert.Equal(t, "reconcile", marker)
	})

	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "prism.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))
		require.NoError(t, Migrate(db, nil), "running migrations multiple times should be safe")

		var versions int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
		assert.Equal(t, 3, versions)
	})

	t.Run("fails on closed database", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "prism.db"), nil)
		require.NoError(t, err)
		db.Close()

		assert.Error(t, Migrate(db, nil))
	})
}

func TestMigrateSource(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "source.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, MigrateSource(db, nil))
	require.NoError(t, MigrateSource(db, nil))

	var types int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM entity_type").Scan(&types))
	assert.Equal(t, 5, types)

	for _, table := range []string{"entity", "entity_entity", "attribute", "attribute_value",
		"attribute_value_collection", "entity_entity_collection", "changeset",
		"attribute_value_change", "entity_entity_change"} {
		var n int
		require.NoError(t, db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n))
		assert.Equal(t, 1, n, "table %s should exist", table)
	}
}
