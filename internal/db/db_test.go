package db_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/cartsync/internal/db"
)

func TestMigrate_AppliesAllOnce(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, pending, err := database.MigrationStatus()
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	applied, err := database.MigrateWithInfo()
	require.NoError(t, err)
	assert.Equal(t, pending, applied)

	again, err := database.MigrateWithInfo()
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, database.RequiresMigrationError())

	for _, table := range []string{"kv_store", "event_log", "products", "categories", "user_cart_items", "user_wishlist_items"} {
		var n int
		require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name = ?`, table).Scan(&n))
		assert.Equal(t, 1, n, "table %s", table)
	}
}

func TestRequiresMigrationError(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = database.Exec(`
		CREATE TABLE schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		)
	`)
	require.NoError(t, err)
	_, err = database.Exec(`INSERT INTO schema_migrations (version) VALUES ('000001_local_store.sql')`)
	require.NoError(t, err)

	migErr := database.RequiresMigrationError()
	require.Error(t, migErr)
	assert.Contains(t, migErr.Error(), dbPath)
	assert.Contains(t, migErr.Error(), "000001_local_store.sql")
	assert.Contains(t, migErr.Error(), "pending migration")
}
