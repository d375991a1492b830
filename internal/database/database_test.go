package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/crm", migrateURL("postgres://u:p@localhost:5432/crm"))
	assert.Equal(t, "pgx5://localhost/crm", migrateURL("postgresql://localhost/crm"))
	assert.Equal(t, "pgx5://localhost/crm", migrateURL("pgx5://localhost/crm"))
}

func TestMigrationFilesEmbedded(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lookup.db")

	db, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'external_key_lookup'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "external_key_lookup", name)
}

func TestRollbackPostgres_RejectsZeroSteps(t *testing.T) {
	assert.Error(t, RollbackPostgres("postgres://localhost/crm", 0))
}

func TestPoolSize(t *testing.T) {
	assert.Equal(t, int32(MaxConns), PoolSize(1))
	assert.Equal(t, int32(MaxConns), PoolSize(8))
	assert.Equal(t, int32(34), PoolSize(32))
}
