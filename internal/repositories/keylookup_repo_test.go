package repositories

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/crmsync/internal/database"
	"github.com/stretchr/testify/require"
)

func TestPostgresKeyLookupRepository(t *testing.T) {
	pool := getTestPool(t)
	runKeyLookupContract(t, NewPostgresKeyLookupRepository(pool))
}

// getTestPool connects to TEST_DATABASE_URL and applies migrations. Tests
// are skipped when it is unset.
func getTestPool(t *testing.T) *pgxpool.Pool {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	require.NoError(t, database.MigratePostgres(url), "Failed to migrate test database")

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(pool.Close)
	return pool
}
