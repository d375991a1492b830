package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prudhvinik1/crmsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKey returns a tuple unique to this run so shared databases stay clean.
func testKey(remoteType string) models.LookupKey {
	return models.LookupKey{
		LocalType:   "user",
		LocalID:     uuid.NewString(),
		Provider:    "hubspot",
		Environment: "production",
		RemoteType:  remoteType,
	}
}

// runKeyLookupContract exercises the behaviour every KeyLookupRepository
// implementation must share.
func runKeyLookupContract(t *testing.T, repo KeyLookupRepository) {
	ctx := context.Background()

	t.Run("find missing returns ErrNotFound", func(t *testing.T) {
		_, err := repo.Find(ctx, testKey("contact"))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("create then find", func(t *testing.T) {
		key := testKey("contact")
		lookup := models.NewLookup(key, "501")

		err := repo.Create(ctx, lookup)
		require.NoError(t, err)
		assert.NotZero(t, lookup.ID)
		assert.False(t, lookup.CreatedAt.IsZero())

		found, err := repo.Find(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "501", found.RemoteID)
		assert.Equal(t, key, found.Key())
	})

	t.Run("create never overwrites", func(t *testing.T) {
		key := testKey("contact")
		require.NoError(t, repo.Create(ctx, models.NewLookup(key, "501")))

		// ACT: a second writer maps the same tuple
		err := repo.Create(ctx, models.NewLookup(key, "999"))

		// ASSERT: duplicate reported, original kept
		assert.ErrorIs(t, err, ErrDuplicateMapping)
		found, err := repo.Find(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "501", found.RemoteID)
	})

	t.Run("upsert repoints", func(t *testing.T) {
		key := testKey("company")
		require.NoError(t, repo.Create(ctx, models.NewLookup(key, "1")))

		lookup := models.NewLookup(key, "2")
		require.NoError(t, repo.Upsert(ctx, lookup))
		assert.Equal(t, "2", lookup.RemoteID)

		found, err := repo.Find(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "2", found.RemoteID)
	})

	t.Run("upsert inserts missing", func(t *testing.T) {
		key := testKey("deal")
		require.NoError(t, repo.Upsert(ctx, models.NewLookup(key, "77")))

		found, err := repo.Find(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "77", found.RemoteID)
	})

	t.Run("list by local is ordered", func(t *testing.T) {
		key := testKey("contact")
		sandbox := key
		sandbox.Environment = "sandbox"
		company := key
		company.RemoteType = "company"

		require.NoError(t, repo.Create(ctx, models.NewLookup(sandbox, "s1")))
		require.NoError(t, repo.Create(ctx, models.NewLookup(key, "p1")))
		require.NoError(t, repo.Create(ctx, models.NewLookup(company, "c1")))

		rows, err := repo.ListByLocal(ctx, key.LocalType, key.LocalID)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "c1", rows[0].RemoteID)
		assert.Equal(t, "p1", rows[1].RemoteID)
		assert.Equal(t, "s1", rows[2].RemoteID)
	})

	t.Run("delete removes row", func(t *testing.T) {
		key := testKey("contact")
		require.NoError(t, repo.Create(ctx, models.NewLookup(key, "5")))

		require.NoError(t, repo.Delete(ctx, key))

		_, err := repo.Find(ctx, key)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, key), ErrNotFound)

		// The tuple can be mapped again after a hard delete
		assert.NoError(t, repo.Create(ctx, models.NewLookup(key, "6")))
	})
}
