package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/crmsync/internal/models"
)

type PostgresKeyLookupRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresKeyLookupRepository(pool *pgxpool.Pool) *PostgresKeyLookupRepository {
	return &PostgresKeyLookupRepository{pool: pool}
}

func (r *PostgresKeyLookupRepository) Find(ctx context.Context, key models.LookupKey) (*models.ExternalKeyLookup, error) {
	query := `SELECT id, local_type, local_id, provider, environment, remote_type, remote_id, created_at, updated_at
	          FROM external_key_lookup
	          WHERE local_type = $1 AND local_id = $2 AND provider = $3 AND environment = $4 AND remote_type = $5`

	var lookup models.ExternalKeyLookup
	err := r.pool.QueryRow(ctx, query,
		key.LocalType,
		key.LocalID,
		key.Provider,
		key.Environment,
		key.RemoteType,
	).Scan(
		&lookup.ID,
		&lookup.LocalType,
		&lookup.LocalID,
		&lookup.Provider,
		&lookup.Environment,
		&lookup.RemoteType,
		&lookup.RemoteID,
		&lookup.CreatedAt,
		&lookup.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find key lookup: %w", err)
	}
	return &lookup, nil
}

// Create inserts a row. ON CONFLICT DO NOTHING returns no row when the tuple
// is taken, which maps to ErrDuplicateMapping.
func (r *PostgresKeyLookupRepository) Create(ctx context.Context, lookup *models.ExternalKeyLookup) error {
	query := `INSERT INTO external_key_lookup (local_type, local_id, provider, environment, remote_type, remote_id)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (local_type, local_id, provider, environment, remote_type) DO NOTHING
	          RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		lookup.LocalType,
		lookup.LocalID,
		lookup.Provider,
		lookup.Environment,
		lookup.RemoteType,
		lookup.RemoteID,
	).Scan(&lookup.ID, &lookup.CreatedAt, &lookup.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateMapping
	}
	if err != nil {
		return fmt.Errorf("failed to create key lookup: %w", err)
	}
	return nil
}

func (r *PostgresKeyLookupRepository) Upsert(ctx context.Context, lookup *models.ExternalKeyLookup) error {
	query := `INSERT INTO external_key_lookup (local_type, local_id, provider, environment, remote_type, remote_id)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (local_type, local_id, provider, environment, remote_type)
	          DO UPDATE SET remote_id = EXCLUDED.remote_id, updated_at = NOW()
	          RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		lookup.LocalType,
		lookup.LocalID,
		lookup.Provider,
		lookup.Environment,
		lookup.RemoteType,
		lookup.RemoteID,
	).Scan(&lookup.ID, &lookup.CreatedAt, &lookup.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert key lookup: %w", err)
	}
	return nil
}

func (r *PostgresKeyLookupRepository) ListByLocal(ctx context.Context, localType, localID string) ([]*models.ExternalKeyLookup, error) {
	query := `SELECT id, local_type, local_id, provider, environment, remote_type, remote_id, created_at, updated_at
	          FROM external_key_lookup
	          WHERE local_type = $1 AND local_id = $2
	          ORDER BY provider ASC, environment ASC, remote_type ASC`

	rows, err := r.pool.Query(ctx, query, localType, localID)
	if err != nil {
		return nil, fmt.Errorf("failed to query key lookups: %w", err)
	}
	defer rows.Close()

	var lookups []*models.ExternalKeyLookup
	for rows.Next() {
		var lookup models.ExternalKeyLookup
		err := rows.Scan(
			&lookup.ID,
			&lookup.LocalType,
			&lookup.LocalID,
			&lookup.Provider,
			&lookup.Environment,
			&lookup.RemoteType,
			&lookup.RemoteID,
			&lookup.CreatedAt,
			&lookup.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key lookup: %w", err)
		}
		lookups = append(lookups, &lookup)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key lookups: %w", err)
	}

	return lookups, nil
}

func (r *PostgresKeyLookupRepository) Delete(ctx context.Context, key models.LookupKey) error {
	query := `DELETE FROM external_key_lookup
	          WHERE local_type = $1 AND local_id = $2 AND provider = $3 AND environment = $4 AND remote_type = $5`

	result, err := r.pool.Exec(ctx, query,
		key.LocalType,
		key.LocalID,
		key.Provider,
		key.Environment,
		key.RemoteType,
	)
	if err != nil {
		return fmt.Errorf("failed to delete key lookup: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
