package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prudhvinik1/crmsync/internal/models"
)

// SQLiteKeyLookupRepository stores lookups in a local SQLite file. It backs
// single-node deployments and the CLI.
type SQLiteKeyLookupRepository struct {
	db *sql.DB
}

func NewSQLiteKeyLookupRepository(db *sql.DB) *SQLiteKeyLookupRepository {
	return &SQLiteKeyLookupRepository{db: db}
}

const sqliteLookupColumns = `id, local_type, local_id, provider, environment, remote_type, remote_id, created_at, updated_at`

func (r *SQLiteKeyLookupRepository) Find(ctx context.Context, key models.LookupKey) (*models.ExternalKeyLookup, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sqliteLookupColumns+`
		FROM external_key_lookup
		WHERE local_type = ? AND local_id = ? AND provider = ? AND environment = ? AND remote_type = ?
	`, key.LocalType, key.LocalID, key.Provider, key.Environment, key.RemoteType)

	lookup, err := scanSQLiteLookup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find key lookup: %w", err)
	}
	return lookup, nil
}

func (r *SQLiteKeyLookupRepository) Create(ctx context.Context, lookup *models.ExternalKeyLookup) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO external_key_lookup (local_type, local_id, provider, environment, remote_type, remote_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (local_type, local_id, provider, environment, remote_type) DO NOTHING
	`, lookup.LocalType, lookup.LocalID, lookup.Provider, lookup.Environment, lookup.RemoteType, lookup.RemoteID)
	if err != nil {
		return fmt.Errorf("failed to create key lookup: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create key lookup: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrDuplicateMapping
	}

	return r.refresh(ctx, lookup)
}

func (r *SQLiteKeyLookupRepository) Upsert(ctx context.Context, lookup *models.ExternalKeyLookup) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO external_key_lookup (local_type, local_id, provider, environment, remote_type, remote_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (local_type, local_id, provider, environment, remote_type)
		DO UPDATE SET remote_id = excluded.remote_id, updated_at = CURRENT_TIMESTAMP
	`, lookup.LocalType, lookup.LocalID, lookup.Provider, lookup.Environment, lookup.RemoteType, lookup.RemoteID)
	if err != nil {
		return fmt.Errorf("failed to upsert key lookup: %w", err)
	}

	return r.refresh(ctx, lookup)
}

func (r *SQLiteKeyLookupRepository) ListByLocal(ctx context.Context, localType, localID string) ([]*models.ExternalKeyLookup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sqliteLookupColumns+`
		FROM external_key_lookup
		WHERE local_type = ? AND local_id = ?
		ORDER BY provider ASC, environment ASC, remote_type ASC
	`, localType, localID)
	if err != nil {
		return nil, fmt.Errorf("failed to query key lookups: %w", err)
	}
	defer rows.Close()

	var lookups []*models.ExternalKeyLookup
	for rows.Next() {
		lookup, err := scanSQLiteLookup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key lookup: %w", err)
		}
		lookups = append(lookups, lookup)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key lookups: %w", err)
	}
	return lookups, nil
}

func (r *SQLiteKeyLookupRepository) Delete(ctx context.Context, key models.LookupKey) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM external_key_lookup
		WHERE local_type = ? AND local_id = ? AND provider = ? AND environment = ? AND remote_type = ?
	`, key.LocalType, key.LocalID, key.Provider, key.Environment, key.RemoteType)
	if err != nil {
		return fmt.Errorf("failed to delete key lookup: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete key lookup: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// refresh reloads generated columns into lookup.
func (r *SQLiteKeyLookupRepository) refresh(ctx context.Context, lookup *models.ExternalKeyLookup) error {
	stored, err := r.Find(ctx, lookup.Key())
	if err != nil {
		return err
	}
	*lookup = *stored
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLookup(row rowScanner) (*models.ExternalKeyLookup, error) {
	var lookup models.ExternalKeyLookup
	err := row.Scan(
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
		return nil, err
	}
	return &lookup, nil
}
