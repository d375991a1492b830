package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/prudhvinik1/crmsync/internal/models"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateMapping = errors.New("external key lookup already exists")
	ErrLockNotAcquired  = errors.New("lock not acquired")
	ErrLockLost         = errors.New("lock lost")
)

// KeyLookupRepository persists ExternalKeyLookup rows. The tuple returned by
// ExternalKeyLookup.Key is unique.
type KeyLookupRepository interface {
	Find(ctx context.Context, key models.LookupKey) (*models.ExternalKeyLookup, error)
	// Create inserts a new row and fails with ErrDuplicateMapping if the
	// tuple is already mapped. It never overwrites an existing remote id.
	Create(ctx context.Context, lookup *models.ExternalKeyLookup) error
	// Upsert inserts or repoints a row. Used for operator corrections only.
	Upsert(ctx context.Context, lookup *models.ExternalKeyLookup) error
	ListByLocal(ctx context.Context, localType, localID string) ([]*models.ExternalKeyLookup, error)
	Delete(ctx context.Context, key models.LookupKey) error
}

// LockRepository provides named mutual exclusion with expiry.
type LockRepository interface {
	// Acquire blocks until the lock is held, ctx is done or wait elapses.
	Acquire(ctx context.Context, name string, ttl, wait time.Duration) (Lease, error)
}

// Lease is a held lock. It expires unless extended.
type Lease interface {
	// Extend resets the expiry to ttl from now. It returns ErrLockLost when
	// the lock has expired or is held by someone else.
	Extend(ctx context.Context, ttl time.Duration) error
	Release()
}

type SyncStatusRepository interface {
	SetStatus(ctx context.Context, status *models.SyncStatus) error
	GetStatuses(ctx context.Context, localType, localID string) ([]models.SyncStatus, error)
}
