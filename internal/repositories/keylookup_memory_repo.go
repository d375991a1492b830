package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prudhvinik1/crmsync/internal/models"
)

// MemoryKeyLookupRepository keeps lookups in process. It backs
// LOOKUP_STORE=memory and engine tests.
type MemoryKeyLookupRepository struct {
	mu     sync.RWMutex
	rows   map[models.LookupKey]*models.ExternalKeyLookup
	nextID int64
}

func NewMemoryKeyLookupRepository() *MemoryKeyLookupRepository {
	return &MemoryKeyLookupRepository{rows: make(map[models.LookupKey]*models.ExternalKeyLookup)}
}

func (r *MemoryKeyLookupRepository) Find(ctx context.Context, key models.LookupKey) (*models.ExternalKeyLookup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[key]
	if !ok {
		return nil, ErrNotFound
	}
	c := *row
	return &c, nil
}

func (r *MemoryKeyLookupRepository) Create(ctx context.Context, lookup *models.ExternalKeyLookup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[lookup.Key()]; exists {
		return ErrDuplicateMapping
	}
	r.insert(lookup)
	return nil
}

func (r *MemoryKeyLookupRepository) insert(lookup *models.ExternalKeyLookup) {
	r.nextID++
	now := time.Now().UTC()
	lookup.ID = r.nextID
	lookup.CreatedAt = now
	lookup.UpdatedAt = now
	c := *lookup
	r.rows[lookup.Key()] = &c
}

func (r *MemoryKeyLookupRepository) Upsert(ctx context.Context, lookup *models.ExternalKeyLookup) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if row, exists := r.rows[lookup.Key()]; exists {
		row.RemoteID = lookup.RemoteID
		row.UpdatedAt = time.Now().UTC()
		*lookup = *row
		return nil
	}
	r.insert(lookup)
	return nil
}

func (r *MemoryKeyLookupRepository) ListByLocal(ctx context.Context, localType, localID string) ([]*models.ExternalKeyLookup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.ExternalKeyLookup
	for key, row := range r.rows {
		if key.LocalType == localType && key.LocalID == localID {
			c := *row
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		if out[i].Environment != out[j].Environment {
			return out[i].Environment < out[j].Environment
		}
		return out[i].RemoteType < out[j].RemoteType
	})
	return out, nil
}

func (r *MemoryKeyLookupRepository) Delete(ctx context.Context, key models.LookupKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[key]; !ok {
		return ErrNotFound
	}
	delete(r.rows, key)
	return nil
}

// Len returns the number of stored rows.
func (r *MemoryKeyLookupRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}
