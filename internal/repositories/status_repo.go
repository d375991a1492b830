package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/prudhvinik1/crmsync/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	statusKeyPrefix = "crmsync:status:"
	statusTTL       = 7 * 24 * time.Hour
)

// RedisSyncStatusRepository keeps the last sync outcome per local record as
// a Redis hash keyed by provider/environment/remote type. Entries expire if
// the record is not synced again within statusTTL.
type RedisSyncStatusRepository struct {
	client *redis.Client
}

func NewRedisSyncStatusRepository(client *redis.Client) *RedisSyncStatusRepository {
	return &RedisSyncStatusRepository{client: client}
}

func (r *RedisSyncStatusRepository) SetStatus(ctx context.Context, status *models.SyncStatus) error {
	if status.SyncedAt.IsZero() {
		status.SyncedAt = time.Now().UTC()
	}

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal sync status: %w", err)
	}

	key := statusKey(status.LocalType, status.LocalID)
	field := statusField(status.Provider, status.Environment, status.RemoteType)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, field, data)
	pipe.Expire(ctx, key, statusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set sync status: %w", err)
	}

	return nil
}

// GetStatuses returns all statuses for a record sorted by field. A record
// that was never synced yields an empty slice.
func (r *RedisSyncStatusRepository) GetStatuses(ctx context.Context, localType, localID string) ([]models.SyncStatus, error) {
	results, err := r.client.HGetAll(ctx, statusKey(localType, localID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get sync status: %w", err)
	}

	fields := make([]string, 0, len(results))
	for field := range results {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	statuses := make([]models.SyncStatus, 0, len(fields))
	for _, field := range fields {
		var status models.SyncStatus
		if err := json.Unmarshal([]byte(results[field]), &status); err != nil {
			// Skip entries written by an incompatible version
			continue
		}
		statuses = append(statuses, status)
	}

	return statuses, nil
}

// Helper: build Redis key for a record's statuses
func statusKey(localType, localID string) string {
	return statusKeyPrefix + localType + ":" + localID
}

func statusField(provider, environment, remoteType string) string {
	return provider + "/" + environment + "/" + remoteType
}
