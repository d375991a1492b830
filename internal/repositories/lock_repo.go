package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockPrefix       = "crmsync:lock:"
	lockPollInterval = 50 * time.Millisecond
	releaseTimeout   = 2 * time.Second
)

// releaseScript deletes the lock only if it still carries our token, so an
// expired-and-retaken lock is never released by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the expiry only while the lock carries our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLockRepository serialises work on one key across processes.
type RedisLockRepository struct {
	client *redis.Client
}

func NewRedisLockRepository(client *redis.Client) *RedisLockRepository {
	return &RedisLockRepository{client: client}
}

func (r *RedisLockRepository) Acquire(ctx context.Context, name string, ttl, wait time.Duration) (Lease, error) {
	key := lockKey(name)
	token := uuid.NewString()

	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
		}
		if ok {
			return &redisLease{client: r.client, name: name, key: key, token: token}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("lock %s: %w", name, ErrLockNotAcquired)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

type redisLease struct {
	client *redis.Client
	name   string
	key    string
	token  string
}

func (l *redisLease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", l.name, err)
	}
	if n == 0 {
		return fmt.Errorf("lock %s: %w", l.name, ErrLockLost)
	}
	return nil
}

func (l *redisLease) Release() {
	// The caller's context may already be cancelled; release regardless.
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	// A failed release is left to the TTL.
	_ = releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// Helper: build Redis key for a lock
func lockKey(name string) string {
	return lockPrefix + name
}
