package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisClientName identifies crmsync connections in CLIENT LIST.
const RedisClientName = "crmsync"

// NewRedisClient connects the client used for tuple locks and sync status.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing redis URL: %w", err)
	}
	if opts.ClientName == "" {
		opts.ClientName = RedisClientName
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error pinging redis: %w", err)
	}

	return client, nil
}
