package db

import (
	"context"
	"fmt"
	"time"

	"stemdesk/config"

	"github.com/go-redis/redis/v8"
)

// ConnectRedis opens and pings the redis backend used for stage leases.
// Returns an error if cfg.RedisHost is empty; callers fall back to the
// in-process lock in that case.
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisHost == "" {
		return nil, fmt.Errorf("redis not configured")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
