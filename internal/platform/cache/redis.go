package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// New creates a Redis client and pings it. The client is returned even when
// the ping fails so callers can decide whether redis is optional.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return client, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// AcquireLock takes a best-effort run lock. The returned release func is a
// no-op when the lock was not acquired.
func AcquireLock(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (bool, func(), error) {
	noop := func() {}
	if client == nil {
		return true, noop, nil
	}
	ok, err := client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, noop, fmt.Errorf("platform/cache: lock %s: %w", key, err)
	}
	if !ok {
		return false, noop, nil
	}
	return true, func() {
		_ = client.Del(context.Background(), key).Err()
	}, nil
}
