package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-wms/internal/platform/cache"
)

// Locker guards a job so only one worker runs it at a time.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, func(), error)
}

// RedisLocker takes run locks in redis. A nil client always grants the lock.
type RedisLocker struct {
	Client *redis.Client
}

// Acquire implements Locker.
func (l RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, func(), error) {
	return cache.AcquireLock(ctx, l.Client, key, ttl)
}

func lockKey(task string) string {
	return "jobs:lock:" + task
}
