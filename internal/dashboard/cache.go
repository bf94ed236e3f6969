package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-wms/internal/inventory"
)

const (
	cacheVersionKey = "dashboard:version"
	bumpChannel     = "stock.bump"
)

// Cache wraps Redis based caching with versioning controls. Bumping the
// version orphans every key built before it. While ListenForInvalidation is
// subscribed the instance serves the version from memory and follows bumps
// published by any instance.
type Cache struct {
	client    *redis.Client
	ttl       time.Duration
	local     atomic.Int64
	listening atomic.Bool
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	if c.listening.Load() {
		if ver := c.local.Load(); ver > 0 {
			return ver, nil
		}
	}
	ver, err := c.fetchVersion(ctx)
	if err != nil {
		return 0, err
	}
	c.observe(ver)
	return ver, nil
}

func (c *Cache) fetchVersion(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchJSON loads a cached value into dest or populates it using the
// loader. hit reports whether redis served the value.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) (bool, error) {
	if loader == nil {
		return false, errors.New("dashboard cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return true, json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return false, err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return false, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return false, err
		}
	}
	return false, json.Unmarshal(raw, dest)
}

// Bump invalidates the cache by incrementing the global version and publishing an event.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	c.observe(ver)
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// StockChanged bumps the version after a committed ledger change.
func (c *Cache) StockChanged(ctx context.Context, evt inventory.StockChangedEvent) error {
	if len(evt.Keys) == 0 {
		return nil
	}
	return c.Bump(ctx)
}

// observe raises the local version to ver. Versions only move forward.
func (c *Cache) observe(ver int64) {
	for {
		cur := c.local.Load()
		if ver <= cur || c.local.CompareAndSwap(cur, ver) {
			return
		}
	}
}

// ListenForInvalidation subscribes to version bump notifications published
// by every instance until ctx is done. The local version is seeded from
// redis once subscribed so no bump between the two is missed.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	ver, err := c.fetchVersion(ctx)
	if err != nil {
		_ = pubsub.Close()
		return err
	}
	c.observe(ver)
	c.listening.Store(true)
	go func() {
		defer func() {
			c.listening.Store(false)
			_ = pubsub.Close()
		}()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				c.observe(ver)
			}
		}
	}()
	return nil
}
