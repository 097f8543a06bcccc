// Package rediscache backs two of spec.md's persistence concerns that
// are naturally TTL-driven rather than durable: the banned-prompt
// counters (spec.md §8 scenario 6) and an account snapshot cache,
// invalidated whenever an account record changes. The Selector and the
// HTTP surface do not read this cache.
package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mjproxy/core/internal/model"
)

const (
	banCounterTTL   = 24 * time.Hour
	accountCacheTTL = 5 * time.Minute
	keyPrefix       = "mjproxy"
)

// Cache wraps a redis client with the key conventions this proxy uses.
type Cache struct {
	client *redis.Client
	prefix string
}

// New builds a Cache from redis connection options (spec.md §6
// wiring: same go-redis client construction pattern the gateway
// manager uses for its session cache).
func New(opts *redis.Options, prefix string) *Cache {
	if prefix == "" {
		prefix = keyPrefix
	}
	return &Cache{client: redis.NewClient(opts), prefix: prefix}
}

func (c *Cache) banKey(kind, scope string) string {
	return fmt.Sprintf("%s:banned:%s:%s:%s", c.prefix, time.Now().Format("20060102"), kind, scope)
}

// Increment bumps both the per-user and per-ip banned-prompt counters,
// each expiring after one day (spec.md §8 scenario 6).
func (c *Cache) Increment(ctx context.Context, userID, clientIP string) error {
	pipe := c.client.TxPipeline()
	userKey := c.banKey("user", userID)
	ipKey := c.banKey("ip", clientIP)
	pipe.Incr(ctx, userKey)
	pipe.Expire(ctx, userKey, banCounterTTL)
	pipe.Incr(ctx, ipKey)
	pipe.Expire(ctx, ipKey, banCounterTTL)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("rediscache: increment ban counters: %w", err)
	}
	return nil
}

// Count reads today's banned-prompt counters for a user and an IP.
func (c *Cache) Count(ctx context.Context, userID, clientIP string) (userCount, ipCount int64, err error) {
	userCount, err = c.client.Get(ctx, c.banKey("user", userID)).Int64()
	if err != nil && err != redis.Nil {
		return 0, 0, err
	}
	ipCount, err = c.client.Get(ctx, c.banKey("ip", clientIP)).Int64()
	if err != nil && err != redis.Nil {
		return userCount, 0, err
	}
	return userCount, ipCount, nil
}

func (c *Cache) accountKey(id string) string {
	return fmt.Sprintf("%s:account:%s", c.prefix, id)
}

// PutAccountSnapshot caches a point-in-time account snapshot for
// accountCacheTTL. No other package in this module calls it.
func (c *Cache) PutAccountSnapshot(ctx context.Context, acc *model.Account) error {
	data, err := msgpack.Marshal(acc)
	if err != nil {
		return fmt.Errorf("rediscache: marshal account %s: %w", acc.ID, err)
	}
	if err := c.client.Set(ctx, c.accountKey(acc.ID), data, accountCacheTTL).Err(); err != nil {
		return fmt.Errorf("rediscache: cache account %s: %w", acc.ID, err)
	}
	return nil
}

// GetAccountSnapshot reads back a cached account snapshot. Returns
// (nil, nil) on a cache miss — callers fall through to the store.
func (c *Cache) GetAccountSnapshot(ctx context.Context, id string) (*model.Account, error) {
	data, err := c.client.Get(ctx, c.accountKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rediscache: read account %s: %w", id, err)
	}
	var acc model.Account
	if err := msgpack.Unmarshal(data, &acc); err != nil {
		return nil, fmt.Errorf("rediscache: decode account %s: %w", id, err)
	}
	return &acc, nil
}

// InvalidateAccount drops a cached snapshot, used whenever the account
// runtime mutates the underlying record (spec.md §6 "last-writer-wins
// update with explicit field masks for hot fields").
func (c *Cache) InvalidateAccount(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.accountKey(id)).Err(); err != nil {
		return fmt.Errorf("rediscache: invalidate account %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
