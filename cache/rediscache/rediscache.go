// Package rediscache implements cache.Cache over github.com/redis/go-redis/v9,
// the teacher's networked cache backend (config.Redis, provider/redis),
// suitable for sharing one cache across many engine instances/processes.
package rediscache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forbearing/docdb/cache"
	"github.com/forbearing/docdb/dberrors"
)

const childrenSuffix = ":children"

// Cache implements cache.Cache over a single Redis client.
type Cache struct {
	client     *redis.Client
	defaultTTL time.Duration
}

var _ cache.Cache = (*Cache)(nil)

// New wraps an already-constructed *redis.Client. defaultTTL is applied on
// Save when the caller's ttlSeconds is not separately known (Redis requires
// an expiry at write time; Load's ttlSeconds parameter refreshes it).
func New(client *redis.Client, defaultTTL time.Duration) *Cache {
	return &Cache{client: client, defaultTTL: defaultTTL}
}

func (c *Cache) Load(ctx context.Context, key string, ttlSeconds int, hashKey string) ([]byte, error) {
	lookupKey := key
	if len(hashKey) > 0 {
		lookupKey = hashKey
	}
	val, err := c.client.Get(ctx, lookupKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, dberrors.WrapDatabase(err, "redis cache load failed")
	}
	if ttlSeconds > 0 {
		c.client.Expire(ctx, lookupKey, time.Duration(ttlSeconds)*time.Second)
	}
	return val, nil
}

func (c *Cache) Save(ctx context.Context, key string, value []byte, parentKey string) error {
	ttl := c.defaultTTL
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return dberrors.WrapDatabase(err, "redis cache save failed")
	}
	if len(parentKey) > 0 {
		if err := c.client.SAdd(ctx, parentKey+childrenSuffix, key).Err(); err != nil {
			return dberrors.WrapDatabase(err, "redis cache save-parent-link failed")
		}
	}
	return nil
}

func (c *Cache) List(ctx context.Context, parentKey string) ([]string, error) {
	members, err := c.client.SMembers(ctx, parentKey+childrenSuffix).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, dberrors.WrapDatabase(err, "redis cache list failed")
	}
	return members, nil
}

func (c *Cache) Purge(ctx context.Context, key string, parentKey string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(parentKey) > 0 {
		pipe.SRem(ctx, parentKey+childrenSuffix, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return dberrors.WrapDatabase(err, "redis cache purge failed")
	}
	return nil
}

func (c *Cache) Flush(ctx context.Context) error {
	if err := c.client.FlushDB(ctx).Err(); err != nil {
		return dberrors.WrapDatabase(err, "redis cache flush failed")
	}
	return nil
}
