// Package ristrettocache implements cache.Cache over
// github.com/dgraph-io/ristretto/v2, an in-process backend suitable for
// single-process embedding and tests that need no external Redis instance.
package ristrettocache

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/forbearing/docdb/cache"
	"github.com/forbearing/docdb/dberrors"
)

// Cache implements cache.Cache over an in-process ristretto.Cache. Parent-key
// listings (ristretto has no native SMEMBERS equivalent) are tracked in a
// small guarded map alongside the value store.
type Cache struct {
	store      *ristretto.Cache[string, []byte]
	defaultTTL time.Duration

	mu       sync.Mutex
	children map[string]map[string]struct{}
}

var _ cache.Cache = (*Cache)(nil)

// New builds a ristretto-backed Cache sized for maxCost bytes of values.
func New(maxCost int64, defaultTTL time.Duration) (*Cache, error) {
	store, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, dberrors.WrapDatabase(err, "failed to construct ristretto cache")
	}
	return &Cache{
		store:      store,
		defaultTTL: defaultTTL,
		children:   make(map[string]map[string]struct{}),
	}, nil
}

func (c *Cache) Load(_ context.Context, key string, _ int, hashKey string) ([]byte, error) {
	lookupKey := key
	if len(hashKey) > 0 {
		lookupKey = hashKey
	}
	val, ok := c.store.Get(lookupKey)
	if !ok {
		return nil, nil
	}
	return val, nil
}

func (c *Cache) Save(_ context.Context, key string, value []byte, parentKey string) error {
	ttl := c.defaultTTL
	if ttl > 0 {
		c.store.SetWithTTL(key, value, int64(len(value)), ttl)
	} else {
		c.store.Set(key, value, int64(len(value)))
	}
	c.store.Wait()
	if len(parentKey) > 0 {
		c.mu.Lock()
		set, ok := c.children[parentKey]
		if !ok {
			set = make(map[string]struct{})
			c.children[parentKey] = set
		}
		set[key] = struct{}{}
		c.mu.Unlock()
	}
	return nil
}

func (c *Cache) List(_ context.Context, parentKey string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.children[parentKey]
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out, nil
}

func (c *Cache) Purge(_ context.Context, key string, parentKey string) error {
	c.store.Del(key)
	if len(parentKey) > 0 {
		c.mu.Lock()
		if set, ok := c.children[parentKey]; ok {
			delete(set, key)
		}
		c.mu.Unlock()
	}
	return nil
}

func (c *Cache) Flush(_ context.Context) error {
	c.store.Clear()
	c.mu.Lock()
	c.children = make(map[string]map[string]struct{})
	c.mu.Unlock()
	return nil
}
