package cache

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Coalescing wraps a Cache and collapses concurrent Load calls for the same
// key into a single underlying round trip, per the domain stack's
// cache-miss coalescing requirement.
type Coalescing struct {
	Cache
	group singleflight.Group
}

// NewCoalescing wraps backend with singleflight-based Load deduplication.
func NewCoalescing(backend Cache) *Coalescing {
	return &Coalescing{Cache: backend}
}

// Load deduplicates concurrent callers requesting the same key (and
// hashKey, since that is the actual storage key when present) so only one
// of them reaches the backing store.
func (c *Coalescing) Load(ctx context.Context, key string, ttlSeconds int, hashKey string) ([]byte, error) {
	groupKey := key
	if len(hashKey) > 0 {
		groupKey = hashKey
	}
	v, err, _ := c.group.Do(groupKey, func() (any, error) {
		return c.Cache.Load(ctx, key, ttlSeconds, hashKey)
	})
	if err != nil {
		return nil, err
	}
	blob, _ := v.([]byte)
	return blob, nil
}
