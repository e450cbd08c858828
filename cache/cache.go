// Package cache defines the Cache contract consumed by the engine (spec
// section 6): a simple key->blob store with listing per parent key.
package cache

import "context"

// Cache is the external collaborator contract for the engine's read-through
// cache. Implementations must be safe for concurrent use: "the cache is
// shared and mutated concurrently by many engines; cache operations are
// idempotent" (spec section 5).
type Cache interface {
	// Load returns the blob stored under key, or nil if absent/expired.
	// ttlSeconds of 0 means "use the implementation's default TTL".
	// hashKey, when non-empty, is the actual storage key (see cachekey.HashKey);
	// key is kept for listing/purge bookkeeping even when hashKey is used.
	Load(ctx context.Context, key string, ttlSeconds int, hashKey string) ([]byte, error)
	// Save stores value under key (callers pass a cachekey.HashKey here when
	// the read carried a select list), and registers key as a child of
	// parentKey for later List/Purge when parentKey is non-empty.
	Save(ctx context.Context, key string, value []byte, parentKey string) error
	// List returns every child key previously Saved under parentKey.
	List(ctx context.Context, parentKey string) ([]string, error)
	// Purge deletes key, and removes it from parentKey's child list when
	// parentKey is non-empty. Purge tolerates a missing key.
	Purge(ctx context.Context, key string, parentKey string) error
	// Flush clears the entire cache (used by deleteDatabase).
	Flush(ctx context.Context) error
}
