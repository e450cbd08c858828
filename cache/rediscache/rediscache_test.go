package rediscache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/forbearing/docdb/cache/rediscache"
)

func newCache(t *testing.T) *rediscache.Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return rediscache.New(client, time.Minute)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	require.NoError(t, c.Save(ctx, "k1", []byte("hello"), ""))
	got, err := c.Load(ctx, "k1", 0, "")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestLoadMissReturnsNil(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	got, err := c.Load(ctx, "missing", 0, "")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestLoadPrefersHashKey(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	require.NoError(t, c.Save(ctx, "hashed-value", []byte("payload"), ""))
	got, err := c.Load(ctx, "logical-key", 0, "hashed-value")
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)
}

func TestListReturnsChildrenOfParentKey(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	require.NoError(t, c.Save(ctx, "child1", []byte("a"), "parent"))
	require.NoError(t, c.Save(ctx, "child2", []byte("b"), "parent"))

	children, err := c.List(ctx, "parent")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"child1", "child2"}, children)
}

func TestPurgeRemovesKeyAndChildEntry(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	require.NoError(t, c.Save(ctx, "child1", []byte("a"), "parent"))
	require.NoError(t, c.Purge(ctx, "child1", "parent"))

	got, err := c.Load(ctx, "child1", 0, "")
	require.NoError(t, err)
	require.Nil(t, got)

	children, err := c.List(ctx, "parent")
	require.NoError(t, err)
	require.Empty(t, children)
}

func TestPurgeToleratesMissingKey(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	require.NoError(t, c.Purge(ctx, "never-saved", ""))
}

func TestFlushClearsEverything(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	require.NoError(t, c.Save(ctx, "k1", []byte("a"), "parent"))
	require.NoError(t, c.Flush(ctx))

	got, err := c.Load(ctx, "k1", 0, "")
	require.NoError(t, err)
	require.Nil(t, got)

	children, err := c.List(ctx, "parent")
	require.NoError(t, err)
	require.Empty(t, children)
}
