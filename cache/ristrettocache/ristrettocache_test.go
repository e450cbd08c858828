package ristrettocache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/forbearing/docdb/cache/ristrettocache"
)

func newCache(t *testing.T) *ristrettocache.Cache {
	t.Helper()
	c, err := ristrettocache.New(1<<20, time.Minute)
	require.NoError(t, err)
	return c
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
