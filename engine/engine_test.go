package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	gsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stretchr/testify/require"

	"github.com/forbearing/docdb/adapter/gormadapter"
	"github.com/forbearing/docdb/attribute"
	"github.com/forbearing/docdb/cache/ristrettocache"
	"github.com/forbearing/docdb/cachekey"
	"github.com/forbearing/docdb/consts"
	"github.com/forbearing/docdb/dberrors"
	"github.com/forbearing/docdb/document"
	"github.com/forbearing/docdb/engine"
	"github.com/forbearing/docdb/metadata"
	"github.com/forbearing/docdb/permission"
	"github.com/forbearing/docdb/query"
	"github.com/forbearing/docdb/schema"
)

var anyRole = permission.Roles{"any"}

func newEngine(t *testing.T) (*engine.Engine, *schema.Manager) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gsqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	a := gormadapter.New(db, gormadapter.DialectSQLite)
	meta := metadata.New(a)
	require.NoError(t, meta.Bootstrap(context.Background()))
	m := schema.NewManager(a, meta)

	c, err := ristrettocache.New(1<<20, time.Duration(consts.DefaultCacheTTL)*time.Second)
	require.NoError(t, err)

	namer := cachekey.Namer{CacheName: "docdb", Prefix: "test"}
	e := engine.New(a, meta, namer, engine.WithCache(c))
	return e, m
}

func usersCollection(t *testing.T, m *schema.Manager) {
	t.Helper()
	ctx := context.Background()
	_, err := m.CreateCollection(ctx, "users", "Users", false, []string{"read(\"any\")", "create(\"any\")", "update(\"any\")", "delete(\"any\")"}, nil)
	require.NoError(t, err)
	_, err = m.CreateAttribute(ctx, "users", attribute.Attribute{ID: "name", Key: "name", Type: consts.AttributeString, Size: 255, Required: true})
	require.NoError(t, err)
	_, err = m.CreateAttribute(ctx, "users", attribute.Attribute{ID: "age", Key: "age", Type: consts.AttributeInteger, Size: 11, Signed: true})
	require.NoError(t, err)
	_, err = m.CreateAttribute(ctx, "users", attribute.Attribute{ID: "active", Key: "active", Type: consts.AttributeBoolean})
	require.NoError(t, err)
}

// scenario 1: create + get returns the stamped values.
func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	e, m := newEngine(t)
	usersCollection(t, m)

	doc := document.New()
	doc.SetID("u1")
	doc.Set("name", "Ada")
	doc.Set("age", 37)
	doc.Set("active", true)
	doc.SetPermissions([]string{"read(\"any\")", "update(\"any\")", "delete(\"any\")"})

	created, err := e.CreateDocument(ctx, "users", doc, anyRole)
	require.NoError(t, err)
	require.Equal(t, "u1", created.ID())
	require.False(t, created.CreatedAt().IsZero())

	got, err := e.GetDocument(ctx, "users", "u1", nil, anyRole)
	require.NoError(t, err)
	require.Equal(t, "Ada", got.Get("name"))
	require.EqualValues(t, 37, got.Get("age"))
	require.Equal(t, true, got.Get("active"))
}

// scenario 2: a required attribute left unset fails Structure validation.
func TestCreateRequiredViolation(t *testing.T) {
	ctx := context.Background()
	e, m := newEngine(t)
	usersCollection(t, m)

	doc := document.New()
	doc.SetID("u2")
	doc.Set("age", 5)
	doc.SetPermissions([]string{"read(\"any\")"})

	_, err := e.CreateDocument(ctx, "users", doc, anyRole)
	require.Error(t, err)
	require.True(t, dberrors.IsStructure(err))
}

// a duplicate $id on create fails Duplicate, not a generic database error
// (spec section 4.1's error taxonomy, and the translated gorm.ErrDuplicatedKey
// path through the adapter).
func TestCreateDuplicateID(t *testing.T) {
	ctx := context.Background()
	e, m := newEngine(t)
	usersCollection(t, m)

	doc := document.New()
	doc.SetID("u1")
	doc.Set("name", "Ada")
	doc.SetPermissions([]string{"read(\"any\")"})
	_, err := e.CreateDocument(ctx, "users", doc, anyRole)
	require.NoError(t, err)

	dup := document.New()
	dup.SetID("u1")
	dup.Set("name", "Grace")
	dup.SetPermissions([]string{"read(\"any\")"})
	_, err = e.CreateDocument(ctx, "users", dup, anyRole)
	require.Error(t, err)
	require.True(t, dberrors.IsDuplicate(err), "expected Duplicate, got %v", err)
}

// scenario 6: optimistic concurrency fence.
func TestUpdateOptimisticConflict(t *testing.T) {
	ctx := context.Background()
	e, m := newEngine(t)
	usersCollection(t, m)

	doc := document.New()
	doc.SetID("u1")
	doc.Set("name", "Ada")
	doc.SetPermissions([]string{"read(\"any\")", "update(\"any\")"})
	_, err := e.CreateDocument(ctx, "users", doc, anyRole)
	require.NoError(t, err)

	before := time.Now().UTC()
	time.Sleep(time.Millisecond)

	patch := document.New()
	patch.SetID("u1")
	patch.Set("name", "Grace")
	_, err = e.UpdateDocument(ctx, "users", patch, anyRole)
	require.NoError(t, err)

	fenced := engine.WithRequestTimestamp(ctx, before)
	again := document.New()
	again.SetID("u1")
	again.Set("name", "Hopper")
	_, err = e.UpdateDocument(fenced, "users", again, anyRole)
	require.Error(t, err)
	var ke error = err
	require.True(t, dberrors.IsConflict(ke))
}

// scenario 7: cache coherence — a stale get() must never return the prior
// value once the underlying row has changed.
func TestCacheCoherence(t *testing.T) {
	ctx := context.Background()
	e, m := newEngine(t)
	usersCollection(t, m)

	doc := document.New()
	doc.SetID("u1")
	doc.Set("name", "Ada")
	doc.SetPermissions([]string{"read(\"any\")", "update(\"any\")"})
	_, err := e.CreateDocument(ctx, "users", doc, anyRole)
	require.NoError(t, err)

	got, err := e.GetDocument(ctx, "users", "u1", nil, anyRole)
	require.NoError(t, err)
	require.Equal(t, "Ada", got.Get("name"))

	patch := document.New()
	patch.SetID("u1")
	patch.Set("name", "Grace")
	_, err = e.UpdateDocument(ctx, "users", patch, anyRole)
	require.NoError(t, err)

	got, err = e.GetDocument(ctx, "users", "u1", nil, anyRole)
	require.NoError(t, err)
	require.Equal(t, "Grace", got.Get("name"), "get after update must not return the purged cached value")
}

// scenario 3: oneToMany cascade onDelete removes the related posts.
func TestOneToManyCascade(t *testing.T) {
	ctx := context.Background()
	e, m := newEngine(t)
	usersCollection(t, m)

	_, err := m.CreateCollection(ctx, "posts", "Posts", false, []string{"read(\"any\")", "create(\"any\")", "update(\"any\")", "delete(\"any\")"}, nil)
	require.NoError(t, err)
	_, err = m.CreateAttribute(ctx, "posts", attribute.Attribute{ID: "title", Key: "title", Type: consts.AttributeString, Size: 255})
	require.NoError(t, err)
	err = m.CreateRelationship(ctx, "users", schema.RelationshipSpec{
		Key: "posts", RelatedCollection: "posts", RelationType: consts.RelationOneToMany,
		TwoWay: true, TwoWayKey: "author", OnDelete: consts.OnDeleteCascade,
	})
	require.NoError(t, err)

	user := document.New()
	user.SetID("u1")
	user.Set("name", "Ada")
	user.SetPermissions([]string{"read(\"any\")", "update(\"any\")", "delete(\"any\")"})
	_, err = e.CreateDocument(ctx, "users", user, anyRole)
	require.NoError(t, err)

	for _, id := range []string{"p1", "p2"} {
		post := document.New()
		post.SetID(id)
		post.Set("title", id)
		post.Set("author", "u1")
		post.SetPermissions([]string{"read(\"any\")", "update(\"any\")", "delete(\"any\")"})
		_, err = e.CreateDocument(ctx, "posts", post, anyRole)
		require.NoError(t, err)
	}

	require.NoError(t, e.DeleteDocument(ctx, "users", "u1", anyRole))

	for _, id := range []string{"p1", "p2"} {
		got, err := e.GetDocument(ctx, "posts", id, nil, anyRole)
		require.NoError(t, err)
		require.True(t, got.IsEmpty(), "cascade delete should have removed %q", id)
	}
}

func TestOneToManyRestrict(t *testing.T) {
	ctx := context.Background()
	e, m := newEngine(t)
	usersCollection(t, m)

	_, err := m.CreateCollection(ctx, "posts", "Posts", false, []string{"read(\"any\")", "create(\"any\")", "update(\"any\")", "delete(\"any\")"}, nil)
	require.NoError(t, err)
	_, err = m.CreateAttribute(ctx, "posts", attribute.Attribute{ID: "title", Key: "title", Type: consts.AttributeString, Size: 255})
	require.NoError(t, err)
	err = m.CreateRelationship(ctx, "users", schema.RelationshipSpec{
		Key: "posts", RelatedCollection: "posts", RelationType: consts.RelationOneToMany,
		TwoWay: true, TwoWayKey: "author", OnDelete: consts.OnDeleteRestrict,
	})
	require.NoError(t, err)

	user := document.New()
	user.SetID("u1")
	user.Set("name", "Ada")
	user.SetPermissions([]string{"read(\"any\")", "update(\"any\")", "delete(\"any\")"})
	_, err = e.CreateDocument(ctx, "users", user, anyRole)
	require.NoError(t, err)

	post := document.New()
	post.SetID("p1")
	post.Set("title", "hello")
	post.Set("author", "u1")
	post.SetPermissions([]string{"read(\"any\")", "update(\"any\")", "delete(\"any\")"})
	_, err = e.CreateDocument(ctx, "posts", post, anyRole)
	require.NoError(t, err)

	err = e.DeleteDocument(ctx, "users", "u1", anyRole)
	require.Error(t, err)
	require.True(t, dberrors.IsRestricted(err))

	got, err := e.GetDocument(ctx, "posts", "p1", nil, anyRole)
	require.NoError(t, err)
	require.False(t, got.IsEmpty(), "restrict must leave the related post untouched")
}

// scenario 5: oneToOne uniqueness — a second parent claiming an
// already-linked related doc fails Duplicate instead of silently
// re-pointing the link.
func TestOneToOneUniqueness(t *testing.T) {
	ctx := context.Background()
	e, m := newEngine(t)
	usersCollection(t, m)

	_, err := m.CreateCollection(ctx, "profiles", "Profiles", false, []string{"read(\"any\")", "create(\"any\")", "update(\"any\")"}, nil)
	require.NoError(t, err)
	_, err = m.CreateAttribute(ctx, "profiles", attribute.Attribute{ID: "bio", Key: "bio", Type: consts.AttributeString, Size: 255})
	require.NoError(t, err)
	err = m.CreateRelationship(ctx, "users", schema.RelationshipSpec{
		Key: "profile", RelatedCollection: "profiles", RelationType: consts.RelationOneToOne,
		TwoWay: true, TwoWayKey: "user",
	})
	require.NoError(t, err)

	for _, id := range []string{"u1", "u2"} {
		user := document.New()
		user.SetID(id)
		user.Set("name", id)
		user.SetPermissions([]string{"read(\"any\")", "update(\"any\")"})
		_, err = e.CreateDocument(ctx, "users", user, anyRole)
		require.NoError(t, err)
	}

	profile := document.New()
	profile.SetID("p1")
	profile.Set("bio", "hello")
	profile.SetPermissions([]string{"read(\"any\")", "update(\"any\")"})
	_, err = e.CreateDocument(ctx, "profiles", profile, anyRole)
	require.NoError(t, err)

	patchU1 := document.New()
	patchU1.SetID("u1")
	patchU1.Set("profile", "p1")
	_, err = e.UpdateDocument(ctx, "users", patchU1, anyRole)
	require.NoError(t, err)

	patchU2 := document.New()
	patchU2.SetID("u2")
	patchU2.Set("profile", "p1")
	_, err = e.UpdateDocument(ctx, "users", patchU2, anyRole)
	require.Error(t, err)
	require.True(t, dberrors.IsDuplicate(err), "expected Duplicate, got %v", err)
}

// scenario 8: a dotted select path narrows the populated relation without
// recursing into its own relationships.
func TestFindDottedSelect(t *testing.T) {
	ctx := context.Background()
	e, m := newEngine(t)
	usersCollection(t, m)

	_, err := m.CreateCollection(ctx, "posts", "Posts", false, []string{"read(\"any\")", "create(\"any\")"}, nil)
	require.NoError(t, err)
	_, err = m.CreateAttribute(ctx, "posts", attribute.Attribute{ID: "title", Key: "title", Type: consts.AttributeString, Size: 255})
	require.NoError(t, err)
	err = m.CreateRelationship(ctx, "users", schema.RelationshipSpec{
		Key: "posts", RelatedCollection: "posts", RelationType: consts.RelationOneToMany,
		TwoWay: true, TwoWayKey: "author", OnDelete: consts.OnDeleteCascade,
	})
	require.NoError(t, err)

	user := document.New()
	user.SetID("u1")
	user.Set("name", "Ada")
	user.SetPermissions([]string{"read(\"any\")", "update(\"any\")"})
	_, err = e.CreateDocument(ctx, "users", user, anyRole)
	require.NoError(t, err)

	post := document.New()
	post.SetID("p1")
	post.Set("title", "hello")
	post.Set("author", "u1")
	post.SetPermissions([]string{"read(\"any\")"})
	_, err = e.CreateDocument(ctx, "posts", post, anyRole)
	require.NoError(t, err)

	results, err := e.FindDocuments(ctx, "posts", query.Set{query.Select("title", "author.name")}, anyRole)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "hello", results[0].Get("title"))
	author, ok := results[0].Get("author").(*document.Document)
	require.True(t, ok)
	require.Equal(t, "Ada", author.Get("name"))
	require.False(t, author.Has("posts"), "author.posts must not be populated under the depth guard")
}
