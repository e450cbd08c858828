package gormadapter_test

import (
	"context"
	"fmt"
	"testing"

	gsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stretchr/testify/require"

	"github.com/forbearing/docdb/adapter/gormadapter"
	"github.com/forbearing/docdb/attribute"
	"github.com/forbearing/docdb/consts"
	"github.com/forbearing/docdb/dberrors"
	"github.com/forbearing/docdb/document"
	"github.com/forbearing/docdb/index"
	"github.com/forbearing/docdb/query"
)

func newAdapter(t *testing.T) *gormadapter.Adapter {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gsqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	return gormadapter.New(db, gormadapter.DialectSQLite)
}

func usersAttrs() []attribute.Attribute {
	return []attribute.Attribute{
		{ID: "name", Key: "name", Type: consts.AttributeString, Size: 255, Required: true},
		{ID: "age", Key: "age", Type: consts.AttributeInteger, Size: 11, Signed: true},
	}
}

func TestCreateCollectionAndDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)

	require.NoError(t, a.CreateCollection(ctx, "users", usersAttrs(), nil))

	doc := document.New()
	doc.SetID("u1")
	doc.SetCollection("users")
	doc.Set("name", "Ada")
	doc.Set("age", int64(30))
	doc.SetPermissions([]string{"read(\"any\")"})

	created, err := a.CreateDocument(ctx, "users", doc)
	require.NoError(t, err)
	require.Equal(t, "u1", created.ID())
	require.Equal(t, "Ada", created.GetString("name"))

	got, err := a.GetDocument(ctx, "users", "u1", nil, false)
	require.NoError(t, err)
	require.False(t, got.IsEmpty())
	require.Equal(t, "Ada", got.GetString("name"))
}

func TestGetDocumentMissingReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	require.NoError(t, a.CreateCollection(ctx, "users", usersAttrs(), nil))

	got, err := a.GetDocument(ctx, "users", "missing", nil, false)
	require.NoError(t, err)
	require.True(t, got.IsEmpty())
}

func TestCreateDocumentDuplicateIDIsKindDuplicate(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	require.NoError(t, a.CreateCollection(ctx, "users", usersAttrs(), nil))

	doc := document.New()
	doc.SetID("u1")
	doc.Set("name", "Ada")
	_, err := a.CreateDocument(ctx, "users", doc)
	require.NoError(t, err)

	dup := document.New()
	dup.SetID("u1")
	dup.Set("name", "Grace")
	_, err = a.CreateDocument(ctx, "users", dup)
	require.Error(t, err)
	require.True(t, dberrors.IsDuplicate(err), "expected a duplicate error, got %v", err)
}

func TestUpdateAndDeleteDocument(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	require.NoError(t, a.CreateCollection(ctx, "users", usersAttrs(), nil))

	doc := document.New()
	doc.SetID("u1")
	doc.Set("name", "Ada")
	created, err := a.CreateDocument(ctx, "users", doc)
	require.NoError(t, err)

	created.Set("name", "Ada Lovelace")
	updated, err := a.UpdateDocument(ctx, "users", created)
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", updated.GetString("name"))

	require.NoError(t, a.DeleteDocument(ctx, "users", "u1"))
	got, err := a.GetDocument(ctx, "users", "u1", nil, false)
	require.NoError(t, err)
	require.True(t, got.IsEmpty())
}

func TestFindWithFilter(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	require.NoError(t, a.CreateCollection(ctx, "users", usersAttrs(), nil))

	for i, name := range []string{"Ada", "Grace", "Alan"} {
		doc := document.New()
		doc.SetID(fmt.Sprintf("u%d", i))
		doc.Set("name", name)
		_, err := a.CreateDocument(ctx, "users", doc)
		require.NoError(t, err)
	}

	results, err := a.Find(ctx, "users", query.Set{query.Eq("name", "Grace")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "Grace", results[0].GetString("name"))
}

func TestCreateIndexUnique(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	require.NoError(t, a.CreateCollection(ctx, "users", usersAttrs(), nil))
	require.NoError(t, a.CreateIndex(ctx, "users", index.Index{ID: "name_unique", Type: consts.IndexUnique, Attributes: []string{"name"}}))

	doc := document.New()
	doc.SetID("u1")
	doc.Set("name", "Ada")
	_, err := a.CreateDocument(ctx, "users", doc)
	require.NoError(t, err)

	dup := document.New()
	dup.SetID("u2")
	dup.Set("name", "Ada")
	_, err = a.CreateDocument(ctx, "users", dup)
	require.Error(t, err, "unique index on name should reject a second row with the same value")
}

func TestWithTransactionCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	require.NoError(t, a.CreateCollection(ctx, "users", usersAttrs(), nil))

	err := a.WithTransaction(ctx, func(txCtx context.Context) error {
		doc := document.New()
		doc.SetID("u1")
		doc.Set("name", "Ada")
		_, err := a.CreateDocument(txCtx, "users", doc)
		return err
	})
	require.NoError(t, err)

	got, err := a.GetDocument(ctx, "users", "u1", nil, false)
	require.NoError(t, err)
	require.False(t, got.IsEmpty())
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	require.NoError(t, a.CreateCollection(ctx, "users", usersAttrs(), nil))

	sentinel := fmt.Errorf("boom")
	err := a.WithTransaction(ctx, func(txCtx context.Context) error {
		doc := document.New()
		doc.SetID("u1")
		doc.Set("name", "Ada")
		if _, err := a.CreateDocument(txCtx, "users", doc); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	got, err := a.GetDocument(ctx, "users", "u1", nil, false)
	require.NoError(t, err)
	require.True(t, got.IsEmpty(), "rollback should have undone the create")
}

func TestWithTransactionNestedReusesOuterTx(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t)
	require.NoError(t, a.CreateCollection(ctx, "users", usersAttrs(), nil))

	err := a.WithTransaction(ctx, func(outerCtx context.Context) error {
		return a.WithTransaction(outerCtx, func(innerCtx context.Context) error {
			doc := document.New()
			doc.SetID("u1")
			doc.Set("name", "Ada")
			_, err := a.CreateDocument(innerCtx, "users", doc)
			return err
		})
	})
	require.NoError(t, err)

	got, err := a.GetDocument(ctx, "users", "u1", nil, false)
	require.NoError(t, err)
	require.False(t, got.IsEmpty())
}
