package schema_test

import (
	"context"
	"fmt"
	"testing"

	gsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/forbearing/docdb/adapter/gormadapter"
	"github.com/forbearing/docdb/attribute"
	"github.com/forbearing/docdb/consts"
	"github.com/forbearing/docdb/dberrors"
	"github.com/forbearing/docdb/index"
	"github.com/forbearing/docdb/metadata"
	"github.com/forbearing/docdb/schema"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*schema.Manager, *metadata.Store) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	a := gormadapter.New(db, gormadapter.DialectSQLite)
	meta := metadata.New(a)
	require.NoError(t, meta.Bootstrap(context.Background()))
	return schema.NewManager(a, meta), meta
}

func TestManagerCreateAndDeleteCollection(t *testing.T) {
	ctx := context.Background()
	m, meta := newManager(t)

	col, err := m.CreateCollection(ctx, "articles", "Articles", false, []string{"read(\"any\")"}, nil)
	require.NoError(t, err)
	require.Equal(t, "articles", col.ID)

	_, err = m.CreateCollection(ctx, "articles", "Articles", false, nil, nil)
	require.Error(t, err)
	require.True(t, dberrors.IsDuplicate(err))

	require.NoError(t, m.DeleteCollection(ctx, "articles"))
	_, err = meta.Get(ctx, "articles")
	require.True(t, dberrors.IsNotFound(err))
}

func TestManagerAttributeLifecycle(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	_, err := m.CreateCollection(ctx, "articles", "Articles", false, nil, nil)
	require.NoError(t, err)

	col, err := m.CreateAttribute(ctx, "articles", attribute.Attribute{ID: "title", Key: "title", Type: consts.AttributeString, Size: 256, Required: true})
	require.NoError(t, err)
	require.Len(t, col.Attributes, 1)

	col, err = m.CreateIndex(ctx, "articles", index.Index{ID: "idx_title", Type: consts.IndexKey, Attributes: []string{"title"}, Lengths: []*int{nil}, Orders: []*string{nil}})
	require.NoError(t, err)
	require.Len(t, col.Indexes, 1)

	col, err = m.RenameAttribute(ctx, "articles", "title", "headline")
	require.NoError(t, err)
	require.Equal(t, "headline", col.Indexes[0].Attributes[0])

	col, err = m.DeleteAttribute(ctx, "articles", "headline")
	require.NoError(t, err)
	require.Len(t, col.Attributes, 0)
	require.Len(t, col.Indexes, 0, "index left empty by the deleted attribute should be pruned")
}

func TestManagerRelationshipOneToMany(t *testing.T) {
	ctx := context.Background()
	m, meta := newManager(t)

	_, err := m.CreateCollection(ctx, "authors", "Authors", false, nil, nil)
	require.NoError(t, err)
	_, err = m.CreateCollection(ctx, "articles", "Articles", false, nil, nil)
	require.NoError(t, err)

	err = m.CreateRelationship(ctx, "authors", schema.RelationshipSpec{
		Key: "articles", RelatedCollection: "articles", RelationType: consts.RelationOneToMany,
		TwoWay: true, TwoWayKey: "author", OnDelete: consts.OnDeleteCascade,
	})
	require.NoError(t, err)

	authors, err := meta.Get(ctx, "authors")
	require.NoError(t, err)
	require.Len(t, authors.Attributes, 1)
	require.True(t, authors.Attributes[0].IsRelationship())

	articles, err := meta.Get(ctx, "articles")
	require.NoError(t, err)
	require.Len(t, articles.Attributes, 1)
	require.Equal(t, consts.RelationManyToOne, articles.Attributes[0].Relationship.RelationType)
	require.Len(t, articles.Indexes, 1, "child side of a oneToMany gets a key index on the mirror attribute")

	require.NoError(t, m.DeleteRelationship(ctx, "authors", "articles"))
	authors, err = meta.Get(ctx, "authors")
	require.NoError(t, err)
	require.Len(t, authors.Attributes, 0)
	articles, err = meta.Get(ctx, "articles")
	require.NoError(t, err)
	require.Len(t, articles.Attributes, 0)
}

func TestManagerRelationshipManyToMany(t *testing.T) {
	ctx := context.Background()
	m, meta := newManager(t)

	_, err := m.CreateCollection(ctx, "tags", "Tags", false, nil, nil)
	require.NoError(t, err)
	_, err = m.CreateCollection(ctx, "articles", "Articles", false, nil, nil)
	require.NoError(t, err)

	err = m.CreateRelationship(ctx, "articles", schema.RelationshipSpec{
		Key: "tags", RelatedCollection: "tags", RelationType: consts.RelationManyToMany, TwoWay: true,
	})
	require.NoError(t, err)

	_, err = meta.Get(ctx, "_articles_tags")
	require.NoError(t, err, "junction collection should be registered in the catalog")

	require.NoError(t, m.DeleteRelationship(ctx, "articles", "tags"))
	_, err = meta.Get(ctx, "_articles_tags")
	require.True(t, dberrors.IsNotFound(err), "junction collection should be dropped with the relationship")
}
