package relate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forbearing/docdb/attribute"
	"github.com/forbearing/docdb/collection"
	"github.com/forbearing/docdb/consts"
	"github.com/forbearing/docdb/dberrors"
	"github.com/forbearing/docdb/document"
	"github.com/forbearing/docdb/query"
	"github.com/forbearing/docdb/relate"
)

// memStore is a minimal in-memory relate.DocStore used to exercise the
// resolver without a real adapter.
type memStore struct {
	docs map[string]map[string]*document.Document
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]map[string]*document.Document)}
}

func (s *memStore) Get(_ context.Context, collectionID, id string) (*document.Document, error) {
	if row, ok := s.docs[collectionID][id]; ok {
		return row.Clone(), nil
	}
	return document.New(), nil
}

func (s *memStore) Create(_ context.Context, collectionID string, doc *document.Document) (*document.Document, error) {
	if len(doc.ID()) == 0 {
		doc.SetID(randID(collectionID, len(s.docs[collectionID])))
	}
	doc.SetCollection(collectionID)
	if s.docs[collectionID] == nil {
		s.docs[collectionID] = make(map[string]*document.Document)
	}
	s.docs[collectionID][doc.ID()] = doc.Clone()
	return doc.Clone(), nil
}

func (s *memStore) Update(_ context.Context, collectionID string, doc *document.Document) (*document.Document, error) {
	if s.docs[collectionID] == nil {
		s.docs[collectionID] = make(map[string]*document.Document)
	}
	s.docs[collectionID][doc.ID()] = doc.Clone()
	return doc.Clone(), nil
}

func (s *memStore) Delete(_ context.Context, collectionID, id string) error {
	delete(s.docs[collectionID], id)
	return nil
}

func (s *memStore) MaterializeEdge(_ context.Context, _, _, _, _ string) {}

func (s *memStore) Find(_ context.Context, collectionID string, q query.Set) ([]*document.Document, error) {
	filters := q.Filters()
	var out []*document.Document
	for _, row := range s.docs[collectionID] {
		if matches(row, filters) {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

func matches(doc *document.Document, filters []*query.Query) bool {
	for _, f := range filters {
		if f.Method() != query.Equal {
			continue
		}
		if doc.Get(f.Attribute()) != f.Values()[0] {
			return false
		}
	}
	return true
}

func randID(collectionID string, n int) string {
	return collectionID + "-" + string(rune('a'+n))
}

func oneToManyCollections() (*collection.Collection, *collection.Collection) {
	authors := &collection.Collection{ID: "authors", Attributes: []attribute.Attribute{
		{ID: "posts", Key: "posts", Type: consts.AttributeRelationship, Relationship: &attribute.RelationshipOptions{
			RelatedCollection: "posts", RelationType: consts.RelationOneToMany, TwoWay: true, TwoWayKey: "author", OnDelete: consts.OnDeleteCascade, Side: consts.SideParent,
		}},
	}}
	posts := &collection.Collection{ID: "posts", Attributes: []attribute.Attribute{
		{ID: "author", Key: "author", Type: consts.AttributeRelationship, Relationship: &attribute.RelationshipOptions{
			RelatedCollection: "authors", RelationType: consts.RelationManyToOne, TwoWay: true, TwoWayKey: "posts", OnDelete: consts.OnDeleteCascade, Side: consts.SideChild,
		}},
	}}
	return authors, posts
}

func TestWriteAndPopulateOneToMany(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := relate.New(store)
	authors, posts := oneToManyCollections()
	_ = posts

	author := document.New()
	author.SetID("a1")
	author, err := store.Create(ctx, "authors", author)
	require.NoError(t, err)

	post1 := document.New()
	post1.Set("title", "hello")
	post2 := document.New()
	post2.Set("title", "world")
	author.Set("posts", []*document.Document{post1, post2})

	require.NoError(t, r.WriteRelations(ctx, authors, author, nil))

	reloaded, err := store.Get(ctx, "authors", "a1")
	require.NoError(t, err)
	reloaded.Set("posts", nil) // populate will refill this
	require.NoError(t, r.Populate(ctx, authors, reloaded))

	children, ok := reloaded.Get("posts").([]*document.Document)
	require.True(t, ok)
	require.Len(t, children, 2)
}

func TestDeleteRelationsRestrict(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := relate.New(store)
	authors, _ := oneToManyCollections()
	authors.Attributes[0].Relationship.OnDelete = consts.OnDeleteRestrict

	author := document.New()
	author.SetID("a1")
	_, err := store.Create(ctx, "authors", author)
	require.NoError(t, err)

	post := document.New()
	post.Set("author", "a1")
	_, err = store.Create(ctx, "posts", post)
	require.NoError(t, err)

	err = r.DeleteRelations(ctx, authors, author)
	require.Error(t, err)
	require.True(t, dberrors.IsRestricted(err))
}

func manyToManyCollections() (*collection.Collection, *collection.Collection) {
	students := &collection.Collection{ID: "students", Attributes: []attribute.Attribute{
		{ID: "courses", Key: "courses", Type: consts.AttributeRelationship, Relationship: &attribute.RelationshipOptions{
			RelatedCollection: "courses", RelationType: consts.RelationManyToMany, TwoWay: true, TwoWayKey: "student", OnDelete: consts.OnDeleteCascade, Side: consts.SideParent, Junction: "enrollments",
		}},
	}}
	courses := &collection.Collection{ID: "courses", Attributes: []attribute.Attribute{
		{ID: "students", Key: "students", Type: consts.AttributeRelationship, Relationship: &attribute.RelationshipOptions{
			RelatedCollection: "students", RelationType: consts.RelationManyToMany, TwoWay: true, TwoWayKey: "course", OnDelete: consts.OnDeleteCascade, Side: consts.SideChild, Junction: "enrollments",
		}},
	}}
	return students, courses
}

func TestDeleteRelationsManyToManyCascade(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := relate.New(store)
	students, _ := manyToManyCollections()

	student := document.New()
	student.SetID("s1")
	_, err := store.Create(ctx, "students", student)
	require.NoError(t, err)

	course := document.New()
	course.SetID("c1")
	_, err = store.Create(ctx, "courses", course)
	require.NoError(t, err)

	row := document.New()
	row.Set("courses", "c1")
	row.Set("student", "s1")
	_, err = store.Create(ctx, "enrollments", row)
	require.NoError(t, err)

	require.NoError(t, r.DeleteRelations(ctx, students, student))

	remaining, err := store.Get(ctx, "courses", "c1")
	require.NoError(t, err)
	require.True(t, remaining.IsEmpty(), "cascade delete should have removed the related course")

	rows, err := store.Find(ctx, "enrollments", query.Set{query.Eq("student", "s1")})
	require.NoError(t, err)
	require.Empty(t, rows, "cascade delete should have removed the junction row")
}

func TestDeleteRelationsCascade(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	r := relate.New(store)
	authors, _ := oneToManyCollections()

	author := document.New()
	author.SetID("a1")
	_, err := store.Create(ctx, "authors", author)
	require.NoError(t, err)

	post := document.New()
	post.SetID("p1")
	post.Set("author", "a1")
	_, err = store.Create(ctx, "posts", post)
	require.NoError(t, err)

	require.NoError(t, r.DeleteRelations(ctx, authors, author))

	remaining, err := store.Get(ctx, "posts", "p1")
	require.NoError(t, err)
	require.True(t, remaining.IsEmpty(), "cascade delete should have removed the related post")
}
