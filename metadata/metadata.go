// Package metadata implements the self-describing catalog collection
// `_metadata`, per spec section 3 ("Collection") and section 2's "Metadata
// catalog" component: every user collection is itself a Document stored in
// `_metadata`, bootstrapped from a well-known static descriptor.
package metadata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/forbearing/docdb/adapter"
	"github.com/forbearing/docdb/attribute"
	"github.com/forbearing/docdb/collection"
	"github.com/forbearing/docdb/consts"
	"github.com/forbearing/docdb/dberrors"
	"github.com/forbearing/docdb/document"
	"github.com/forbearing/docdb/logger"
)

// staticAttributes lists the `_metadata` table's own columns. `_metadata`
// describes every other collection but is never described by a row of
// itself.
func staticAttributes() []attribute.Attribute {
	return []attribute.Attribute{
		{ID: "name", Key: "name", Type: consts.AttributeString, Size: 256, Required: true},
		{ID: "attributes", Key: "attributes", Type: consts.AttributeString, Size: 1 << 20, Filters: []string{"json"}},
		{ID: "indexes", Key: "indexes", Type: consts.AttributeString, Size: 1 << 20, Filters: []string{"json"}},
		{ID: "documentSecurity", Key: "documentSecurity", Type: consts.AttributeBoolean},
		{ID: "tenant", Key: "tenant", Type: consts.AttributeInteger},
	}
}

// Store bridges collection.Collection values and their persisted form as
// Documents inside `_metadata`, via the adapter directly (the metadata
// collection is bootstrapped before any engine-level validation/caching
// machinery exists to depend on).
type Store struct {
	adapter adapter.Adapter
}

// New returns a Store bound to adapter a.
func New(a adapter.Adapter) *Store {
	return &Store{adapter: a}
}

// Bootstrap ensures the `_metadata` table exists. Idempotent: duplicate
// creation attempts during migrating+shared-tables mode are the adapter's
// concern to swallow, per spec section 7's propagation rule.
func (s *Store) Bootstrap(ctx context.Context) error {
	exists, err := s.adapter.Exists(ctx, s.adapter.GetDatabase(), consts.MetadataCollection)
	if err != nil {
		return dberrors.WrapDatabase(err, "failed to check for _metadata collection")
	}
	if exists {
		return nil
	}
	if err := s.adapter.CreateCollection(ctx, consts.MetadataCollection, staticAttributes(), nil); err != nil {
		return dberrors.WrapDatabase(err, "failed to bootstrap _metadata collection")
	}
	if logger.Metadata != nil {
		logger.Metadata.Info("bootstrapped _metadata collection")
	}
	return nil
}

// toDocument serializes col into the row shape stored inside `_metadata`.
func toDocument(col *collection.Collection) (*document.Document, error) {
	attrsJSON, err := json.Marshal(col.Attributes)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.KindStructure, err, "failed to marshal attributes")
	}
	idxJSON, err := json.Marshal(col.Indexes)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.KindStructure, err, "failed to marshal indexes")
	}

	doc := document.New()
	doc.SetID(col.ID)
	doc.Set("name", col.Name)
	doc.Set("attributes", string(attrsJSON))
	doc.Set("indexes", string(idxJSON))
	doc.Set("documentSecurity", col.DocumentSecurity)
	doc.SetPermissions(col.Permissions)
	if col.Tenant != nil {
		doc.Set("tenant", *col.Tenant)
	}
	return doc, nil
}

// fromDocument reconstructs a collection.Collection from its persisted row.
func fromDocument(doc *document.Document) (*collection.Collection, error) {
	col := &collection.Collection{
		ID:               doc.ID(),
		Name:             doc.GetString("name"),
		DocumentSecurity: asBool(doc.Get("documentSecurity")),
		Permissions:      doc.Permissions(),
	}

	if s, ok := doc.Get("attributes").(string); ok && len(s) > 0 {
		if err := json.Unmarshal([]byte(s), &col.Attributes); err != nil {
			return nil, dberrors.Wrap(dberrors.KindStructure, err, "failed to unmarshal attributes")
		}
	}
	if s, ok := doc.Get("indexes").(string); ok && len(s) > 0 {
		if err := json.Unmarshal([]byte(s), &col.Indexes); err != nil {
			return nil, dberrors.Wrap(dberrors.KindStructure, err, "failed to unmarshal indexes")
		}
	}
	if doc.Has("tenant") {
		if i, ok := toInt(doc.Get("tenant")); ok {
			col.Tenant = &i
		}
	}
	return col, nil
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// Create inserts col's descriptor document into `_metadata`.
func (s *Store) Create(ctx context.Context, col *collection.Collection) error {
	doc, err := toDocument(col)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	doc.SetCreatedAt(now)
	doc.SetUpdatedAt(now)
	if _, err := s.adapter.CreateDocument(ctx, consts.MetadataCollection, doc); err != nil {
		return dberrors.WrapDatabase(err, "failed to persist collection metadata")
	}
	return nil
}

// Get loads collectionID's descriptor. Returns dberrors.NotFound if absent.
func (s *Store) Get(ctx context.Context, collectionID string) (*collection.Collection, error) {
	doc, err := s.adapter.GetDocument(ctx, consts.MetadataCollection, collectionID, nil, false)
	if err != nil {
		return nil, dberrors.WrapDatabase(err, "failed to load collection metadata")
	}
	if doc.IsEmpty() {
		return nil, dberrors.NotFound("collection %q not found", collectionID)
	}
	return fromDocument(doc)
}

// List returns every collection descriptor.
func (s *Store) List(ctx context.Context) ([]*collection.Collection, error) {
	docs, err := s.adapter.Find(ctx, consts.MetadataCollection, nil)
	if err != nil {
		return nil, dberrors.WrapDatabase(err, "failed to list collections")
	}
	out := make([]*collection.Collection, 0, len(docs))
	for _, doc := range docs {
		col, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, nil
}

// Update overwrites collectionID's descriptor document.
func (s *Store) Update(ctx context.Context, col *collection.Collection) error {
	doc, err := toDocument(col)
	if err != nil {
		return err
	}
	doc.SetUpdatedAt(time.Now().UTC())
	if _, err := s.adapter.UpdateDocument(ctx, consts.MetadataCollection, doc); err != nil {
		return dberrors.WrapDatabase(err, "failed to update collection metadata")
	}
	return nil
}

// Delete removes collectionID's descriptor document.
func (s *Store) Delete(ctx context.Context, collectionID string) error {
	if err := s.adapter.DeleteDocument(ctx, consts.MetadataCollection, collectionID); err != nil {
		return dberrors.WrapDatabase(err, "failed to delete collection metadata")
	}
	return nil
}
