// Package schema implements the attribute, index, and relationship manager
// described in spec section 4.2: createAttribute/updateAttribute/
// renameAttribute/deleteAttribute, createIndex/renameIndex/deleteIndex, and
// createRelationship/updateRelationship/deleteRelationship, all mediated
// through the metadata catalog and the adapter's DDL surface.
package schema

import (
	"context"

	"github.com/forbearing/docdb/adapter"
	"github.com/forbearing/docdb/attribute"
	"github.com/forbearing/docdb/collection"
	"github.com/forbearing/docdb/consts"
	"github.com/forbearing/docdb/dberrors"
	"github.com/forbearing/docdb/index"
	"github.com/forbearing/docdb/logger"
	"github.com/forbearing/docdb/metadata"
	"github.com/forbearing/docdb/validate"
)

// Manager owns attribute/index/relationship mutation for every collection,
// grounded in the teacher's migration-and-model-metadata pairing: every DDL
// call against the adapter is immediately mirrored into the _metadata
// catalog document so the two never drift.
type Manager struct {
	adapter adapter.Adapter
	meta    *metadata.Store
}

// NewManager returns a Manager bound to adapter a and metadata store meta.
func NewManager(a adapter.Adapter, meta *metadata.Store) *Manager {
	return &Manager{adapter: a, meta: meta}
}

func (m *Manager) limits(collectionID string) validate.Limits {
	return validate.Limits{
		MaxAttributes:    m.adapter.GetLimitForAttributes(),
		MaxIndexes:       m.adapter.GetLimitForIndexes(),
		MaxIndexLength:   m.adapter.GetMaxIndexLength(),
		MaxStringSize:    m.adapter.GetLimitForString(),
		MaxIntSize:       m.adapter.GetLimitForInt(),
		MaxRowWidth:      m.adapter.GetDocumentSizeLimit(),
		ArrayIndexLength: consts.ArrayIndexLength,
		SupportIndex:     m.adapter.GetSupportForIndex(),
		SupportUnique:    m.adapter.GetSupportForUniqueIndex(),
		SupportFulltext:  m.adapter.GetSupportForFulltextIndex(),
	}
}

// CreateCollection creates collectionID's backing table (with no user
// attributes yet) and its catalog document.
func (m *Manager) CreateCollection(ctx context.Context, id, name string, documentSecurity bool, permissions []string, tenant *int) (*collection.Collection, error) {
	if _, err := m.meta.Get(ctx, id); err == nil {
		return nil, dberrors.Duplicate("collection %q already exists", id)
	}
	if err := m.adapter.CreateCollection(ctx, id, nil, nil); err != nil {
		return nil, dberrors.WrapDatabase(err, "failed to create collection table")
	}
	col := &collection.Collection{ID: id, Name: name, DocumentSecurity: documentSecurity, Permissions: permissions, Tenant: tenant}
	if err := m.meta.Create(ctx, col); err != nil {
		return nil, err
	}
	if logger.Engine != nil {
		logger.Engine.Infow("collection created", "collection", id)
	}
	return col, nil
}

// DeleteCollection removes every relationship attribute first, then drops
// the backing table, then the catalog document, per the documented
// lifecycle (relationships -> table -> metadata -> cache, cache purge is
// the caller's responsibility since only the engine owns a Cache).
func (m *Manager) DeleteCollection(ctx context.Context, id string) error {
	col, err := m.meta.Get(ctx, id)
	if err != nil {
		return err
	}
	for _, attr := range col.Attributes {
		if !attr.IsRelationship() {
			continue
		}
		if err := m.DeleteRelationship(ctx, id, attr.Key); err != nil {
			return err
		}
	}
	if err := m.adapter.DropCollection(ctx, id); err != nil {
		return dberrors.WrapDatabase(err, "failed to drop collection table")
	}
	if err := m.meta.Delete(ctx, id); err != nil {
		return err
	}
	if logger.Engine != nil {
		logger.Engine.Infow("collection deleted", "collection", id)
	}
	return nil
}

// CreateAttribute appends attr to collectionID's schema.
func (m *Manager) CreateAttribute(ctx context.Context, collectionID string, attr attribute.Attribute) (*collection.Collection, error) {
	col, err := m.meta.Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if err := validate.CheckAttribute(attr, *col, m.limits(collectionID)); err != nil {
		return nil, err
	}
	if err := m.adapter.CreateAttribute(ctx, collectionID, attr); err != nil {
		return nil, dberrors.WrapDatabase(err, "failed to create attribute")
	}
	col.Attributes = append(col.Attributes, attr)
	if err := m.meta.Update(ctx, col); err != nil {
		return nil, err
	}
	return col, nil
}

// UpdateAttribute mutates an existing attribute. When type/size/signed/
// array/key changes ("altering"), every index referencing it is revalidated
// (and renamed, if the key changed) before adapter DDL runs; otherwise only
// the catalog document is touched.
func (m *Manager) UpdateAttribute(ctx context.Context, collectionID string, newAttr attribute.Attribute) (*collection.Collection, error) {
	col, err := m.meta.Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	idx := attrIndexByID(col.Attributes, newAttr.ID)
	if idx < 0 {
		return nil, dberrors.NotFound("attribute %q not found on collection %q", newAttr.ID, collectionID)
	}
	old := col.Attributes[idx]
	altering := old.Type != newAttr.Type || old.Size != newAttr.Size || old.Signed != newAttr.Signed ||
		old.Array != newAttr.Array || old.Key != newAttr.Key

	if altering {
		if old.Key != newAttr.Key {
			for i := range col.Indexes {
				col.Indexes[i].RenameAttribute(old.Key, newAttr.Key)
			}
		}
		for i := range col.Indexes {
			if containsAttr(col.Indexes[i].Attributes, newAttr.Key) {
				if err := validate.Index(&col.Indexes[i], *col, m.limits(collectionID)); err != nil {
					return nil, err
				}
			}
		}
		if err := m.adapter.UpdateAttribute(ctx, collectionID, newAttr); err != nil {
			return nil, dberrors.WrapDatabase(err, "failed to update attribute")
		}
	}
	col.Attributes[idx] = newAttr
	if err := m.meta.Update(ctx, col); err != nil {
		return nil, err
	}
	return col, nil
}

// RenameAttribute rewrites an attribute's key and every referencing index.
func (m *Manager) RenameAttribute(ctx context.Context, collectionID, oldKey, newKey string) (*collection.Collection, error) {
	col, err := m.meta.Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	i := attrIndexByKey(col.Attributes, oldKey)
	if i < 0 {
		return nil, dberrors.NotFound("attribute %q not found on collection %q", oldKey, collectionID)
	}
	col.Attributes[i].Key = newKey
	for j := range col.Indexes {
		col.Indexes[j].RenameAttribute(oldKey, newKey)
	}
	if err := m.adapter.RenameAttribute(ctx, collectionID, oldKey, newKey); err != nil {
		return nil, dberrors.WrapDatabase(err, "failed to rename attribute")
	}
	if err := m.meta.Update(ctx, col); err != nil {
		return nil, err
	}
	return col, nil
}

// DeleteAttribute removes a non-relationship attribute, pruning it from
// every index (deleting indexes left empty).
func (m *Manager) DeleteAttribute(ctx context.Context, collectionID, key string) (*collection.Collection, error) {
	col, err := m.meta.Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	i := attrIndexByKey(col.Attributes, key)
	if i < 0 {
		return nil, dberrors.NotFound("attribute %q not found on collection %q", key, collectionID)
	}
	if col.Attributes[i].IsRelationship() {
		return nil, dberrors.Structure("attribute %q is a relationship; use DeleteRelationship", key)
	}
	col.Attributes = append(col.Attributes[:i], col.Attributes[i+1:]...)

	remaining := col.Indexes[:0]
	for _, idxDef := range col.Indexes {
		empty := idxDef.RemoveAttribute(key)
		if empty {
			if err := m.adapter.DeleteIndex(ctx, collectionID, idxDef.ID); err != nil {
				return nil, dberrors.WrapDatabase(err, "failed to delete orphaned index")
			}
			continue
		}
		remaining = append(remaining, idxDef)
	}
	col.Indexes = remaining

	if err := m.adapter.DeleteAttribute(ctx, collectionID, key); err != nil {
		return nil, dberrors.WrapDatabase(err, "failed to delete attribute")
	}
	if err := m.meta.Update(ctx, col); err != nil {
		return nil, err
	}
	return col, nil
}

// CreateIndex validates and persists a new index definition.
func (m *Manager) CreateIndex(ctx context.Context, collectionID string, idx index.Index) (*collection.Collection, error) {
	col, err := m.meta.Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if err := validate.Index(&idx, *col, m.limits(collectionID)); err != nil {
		return nil, err
	}
	if err := m.adapter.CreateIndex(ctx, collectionID, idx); err != nil {
		return nil, dberrors.WrapDatabase(err, "failed to create index")
	}
	col.Indexes = append(col.Indexes, idx)
	if err := m.meta.Update(ctx, col); err != nil {
		return nil, err
	}
	return col, nil
}

// RenameIndex renames an existing index id.
func (m *Manager) RenameIndex(ctx context.Context, collectionID, oldID, newID string) (*collection.Collection, error) {
	col, err := m.meta.Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	i := -1
	for j, idxDef := range col.Indexes {
		if idxDef.ID == oldID {
			i = j
			break
		}
	}
	if i < 0 {
		return nil, dberrors.NotFound("index %q not found on collection %q", oldID, collectionID)
	}
	if err := m.adapter.RenameIndex(ctx, collectionID, oldID, newID); err != nil {
		return nil, dberrors.WrapDatabase(err, "failed to rename index")
	}
	col.Indexes[i].ID = newID
	if err := m.meta.Update(ctx, col); err != nil {
		return nil, err
	}
	return col, nil
}

// DeleteIndex removes an index definition.
func (m *Manager) DeleteIndex(ctx context.Context, collectionID, id string) (*collection.Collection, error) {
	col, err := m.meta.Get(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	i := -1
	for j, idxDef := range col.Indexes {
		if idxDef.ID == id {
			i = j
			break
		}
	}
	if i < 0 {
		return nil, dberrors.NotFound("index %q not found on collection %q", id, collectionID)
	}
	if err := m.adapter.DeleteIndex(ctx, collectionID, id); err != nil {
		return nil, dberrors.WrapDatabase(err, "failed to delete index")
	}
	col.Indexes = append(col.Indexes[:i], col.Indexes[i+1:]...)
	if err := m.meta.Update(ctx, col); err != nil {
		return nil, err
	}
	return col, nil
}

// RelationshipSpec is the caller-supplied half of createRelationship; the
// mirror side and (for manyToMany) the junction collection are derived.
type RelationshipSpec struct {
	Key               string
	RelatedCollection string
	RelationType      consts.RelationType
	TwoWay            bool
	TwoWayKey         string
	OnDelete          consts.OnDelete
}

// CreateRelationship creates both sides of a relationship pair (plus,
// for manyToMany, a junction collection) and their backing indexes, per
// the variant table in spec section 4.2.
func (m *Manager) CreateRelationship(ctx context.Context, collectionID string, spec RelationshipSpec) error {
	parentCol, err := m.meta.Get(ctx, collectionID)
	if err != nil {
		return err
	}
	childCol, err := m.meta.Get(ctx, spec.RelatedCollection)
	if err != nil {
		return err
	}

	key := spec.Key
	if len(key) == 0 {
		key = spec.RelatedCollection
	}
	twoWayKey := spec.TwoWayKey
	if len(twoWayKey) == 0 {
		twoWayKey = collectionID
	}
	if _, exists := parentCol.AttributeByKey(key); exists {
		return dberrors.Duplicate("relationship key %q already exists on collection %q", key, collectionID)
	}
	if _, exists := childCol.AttributeByKey(twoWayKey); exists {
		return dberrors.Duplicate("relationship mirror key %q already exists on collection %q", twoWayKey, spec.RelatedCollection)
	}

	var junctionID string
	if spec.RelationType == consts.RelationManyToMany {
		junctionID = collection.JunctionName(collectionID, spec.RelatedCollection)
	}

	parentAttr := attribute.Attribute{
		ID: key, Key: key, Type: consts.AttributeRelationship,
		Relationship: &attribute.RelationshipOptions{
			RelatedCollection: spec.RelatedCollection, RelationType: spec.RelationType,
			TwoWay: spec.TwoWay, TwoWayKey: twoWayKey, OnDelete: spec.OnDelete, Side: consts.SideParent, Junction: junctionID,
		},
	}
	childAttr := attribute.Attribute{
		ID: twoWayKey, Key: twoWayKey, Type: consts.AttributeRelationship,
		Relationship: &attribute.RelationshipOptions{
			RelatedCollection: collectionID, RelationType: mirrorType(spec.RelationType),
			TwoWay: spec.TwoWay, TwoWayKey: key, OnDelete: spec.OnDelete, Side: consts.SideChild, Junction: junctionID,
		},
	}

	if err := m.adapter.CreateRelationship(ctx, collectionID, parentAttr); err != nil {
		return dberrors.WrapDatabase(err, "failed to create parent relationship attribute")
	}
	if err := m.adapter.CreateRelationship(ctx, spec.RelatedCollection, childAttr); err != nil {
		return dberrors.WrapDatabase(err, "failed to create child relationship attribute")
	}

	parentCol.Attributes = append(parentCol.Attributes, parentAttr)
	childCol.Attributes = append(childCol.Attributes, childAttr)

	if spec.RelationType == consts.RelationManyToMany {
		junctionAttrs := []attribute.Attribute{
			{ID: key, Key: key, Type: consts.AttributeString, Size: 255},
			{ID: twoWayKey, Key: twoWayKey, Type: consts.AttributeString, Size: 255},
		}
		junctionIndexes := []index.Index{
			{ID: key, Type: consts.IndexKey, Attributes: []string{key}, Lengths: []*int{nil}, Orders: []*string{nil}},
			{ID: twoWayKey, Type: consts.IndexKey, Attributes: []string{twoWayKey}, Lengths: []*int{nil}, Orders: []*string{nil}},
		}
		if err := m.adapter.CreateCollection(ctx, junctionID, junctionAttrs, junctionIndexes); err != nil {
			return dberrors.WrapDatabase(err, "failed to create junction collection")
		}
		junctionCol := &collection.Collection{ID: junctionID, Name: junctionID, Attributes: junctionAttrs, Indexes: junctionIndexes}
		if err := m.meta.Create(ctx, junctionCol); err != nil {
			return err
		}
	} else {
		if err := m.createBackingIndexes(ctx, collectionID, parentCol, spec.RelatedCollection, childCol, key, twoWayKey, spec); err != nil {
			return err
		}
	}

	if err := m.meta.Update(ctx, parentCol); err != nil {
		return err
	}
	if err := m.meta.Update(ctx, childCol); err != nil {
		return err
	}
	return nil
}

// createBackingIndexes issues the side-specific indexes from the variant
// table for oneToOne/oneToMany/manyToOne relationships.
func (m *Manager) createBackingIndexes(ctx context.Context, collectionID string, parentCol *collection.Collection, relatedID string, childCol *collection.Collection, key, twoWayKey string, spec RelationshipSpec) error {
	switch spec.RelationType {
	case consts.RelationOneToOne:
		idx := index.Index{ID: key, Type: consts.IndexUnique, Attributes: []string{key}, Lengths: []*int{nil}, Orders: []*string{nil}}
		if err := m.adapter.CreateIndex(ctx, collectionID, idx); err != nil {
			return dberrors.WrapDatabase(err, "failed to create parent-side unique index")
		}
		parentCol.Indexes = append(parentCol.Indexes, idx)
		if spec.TwoWay {
			cidx := index.Index{ID: twoWayKey, Type: consts.IndexUnique, Attributes: []string{twoWayKey}, Lengths: []*int{nil}, Orders: []*string{nil}}
			if err := m.adapter.CreateIndex(ctx, relatedID, cidx); err != nil {
				return dberrors.WrapDatabase(err, "failed to create child-side unique index")
			}
			childCol.Indexes = append(childCol.Indexes, cidx)
		}
	case consts.RelationOneToMany:
		cidx := index.Index{ID: twoWayKey, Type: consts.IndexKey, Attributes: []string{twoWayKey}, Lengths: []*int{nil}, Orders: []*string{nil}}
		if err := m.adapter.CreateIndex(ctx, relatedID, cidx); err != nil {
			return dberrors.WrapDatabase(err, "failed to create child-side key index")
		}
		childCol.Indexes = append(childCol.Indexes, cidx)
	case consts.RelationManyToOne:
		idx := index.Index{ID: key, Type: consts.IndexKey, Attributes: []string{key}, Lengths: []*int{nil}, Orders: []*string{nil}}
		if err := m.adapter.CreateIndex(ctx, collectionID, idx); err != nil {
			return dberrors.WrapDatabase(err, "failed to create parent-side key index")
		}
		parentCol.Indexes = append(parentCol.Indexes, idx)
	}
	return nil
}

func mirrorType(t consts.RelationType) consts.RelationType {
	switch t {
	case consts.RelationOneToMany:
		return consts.RelationManyToOne
	case consts.RelationManyToOne:
		return consts.RelationOneToMany
	default:
		return t
	}
}

// UpdateRelationship renames either side's key and/or toggles twoWay/
// onDelete. manyToMany's relation type itself is never changed.
func (m *Manager) UpdateRelationship(ctx context.Context, collectionID, key string, newKey string, twoWay bool, onDelete consts.OnDelete) error {
	parentCol, err := m.meta.Get(ctx, collectionID)
	if err != nil {
		return err
	}
	i := attrIndexByKey(parentCol.Attributes, key)
	if i < 0 || !parentCol.Attributes[i].IsRelationship() {
		return dberrors.NotFound("relationship %q not found on collection %q", key, collectionID)
	}
	rel := parentCol.Attributes[i].Relationship
	childCol, err := m.meta.Get(ctx, rel.RelatedCollection)
	if err != nil {
		return err
	}
	j := attrIndexByKey(childCol.Attributes, rel.TwoWayKey)
	if j < 0 {
		return dberrors.NotFound("relationship mirror %q not found on collection %q", rel.TwoWayKey, rel.RelatedCollection)
	}

	oldKey := key
	if len(newKey) > 0 && newKey != oldKey {
		if rel.RelationType != consts.RelationManyToMany {
			renamed := parentCol.Attributes[i]
			renamed.ID, renamed.Key = newKey, newKey
			if err := m.adapter.UpdateRelationship(ctx, collectionID, oldKey, renamed); err != nil {
				return dberrors.WrapDatabase(err, "failed to rename relationship attribute")
			}
		}
		for k := range parentCol.Indexes {
			parentCol.Indexes[k].RenameAttribute(oldKey, newKey)
		}
		parentCol.Attributes[i].ID = newKey
		parentCol.Attributes[i].Key = newKey
		childCol.Attributes[j].Relationship.TwoWayKey = newKey

		if rel.RelationType == consts.RelationManyToMany {
			if err := m.adapter.RenameAttribute(ctx, rel.Junction, oldKey, newKey); err != nil {
				return dberrors.WrapDatabase(err, "failed to rename junction attribute")
			}
		}
	}
	parentCol.Attributes[i].Relationship.TwoWay = twoWay
	parentCol.Attributes[i].Relationship.OnDelete = onDelete
	childCol.Attributes[j].Relationship.TwoWay = twoWay
	childCol.Attributes[j].Relationship.OnDelete = onDelete

	if err := m.meta.Update(ctx, parentCol); err != nil {
		return err
	}
	return m.meta.Update(ctx, childCol)
}

// DeleteRelationship removes both sides' attributes, drops side-specific
// indexes (and the junction collection for manyToMany), and updates both
// metadata documents.
func (m *Manager) DeleteRelationship(ctx context.Context, collectionID, key string) error {
	parentCol, err := m.meta.Get(ctx, collectionID)
	if err != nil {
		return err
	}
	i := attrIndexByKey(parentCol.Attributes, key)
	if i < 0 || !parentCol.Attributes[i].IsRelationship() {
		return dberrors.NotFound("relationship %q not found on collection %q", key, collectionID)
	}
	rel := parentCol.Attributes[i].Relationship

	childCol, err := m.meta.Get(ctx, rel.RelatedCollection)
	if err != nil {
		return err
	}
	j := attrIndexByKey(childCol.Attributes, rel.TwoWayKey)

	if err := m.pruneIndexesFor(ctx, parentCol, key); err != nil {
		return err
	}
	if err := m.adapter.DeleteRelationship(ctx, collectionID, parentCol.Attributes[i]); err != nil {
		return dberrors.WrapDatabase(err, "failed to delete parent relationship attribute")
	}
	parentCol.Attributes = append(parentCol.Attributes[:i], parentCol.Attributes[i+1:]...)

	if j >= 0 {
		if err := m.pruneIndexesFor(ctx, childCol, rel.TwoWayKey); err != nil {
			return err
		}
		if err := m.adapter.DeleteRelationship(ctx, rel.RelatedCollection, childCol.Attributes[j]); err != nil {
			return dberrors.WrapDatabase(err, "failed to delete child relationship attribute")
		}
		childCol.Attributes = append(childCol.Attributes[:j], childCol.Attributes[j+1:]...)
	}

	if rel.RelationType == consts.RelationManyToMany {
		if err := m.adapter.DropCollection(ctx, rel.Junction); err != nil {
			return dberrors.WrapDatabase(err, "failed to drop junction collection")
		}
		_ = m.meta.Delete(ctx, rel.Junction)
	}

	if err := m.meta.Update(ctx, parentCol); err != nil {
		return err
	}
	return m.meta.Update(ctx, childCol)
}

// pruneIndexesFor removes key from col's indexes and drops, through the
// adapter and from col's metadata, every index left with no attribute.
func (m *Manager) pruneIndexesFor(ctx context.Context, col *collection.Collection, key string) error {
	remaining := col.Indexes[:0]
	for _, idxDef := range col.Indexes {
		if idxDef.RemoveAttribute(key) {
			if err := m.adapter.DeleteIndex(ctx, col.ID, idxDef.ID); err != nil {
				return dberrors.WrapDatabase(err, "failed to drop relationship index")
			}
			continue
		}
		remaining = append(remaining, idxDef)
	}
	col.Indexes = remaining
	return nil
}

func attrIndexByID(attrs []attribute.Attribute, id string) int {
	for i, a := range attrs {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func attrIndexByKey(attrs []attribute.Attribute, key string) int {
	for i, a := range attrs {
		if a.Key == key {
			return i
		}
	}
	return -1
}

func containsAttr(attrs []string, key string) bool {
	for _, a := range attrs {
		if a == key {
			return true
		}
	}
	return false
}
