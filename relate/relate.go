// Package relate implements the relationship resolver described in spec
// section 4.3: populating relationship attributes on read, writing and
// diffing relationship values on create/update, and cascading deletes under
// onDelete policy — each guarded by its own stack so cyclic schemas
// (reflexive A<->A, symmetric A<->B/B<->A) terminate instead of recursing
// forever.
package relate

import (
	"context"

	"github.com/forbearing/docdb/attribute"
	"github.com/forbearing/docdb/collection"
	"github.com/forbearing/docdb/consts"
	"github.com/forbearing/docdb/dberrors"
	"github.com/forbearing/docdb/document"
	"github.com/forbearing/docdb/permission"
	"github.com/forbearing/docdb/query"
)

// DocStore is the subset of document-engine operations the resolver needs
// to perform nested upserts/fetches/deletes on related collections. The
// concrete engine implements this directly; the dependency runs this
// direction (relate -> DocStore interface, not relate -> engine) so the
// engine package can depend on relate without an import cycle.
type DocStore interface {
	Get(ctx context.Context, collectionID, id string) (*document.Document, error)
	Create(ctx context.Context, collectionID string, doc *document.Document) (*document.Document, error)
	Update(ctx context.Context, collectionID string, doc *document.Document) (*document.Document, error)
	Delete(ctx context.Context, collectionID, id string) error
	Find(ctx context.Context, collectionID string, q query.Set) ([]*document.Document, error)
	// MaterializeEdge records that ownerCollection/ownerID's populated shape
	// now embeds relatedCollection/relatedID, for reverse-edge cache purging.
	MaterializeEdge(ctx context.Context, ownerCollection, ownerID, relatedCollection, relatedID string)
}

// Resolver materializes, writes, and tears down relationship attributes.
type Resolver struct {
	store DocStore
}

// New returns a Resolver backed by store for nested document operations.
func New(store DocStore) *Resolver {
	return &Resolver{store: store}
}

// descriptor identifies one relationship attribute from the perspective of
// the collection that owns it.
type descriptor struct {
	collection   string
	key          string
	related      string
	twoWayKey    string
	relationType consts.RelationType
	side         consts.RelationSide
	twoWay       bool
	junction     string
}

func describe(collectionID string, attr attribute.Attribute) descriptor {
	rel := attr.Relationship
	return descriptor{
		collection: collectionID, key: attr.Key, related: rel.RelatedCollection,
		twoWayKey: rel.TwoWayKey, relationType: rel.RelationType, side: rel.Side, twoWay: rel.TwoWay,
		junction: rel.Junction,
	}
}

// reflexive, symmetric or transitive: the three skip tests from §4.3/§9.
func conflicts(d, other descriptor) bool {
	if d == other {
		return true // reflexive: identical descriptor already in flight
	}
	if d.related == other.collection && d.collection == other.related &&
		d.key == other.twoWayKey && d.twoWayKey == other.key {
		return true // symmetric: exact mirror of an in-progress descriptor
	}
	if d.key == other.twoWayKey && d.side != other.side {
		return true // transitive: would re-walk the edge that reached us
	}
	return false
}

type stateKey struct{}

type state struct {
	fetch  []descriptor
	write  []string
	delete []descriptor
	mapped map[string]bool
}

func stateFrom(ctx context.Context) (context.Context, *state) {
	if s, ok := ctx.Value(stateKey{}).(*state); ok {
		return ctx, s
	}
	s := &state{}
	return context.WithValue(ctx, stateKey{}, s), s
}

func skipFetch(d descriptor, active []descriptor) bool {
	for _, a := range active {
		if conflicts(d, a) {
			return true
		}
	}
	return false
}

// Populate materializes every relationship attribute on doc, which belongs
// to col, up to consts.RelationMaxDepth.
func (r *Resolver) Populate(ctx context.Context, col *collection.Collection, doc *document.Document) error {
	ctx, st := stateFrom(ctx)
	if len(st.fetch) >= consts.RelationMaxDepth {
		for _, attr := range col.Attributes {
			if attr.IsRelationship() {
				doc.Delete(attr.Key)
			}
		}
		return nil
	}

	for _, attr := range col.Attributes {
		if !attr.IsRelationship() {
			continue
		}
		d := describe(col.ID, attr)
		if d.side == consts.SideChild && !d.twoWay {
			doc.Delete(attr.Key)
			continue
		}
		if skipFetch(d, st.fetch) {
			doc.Delete(attr.Key)
			continue
		}
		st.fetch = append(st.fetch, d)
		err := r.populateOne(ctx, doc, attr, d)
		st.fetch = st.fetch[:len(st.fetch)-1]
		if err != nil {
			return err
		}
	}
	return nil
}

// mappedKey formats the "<A>:<id>=>B:<id>" pair spec section 4.3 describes
// as tracking materialized pairs, so a diamond-shaped schema never
// registers (or traverses) the same owner/related pair twice in one
// Populate tree.
func mappedKey(ownerCollection, ownerID, relatedCollection, relatedID string) string {
	return ownerCollection + ":" + ownerID + "=>" + relatedCollection + ":" + relatedID
}

// markMapped registers the owner/related pair in st.mapped and reports
// whether it was already present (caller should skip redundant work).
func markMapped(st *state, ownerCollection, ownerID, relatedCollection, relatedID string) bool {
	if st.mapped == nil {
		st.mapped = make(map[string]bool)
	}
	key := mappedKey(ownerCollection, ownerID, relatedCollection, relatedID)
	if st.mapped[key] {
		return true
	}
	st.mapped[key] = true
	return false
}

func (r *Resolver) populateOne(ctx context.Context, doc *document.Document, attr attribute.Attribute, d descriptor) error {
	_, st := stateFrom(ctx)
	switch d.relationType {
	case consts.RelationOneToOne, consts.RelationManyToOne:
		id, _ := doc.Get(attr.Key).(string)
		if len(id) == 0 {
			doc.Delete(attr.Key)
			return nil
		}
		if markMapped(st, d.collection, doc.ID(), d.related, id) {
			return nil
		}
		rel, err := r.store.Get(ctx, d.related, id)
		if err != nil {
			return err
		}
		if rel.IsEmpty() {
			doc.Delete(attr.Key)
		} else {
			doc.Set(attr.Key, rel)
			r.store.MaterializeEdge(ctx, d.collection, doc.ID(), d.related, id)
		}
		return nil

	case consts.RelationOneToMany:
		docs, err := r.store.Find(ctx, d.related, query.Set{query.Eq(d.twoWayKey, doc.ID())})
		if err != nil {
			return err
		}
		for _, child := range docs {
			child.Delete(d.twoWayKey)
			if markMapped(st, d.collection, doc.ID(), d.related, child.ID()) {
				continue
			}
			r.store.MaterializeEdge(ctx, d.collection, doc.ID(), d.related, child.ID())
		}
		doc.Set(attr.Key, docs)
		return nil

	case consts.RelationManyToMany:
		rows, err := r.store.Find(ctx, d.junction, query.Set{query.Eq(d.twoWayKey, doc.ID())})
		if err != nil {
			return err
		}
		related := make([]*document.Document, 0, len(rows))
		for _, row := range rows {
			relID, _ := row.Get(d.key).(string)
			if len(relID) == 0 {
				continue
			}
			if markMapped(st, d.collection, doc.ID(), d.related, relID) {
				continue
			}
			relDoc, err := r.store.Get(ctx, d.related, relID)
			if err != nil {
				return err
			}
			if !relDoc.IsEmpty() {
				related = append(related, relDoc)
				r.store.MaterializeEdge(ctx, d.collection, doc.ID(), d.related, relID)
			}
		}
		doc.Set(attr.Key, related)
		return nil
	}
	return nil
}

// isMany reports whether relationType carries an array of related docs on
// this side rather than at most one.
func isMany(t consts.RelationType) bool {
	return t == consts.RelationOneToMany || t == consts.RelationManyToMany
}

// WriteRelations processes every relationship attribute present in doc's
// payload (belonging to col), upserting/linking/unlinking related documents
// and junction rows per §4.3's create/update rules. old is nil on create.
func (r *Resolver) WriteRelations(ctx context.Context, col *collection.Collection, doc *document.Document, old *document.Document) error {
	ctx, st := stateFrom(ctx)
	if len(st.write) >= consts.RelationMaxDepth-1 {
		top := st.write[len(st.write)-1]
		for _, attr := range col.Attributes {
			if attr.IsRelationship() && attr.Relationship.RelatedCollection != top {
				doc.Delete(attr.Key)
			}
		}
	}

	st.write = append(st.write, col.ID)
	defer func() { st.write = st.write[:len(st.write)-1] }()

	for _, attr := range col.Attributes {
		if !attr.IsRelationship() || !doc.Has(attr.Key) {
			continue
		}
		if err := r.writeOne(ctx, doc, attr, old); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) writeOne(ctx context.Context, doc *document.Document, attr attribute.Attribute, old *document.Document) error {
	rel := attr.Relationship
	value := doc.Get(attr.Key)

	if isMany(rel.RelationType) {
		newIDs, newDocs, err := r.normalizeMany(ctx, value, attr)
		if err != nil {
			return err
		}
		var oldIDs []string
		if old != nil {
			oldIDs, _, _ = r.normalizeMany(ctx, old.Get(attr.Key), attr)
		}
		if err := r.diffMany(ctx, doc, attr, oldIDs, newIDs, newDocs); err != nil {
			return err
		}
		doc.Delete(attr.Key) // the array itself is never a physical column
		return nil
	}

	switch v := value.(type) {
	case nil:
		doc.Set(attr.Key, nil)
		return nil
	case *document.Document:
		linked, err := r.upsertRelated(ctx, rel.RelationType, rel.RelatedCollection, v, rel.TwoWayKey, doc.ID(), doc.Permissions())
		if err != nil {
			return err
		}
		doc.Set(attr.Key, linked.ID())
		return r.maybeBackfillTwoWay(ctx, attr, doc.ID(), linked.ID())
	case string:
		if len(v) == 0 {
			doc.Set(attr.Key, nil)
			return nil
		}
		return r.maybeBackfillTwoWay(ctx, attr, doc.ID(), v)
	default:
		return dberrors.Relationship("relationship %q expects a document or id, got %T", attr.Key, value)
	}
}

// maybeBackfillTwoWay writes selfID into related's twoWayKey when it isn't
// already set that way. Only oneToOne is backfilled: the mirror of a
// manyToOne attribute is a many side, which stores no id of its own and is
// populated from this side's key column instead. A related doc already claimed by a
// different parent raises Duplicate rather than silently being re-pointed
// (spec section 4.3, "Update relations": "Enforces uniqueness for oneToOne by
// pre-checking the related collection for an existing doc carrying the same
// twoWayKey and raising Duplicate when so"; testable property 4).
func (r *Resolver) maybeBackfillTwoWay(ctx context.Context, attr attribute.Attribute, selfID, relatedID string) error {
	rel := attr.Relationship
	if !rel.TwoWay || rel.RelationType != consts.RelationOneToOne || len(relatedID) == 0 {
		return nil
	}
	related, err := r.store.Get(ctx, rel.RelatedCollection, relatedID)
	if err != nil || related.IsEmpty() {
		return err
	}
	current := related.GetString(rel.TwoWayKey)
	if current == selfID {
		return nil
	}
	if rel.RelationType == consts.RelationOneToOne && len(current) > 0 {
		return dberrors.Duplicate("relationship %q: document %q in %q is already linked to %q", attr.Key, relatedID, rel.RelatedCollection, current)
	}
	related.Set(rel.TwoWayKey, selfID)
	_, err = r.store.Update(ctx, rel.RelatedCollection, related)
	return err
}

// normalizeMany resolves a oneToMany/manyToMany payload value into the set
// of related ids it names, plus any embedded sub-documents that still need
// upserting.
func (r *Resolver) normalizeMany(ctx context.Context, value any, attr attribute.Attribute) ([]string, []*document.Document, error) {
	var ids []string
	var docs []*document.Document
	switch v := value.(type) {
	case nil:
		return nil, nil, nil
	case []string:
		ids = append(ids, v...)
	case []any:
		for _, item := range v {
			switch x := item.(type) {
			case string:
				ids = append(ids, x)
			case *document.Document:
				docs = append(docs, x)
				if id := x.ID(); len(id) > 0 {
					ids = append(ids, id)
				}
			}
		}
	case []*document.Document:
		for _, x := range v {
			docs = append(docs, x)
			if id := x.ID(); len(id) > 0 {
				ids = append(ids, id)
			}
		}
	default:
		return nil, nil, dberrors.Relationship("relationship %q expects an array on a many side, got %T", attr.Key, value)
	}
	return ids, docs, nil
}

// diffMany applies set arithmetic between old and new related-id sets: new
// additions are linked/upserted, removed ids are unlinked.
func (r *Resolver) diffMany(ctx context.Context, doc *document.Document, attr attribute.Attribute, oldIDs, newIDs []string, newDocs []*document.Document) error {
	rel := attr.Relationship
	oldSet := toSet(oldIDs)
	newSet := toSet(newIDs)

	for id := range oldSet {
		if !newSet[id] {
			if err := r.unlink(ctx, doc, attr, id); err != nil {
				return err
			}
		}
	}

	byID := make(map[string]*document.Document, len(newDocs))
	for _, d := range newDocs {
		if id := d.ID(); len(id) > 0 {
			byID[id] = d
		}
	}
	for _, d := range newDocs {
		if len(d.ID()) > 0 {
			continue // resolved by id below
		}
		linked, err := r.upsertRelated(ctx, rel.RelationType, rel.RelatedCollection, d, rel.TwoWayKey, doc.ID(), doc.Permissions())
		if err != nil {
			return err
		}
		newSet[linked.ID()] = true
	}
	for id := range newSet {
		if oldSet[id] {
			continue
		}
		if err := r.link(ctx, doc, attr, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) link(ctx context.Context, doc *document.Document, attr attribute.Attribute, relatedID string) error {
	rel := attr.Relationship
	if rel.RelationType == consts.RelationManyToMany {
		return r.createJunctionRow(ctx, doc, attr, relatedID)
	}
	related, err := r.store.Get(ctx, rel.RelatedCollection, relatedID)
	if err != nil || related.IsEmpty() {
		return err
	}
	related.Set(rel.TwoWayKey, doc.ID())
	_, err = r.store.Update(ctx, rel.RelatedCollection, related)
	return err
}

func (r *Resolver) unlink(ctx context.Context, doc *document.Document, attr attribute.Attribute, relatedID string) error {
	rel := attr.Relationship
	if rel.RelationType == consts.RelationManyToMany {
		return r.deleteJunctionRow(ctx, doc, attr, relatedID)
	}
	related, err := r.store.Get(ctx, rel.RelatedCollection, relatedID)
	if err != nil || related.IsEmpty() {
		return err
	}
	related.Set(rel.TwoWayKey, nil)
	_, err = r.store.Update(ctx, rel.RelatedCollection, related)
	return err
}

func (r *Resolver) createJunctionRow(ctx context.Context, doc *document.Document, attr attribute.Attribute, relatedID string) error {
	rel := attr.Relationship
	row := document.New()
	row.Set(attr.Key, relatedID)
	row.Set(rel.TwoWayKey, doc.ID())
	row.SetPermissions([]string{
		permission.New(consts.ActionRead, consts.RoleAny),
		permission.New(consts.ActionUpdate, consts.RoleAny),
		permission.New(consts.ActionDelete, consts.RoleAny),
	})
	_, err := r.store.Create(ctx, rel.Junction, row)
	return err
}

func (r *Resolver) deleteJunctionRow(ctx context.Context, doc *document.Document, attr attribute.Attribute, relatedID string) error {
	rel := attr.Relationship
	rows, err := r.store.Find(ctx, rel.Junction, query.Set{query.Eq(rel.TwoWayKey, doc.ID()), query.Eq(attr.Key, relatedID)})
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := r.store.Delete(ctx, rel.Junction, row.ID()); err != nil {
			return err
		}
	}
	return nil
}

// upsertRelated creates sub when it has no id, or patches the differing
// attributes of an existing related doc otherwise; it always writes
// twoWayKey=selfID into the related row before returning it. For oneToOne,
// an existing related doc already linked to a different parent raises
// Duplicate instead of being silently re-pointed (spec section 4.3, testable
// property 4).
func (r *Resolver) upsertRelated(ctx context.Context, relType consts.RelationType, relatedCollection string, sub *document.Document, twoWayKey, selfID string, inheritedPerms []string) (*document.Document, error) {
	if id := sub.ID(); len(id) > 0 {
		existing, err := r.store.Get(ctx, relatedCollection, id)
		if err != nil {
			return nil, err
		}
		if existing.IsEmpty() {
			sub.Set(twoWayKey, selfID)
			if len(sub.Permissions()) == 0 {
				sub.SetPermissions(inheritedPerms)
			}
			return r.store.Create(ctx, relatedCollection, sub)
		}
		if relType == consts.RelationOneToOne {
			if current := existing.GetString(twoWayKey); len(current) > 0 && current != selfID {
				return nil, dberrors.Duplicate("relationship: document %q in %q is already linked to %q", id, relatedCollection, current)
			}
		}
		for _, key := range sub.AttributeKeys() {
			existing.Set(key, sub.Get(key))
		}
		existing.Set(twoWayKey, selfID)
		return r.store.Update(ctx, relatedCollection, existing)
	}
	sub.Set(twoWayKey, selfID)
	if len(sub.Permissions()) == 0 {
		sub.SetPermissions(inheritedPerms)
	}
	return r.store.Create(ctx, relatedCollection, sub)
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

// DeleteRelations enforces onDelete policy for every relationship attribute
// on col before the caller drops doc's own row.
func (r *Resolver) DeleteRelations(ctx context.Context, col *collection.Collection, doc *document.Document) error {
	ctx, st := stateFrom(ctx)

	for _, attr := range col.Attributes {
		if !attr.IsRelationship() {
			continue
		}
		rel := attr.Relationship
		d := describe(col.ID, attr)
		if skipDelete(d, st.delete) {
			continue
		}
		st.delete = append(st.delete, d)
		err := r.deleteOne(ctx, col, doc, attr, rel)
		st.delete = st.delete[:len(st.delete)-1]
		if err != nil {
			return err
		}
	}
	return nil
}

func skipDelete(d descriptor, active []descriptor) bool {
	for _, a := range active {
		if conflicts(d, a) {
			return true
		}
	}
	return false
}

func (r *Resolver) deleteOne(ctx context.Context, col *collection.Collection, doc *document.Document, attr attribute.Attribute, rel *attribute.RelationshipOptions) error {
	related, err := r.relatedDocs(ctx, col, doc, attr, rel)
	if err != nil {
		return err
	}

	switch rel.OnDelete {
	case consts.OnDeleteRestrict:
		if len(related) > 0 {
			return dberrors.Restricted("collection %q has related documents in %q via %q", col.ID, rel.RelatedCollection, attr.Key)
		}
		return nil

	case consts.OnDeleteSetNull:
		for _, rd := range related {
			if rel.RelationType == consts.RelationManyToMany {
				if err := r.deleteJunctionRow(ctx, doc, attr, rd.ID()); err != nil {
					return err
				}
				continue
			}
			rd.Set(rel.TwoWayKey, nil)
			if _, err := r.store.Update(ctx, rel.RelatedCollection, rd); err != nil {
				return err
			}
		}
		return nil

	case consts.OnDeleteCascade:
		for _, rd := range related {
			if rel.RelationType == consts.RelationManyToMany {
				if err := r.deleteJunctionRow(ctx, doc, attr, rd.ID()); err != nil {
					return err
				}
			}
			if err := r.store.Delete(ctx, rel.RelatedCollection, rd.ID()); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

// relatedDocs loads every document currently related to doc through attr,
// regardless of relation type/side, for onDelete evaluation.
func (r *Resolver) relatedDocs(ctx context.Context, col *collection.Collection, doc *document.Document, attr attribute.Attribute, rel *attribute.RelationshipOptions) ([]*document.Document, error) {
	switch rel.RelationType {
	case consts.RelationOneToOne, consts.RelationManyToOne:
		id, _ := doc.Get(attr.Key).(string)
		if len(id) == 0 {
			return nil, nil
		}
		d, err := r.store.Get(ctx, rel.RelatedCollection, id)
		if err != nil || d.IsEmpty() {
			return nil, err
		}
		return []*document.Document{d}, nil

	case consts.RelationOneToMany:
		return r.store.Find(ctx, rel.RelatedCollection, query.Set{query.Eq(rel.TwoWayKey, doc.ID())})

	case consts.RelationManyToMany:
		rows, err := r.store.Find(ctx, rel.Junction, query.Set{query.Eq(rel.TwoWayKey, doc.ID())})
		if err != nil {
			return nil, err
		}
		out := make([]*document.Document, 0, len(rows))
		for _, row := range rows {
			relID, _ := row.Get(attr.Key).(string)
			if len(relID) == 0 {
				continue
			}
			rd, err := r.store.Get(ctx, rel.RelatedCollection, relID)
			if err != nil {
				return nil, err
			}
			if !rd.IsEmpty() {
				out = append(out, rd)
			}
		}
		return out, nil
	}
	return nil, nil
}
