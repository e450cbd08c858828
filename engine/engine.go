// Package engine implements the Document engine described in spec section
// 4.1: the public create/read/update/delete contract, encode/decode/cast,
// cache coherence, authorization, and events, wired against the adapter,
// cache, metadata catalog, filter registry, and relationship resolver.
package engine

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/forbearing/docdb/adapter"
	"github.com/forbearing/docdb/attribute"
	"github.com/forbearing/docdb/cache"
	"github.com/forbearing/docdb/cachekey"
	"github.com/forbearing/docdb/collection"
	"github.com/forbearing/docdb/consts"
	"github.com/forbearing/docdb/dberrors"
	"github.com/forbearing/docdb/document"
	"github.com/forbearing/docdb/events"
	"github.com/forbearing/docdb/filter"
	"github.com/forbearing/docdb/logger"
	"github.com/forbearing/docdb/metadata"
	"github.com/forbearing/docdb/permission"
	"github.com/forbearing/docdb/query"
	"github.com/forbearing/docdb/relate"
	"github.com/forbearing/docdb/schema"
	"github.com/forbearing/docdb/validate"
)

// Engine is the document lifecycle orchestrator. One Engine value owns one
// cache namer, one event bus, one permission scope, and one relationship
// resolver; it borrows the adapter and cache by reference (spec design note
// "Ownership"). It is not safe for concurrent writes against overlapping
// relationship stacks; callers wanting concurrency run multiple Engine
// values or serialize writes externally (spec section 5).
type Engine struct {
	adapter  adapter.Adapter
	meta     *metadata.Store
	schema   *schema.Manager
	cache    cache.Cache
	namer    cachekey.Namer
	registry *collection.Registry
	bus      *events.Bus
	scope    *permission.Scope
	filters  *filter.Registry
	relate   *relate.Resolver
	cacheTTL int
}

// Option configures a new Engine.
type Option func(*Engine)

// WithCache attaches a read-through cache backend.
func WithCache(c cache.Cache) Option { return func(e *Engine) { e.cache = c } }

// WithCacheTTL overrides the default cache TTL (consts.DefaultCacheTTL).
func WithCacheTTL(seconds int) Option { return func(e *Engine) { e.cacheTTL = seconds } }

// WithEventBus attaches a caller-supplied bus instead of a private one,
// letting multiple Engines (e.g. across tenants) share one listener set.
func WithEventBus(b *events.Bus) Option { return func(e *Engine) { e.bus = b } }

// WithFilters overrides the per-instance filter registry overlay.
func WithFilters(r *filter.Registry) Option { return func(e *Engine) { e.filters = r } }

// WithCollectionRegistry attaches the global-collections registry used to
// decide whether a collection's cache keys are tenant-scoped.
func WithCollectionRegistry(r *collection.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// New returns an Engine bound to adapter a and metadata store meta, with
// namer deriving its cache keys.
func New(a adapter.Adapter, meta *metadata.Store, namer cachekey.Namer, opts ...Option) *Engine {
	e := &Engine{
		adapter:  a,
		meta:     meta,
		namer:    namer,
		schema:   schema.NewManager(a, meta),
		bus:      events.New(),
		scope:    permission.NewScope(),
		filters:  filter.NewInstance(),
		registry: collection.NewRegistry(),
		cacheTTL: consts.DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.relate = relate.New(e)
	return e
}

// Schema returns the bound attribute/index/relationship manager.
func (e *Engine) Schema() *schema.Manager { return e.schema }

// Bus returns the event bus listeners register against.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Registry returns the global-collections registry.
func (e *Engine) Registry() *collection.Registry { return e.registry }

// Skip runs fn with authorization checks bypassed for every call the engine
// makes on fn's behalf, restoring the previous state on exit (spec sections
// 4.5 and 9, "skip" scope).
func (e *Engine) Skip(fn func() error) error {
	return e.scope.Skip(fn)
}

// Silent runs fn with event delivery suppressed for the named events (or
// every event, if none are named), per the "silent" scope.
func (e *Engine) Silent(fn func(), eventNames ...string) {
	e.bus.Silent(fn, eventNames...)
}

// requestTimestampKey scopes the optimistic-concurrency fence to a context
// value (spec section 5: "withRequestTimestamp(ts, callback)").
type requestTimestampKey struct{}

// WithRequestTimestamp attaches an optimistic-concurrency fence: an
// update/delete/increase/decrease against a document whose $updatedAt is
// newer than ts fails with Conflict.
func WithRequestTimestamp(ctx context.Context, ts time.Time) context.Context {
	return context.WithValue(ctx, requestTimestampKey{}, ts)
}

func requestTimestamp(ctx context.Context) (time.Time, bool) {
	ts, ok := ctx.Value(requestTimestampKey{}).(time.Time)
	return ts, ok
}

func newID() string        { return xid.New().String() }
func newInternalID() string { return uuid.NewString() }

func (e *Engine) collectionByID(ctx context.Context, collectionID string) (*collection.Collection, error) {
	return e.meta.Get(ctx, collectionID)
}

// --- authorization ---

func (e *Engine) authorize(_ context.Context, action consts.Action, roles permission.Roles, col *collection.Collection, doc *document.Document) error {
	if e.scope.Skipped() || permission.IsMetadataCollection(col.ID) {
		return nil
	}
	var docPerms []string
	if doc != nil {
		docPerms = doc.Permissions()
	}
	if permission.Authorize(action, roles, col.Permissions, col.DocumentSecurity, docPerms) {
		return nil
	}
	return dberrors.Authorization("role(s) %v lack %q on collection %q", []string(roles), action, col.ID)
}

// --- encode/decode/cast ---

func (e *Engine) filterContext(ctx context.Context, doc *document.Document) *filter.Context {
	return &filter.Context{
		Document: doc.ToMap(),
		Resolve: func(collectionID, id string) (map[string]any, error) {
			rel, err := e.Get(ctx, collectionID, id)
			if err != nil {
				return nil, err
			}
			return rel.ToMap(), nil
		},
	}
}

func (e *Engine) encodeDocument(ctx context.Context, col *collection.Collection, doc *document.Document) error {
	fctx := e.filterContext(ctx, doc)
	for _, attr := range col.Attributes {
		if attr.IsRelationship() || len(attr.Filters) == 0 || !doc.Has(attr.Key) {
			continue
		}
		encoded, err := e.filters.Encode(attr.Filters, doc.Get(attr.Key), fctx)
		if err != nil {
			return err
		}
		doc.Set(attr.Key, encoded)
	}
	return nil
}

func (e *Engine) decodeDocument(ctx context.Context, col *collection.Collection, doc *document.Document) error {
	supportsCasting := e.adapter.GetSupportForCasting()
	fctx := e.filterContext(ctx, doc)
	for _, attr := range col.Attributes {
		if attr.IsRelationship() || !doc.Has(attr.Key) {
			continue
		}
		value := doc.Get(attr.Key)
		if len(attr.Filters) > 0 {
			decoded, err := e.filters.Decode(attr.Filters, value, fctx)
			if err != nil {
				return err
			}
			value = decoded
		}
		doc.Set(attr.Key, castValue(attr, value, supportsCasting))
	}
	return nil
}

// castValue coerces a value read back from an adapter lacking native type
// support (spec section 6, adapter flag getSupportForCasting) to the Go
// type its AttributeType implies.
func castValue(attr attribute.Attribute, value any, supportsCasting bool) any {
	if supportsCasting || value == nil {
		return value
	}
	switch attr.Type {
	case consts.AttributeInteger:
		switch v := value.(type) {
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	case consts.AttributeFloat:
		switch v := value.(type) {
		case int64:
			return float64(v)
		case int:
			return float64(v)
		}
	case consts.AttributeBoolean:
		switch v := value.(type) {
		case int64:
			return v != 0
		case int:
			return v != 0
		}
	}
	return value
}

// --- cache coherence (spec section 4.4) ---

func (e *Engine) tenantFor(col *collection.Collection) *int {
	if e.registry != nil && e.registry.IsGlobal(col.ID) {
		return nil
	}
	return col.Tenant
}

// docHasPopulatedRelation reports whether doc's materialized shape actually
// embeds a related document or document slice, as opposed to merely
// belonging to a collection whose schema happens to declare a relationship
// attribute that is null/absent on this particular doc.
func docHasPopulatedRelation(doc *document.Document) bool {
	for _, key := range doc.AttributeKeys() {
		switch doc.Get(key).(type) {
		case *document.Document, []*document.Document:
			return true
		}
	}
	return false
}

func (e *Engine) loadCached(ctx context.Context, col *collection.Collection, id string, selects []string) (*document.Document, bool) {
	if e.cache == nil {
		return nil, false
	}
	tenant := e.tenantFor(col)
	docKey := e.namer.DocumentKey(tenant, col.ID, id)
	hashKey := e.namer.HashKey(tenant, col.ID, id, selects)
	blob, err := e.cache.Load(ctx, docKey, e.cacheTTL, hashKey)
	if err != nil {
		logger.Cache.Warnw("cache load failed, treating as miss", "error", err, "key", docKey)
		return nil, false
	}
	if len(blob) == 0 {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(blob, &m); err != nil {
		logger.Cache.Warnw("cache blob unmarshal failed, treating as miss", "error", err, "key", docKey)
		return nil, false
	}
	return document.NewFromMap(m), true
}

// saveCache writes doc under its hash key and registers the parent link, per
// the "empty" marker convention (design note 9c). It never persists a cache
// entry for a doc whose materialized shape actually embeds a populated
// relation, matching scenario 7: get does not cache a doc whose shape
// includes populated relations.
func (e *Engine) saveCache(ctx context.Context, col *collection.Collection, doc *document.Document, selects []string) {
	if e.cache == nil || docHasPopulatedRelation(doc) {
		return
	}
	tenant := e.tenantFor(col)
	collKey := e.namer.CollectionKey(tenant, col.ID)
	docKey := e.namer.DocumentKey(tenant, col.ID, doc.ID())
	hashKey := e.namer.HashKey(tenant, col.ID, doc.ID(), selects)
	blob, err := json.Marshal(doc.ToMap())
	if err != nil {
		logger.Cache.Warnw("cache marshal failed", "error", err)
		return
	}
	if err := e.cache.Save(ctx, hashKey, blob, docKey); err != nil {
		logger.Cache.Warnw("cache save failed", "error", err, "key", hashKey)
		return
	}
	if err := e.cache.Save(ctx, docKey, []byte("empty"), collKey); err != nil {
		logger.Cache.Warnw("cache parent-link save failed", "error", err, "key", docKey)
	}
}

func (e *Engine) purgeDocument(ctx context.Context, col *collection.Collection, id string) {
	if e.cache == nil {
		return
	}
	tenant := e.tenantFor(col)
	collKey := e.namer.CollectionKey(tenant, col.ID)
	docKey := e.namer.DocumentKey(tenant, col.ID, id)
	if err := e.cache.Purge(ctx, docKey, collKey); err != nil {
		logger.Cache.Warnw("cache purge failed", "error", err, "key", docKey)
	}
	relKey := cachekey.RelatedDocKey(col.ID, id)
	related, err := e.cache.List(ctx, relKey)
	if err != nil {
		return
	}
	for _, k := range related {
		if err := e.cache.Purge(ctx, k, ""); err != nil {
			logger.Cache.Warnw("cache related-doc purge failed", "error", err, "key", k)
		}
	}
}

// MaterializeEdge records that ownerCollection/ownerID's materialized shape
// now embeds relatedCollection/relatedID, so a later write to the related
// doc purges the owner's cache entry too (spec section 4.4's "related docs"
// reverse-edge map). Called by the relationship resolver during Populate;
// a no-op when caching is disabled.
func (e *Engine) MaterializeEdge(ctx context.Context, ownerCollection, ownerID, relatedCollection, relatedID string) {
	if e.cache == nil {
		return
	}
	ownerCol, err := e.collectionByID(ctx, ownerCollection)
	if err != nil {
		return
	}
	tenant := e.tenantFor(ownerCol)
	ownerDocKey := e.namer.DocumentKey(tenant, ownerCollection, ownerID)
	relKey := cachekey.RelatedDocKey(relatedCollection, relatedID)
	if err := e.cache.Save(ctx, ownerDocKey, []byte("empty"), relKey); err != nil {
		logger.Cache.Warnw("related-doc edge save failed", "error", err, "key", ownerDocKey)
	}
}

func (e *Engine) purgeCollection(ctx context.Context, col *collection.Collection) {
	if e.cache == nil {
		return
	}
	tenant := e.tenantFor(col)
	collKey := e.namer.CollectionKey(tenant, col.ID)
	keys, err := e.cache.List(ctx, collKey)
	if err != nil {
		return
	}
	for _, k := range keys {
		if err := e.cache.Purge(ctx, k, collKey); err != nil {
			logger.Cache.Warnw("cache collection purge failed", "error", err, "key", k)
		}
	}
}

// --- select projection ---

// applySelect narrows doc to the attributes named in selects (dotted paths
// restrict nested relationship docs), always keeping system fields. A nil
// selects list returns doc unchanged.
func applySelect(doc *document.Document, selects []string) *document.Document {
	if doc.IsEmpty() || len(selects) == 0 {
		return doc
	}
	out := document.New()
	out.SetID(doc.ID())
	out.SetInternalID(doc.InternalID())
	out.SetCollection(doc.Collection())
	out.SetCreatedAt(doc.CreatedAt())
	out.SetUpdatedAt(doc.UpdatedAt())
	out.SetPermissions(doc.Permissions())
	if tenant, ok := doc.Tenant(); ok {
		out.SetTenant(tenant)
	}
	nested := make(map[string][]string)
	for _, sel := range selects {
		parts := strings.SplitN(sel, ".", 2)
		if len(parts) == 1 {
			if doc.Has(parts[0]) {
				out.Set(parts[0], doc.Get(parts[0]))
			}
			continue
		}
		nested[parts[0]] = append(nested[parts[0]], parts[1])
	}
	for key, sub := range nested {
		switch v := doc.Get(key).(type) {
		case *document.Document:
			out.Set(key, applySelect(v, sub))
		case []*document.Document:
			projected := make([]*document.Document, len(v))
			for i, item := range v {
				projected[i] = applySelect(item, sub)
			}
			out.Set(key, projected)
		}
	}
	return out
}

// --- raw (authorization-free) document pipeline, shared by the public API
// and relate.DocStore ---

func (e *Engine) get(ctx context.Context, col *collection.Collection, id string, q query.Set) (*document.Document, error) {
	doc, err := e.adapter.GetDocument(ctx, col.ID, id, q, false)
	if err != nil {
		return nil, dberrors.WrapAdapter(err, "failed to load document")
	}
	if doc.IsEmpty() {
		return doc, nil
	}
	if err := e.decodeDocument(ctx, col, doc); err != nil {
		return nil, err
	}
	if err := e.relate.Populate(ctx, col, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// create wraps the whole create path — nested relationship resolution, the
// row insert, and re-population — in a single transaction (spec section 4.1:
// "wraps the whole path in a transaction"), so a failed insert never leaves
// nested related documents committed on their own.
func (e *Engine) create(ctx context.Context, col *collection.Collection, doc *document.Document) (*document.Document, error) {
	var created *document.Document
	err := e.adapter.WithTransaction(ctx, func(txCtx context.Context) error {
		if len(doc.ID()) == 0 {
			doc.SetID(newID())
		}
		doc.SetInternalID(newInternalID())
		doc.SetCollection(col.ID)
		now := time.Now().UTC()
		doc.SetCreatedAt(now)
		doc.SetUpdatedAt(now)

		if err := validate.Structure(doc.ToMap(), *col, false); err != nil {
			return err
		}
		if err := e.relate.WriteRelations(txCtx, col, doc, nil); err != nil {
			return err
		}
		if err := e.encodeDocument(txCtx, col, doc); err != nil {
			return err
		}
		row, err := e.adapter.CreateDocument(txCtx, col.ID, doc)
		if err != nil {
			return dberrors.WrapAdapter(err, "failed to create document")
		}
		if err := e.decodeDocument(txCtx, col, row); err != nil {
			return err
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.purgeDocument(ctx, col, created.ID())
	e.bus.Emit(consts.EventDocumentCreate, col.ID, created)
	return created, nil
}

// update wraps relationship diffing and the row update in one transaction,
// matching updateDocument's transactional contract.
func (e *Engine) update(ctx context.Context, col *collection.Collection, old, doc *document.Document) (*document.Document, error) {
	var updated *document.Document
	err := e.adapter.WithTransaction(ctx, func(txCtx context.Context) error {
		doc.SetCollection(col.ID)
		doc.SetUpdatedAt(time.Now().UTC())

		if err := validate.Structure(doc.ToMap(), *col, true); err != nil {
			return err
		}
		if err := e.relate.WriteRelations(txCtx, col, doc, old); err != nil {
			return err
		}
		if err := e.encodeDocument(txCtx, col, doc); err != nil {
			return err
		}
		row, err := e.adapter.UpdateDocument(txCtx, col.ID, doc)
		if err != nil {
			return dberrors.WrapAdapter(err, "failed to update document")
		}
		if err := e.decodeDocument(txCtx, col, row); err != nil {
			return err
		}
		updated = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.purgeDocument(ctx, col, updated.ID())
	e.bus.Emit(consts.EventDocumentUpdate, col.ID, updated)
	return updated, nil
}

// delete wraps onDelete relationship cleanup and the row delete in one
// transaction, so a restrict/cascade failure never leaves a partially
// unlinked relationship graph behind.
func (e *Engine) delete(ctx context.Context, col *collection.Collection, doc *document.Document) error {
	err := e.adapter.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.relate.DeleteRelations(txCtx, col, doc); err != nil {
			return err
		}
		if err := e.adapter.DeleteDocument(txCtx, col.ID, doc.ID()); err != nil {
			return dberrors.WrapAdapter(err, "failed to delete document")
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.purgeDocument(ctx, col, doc.ID())
	e.bus.Emit(consts.EventDocumentDelete, col.ID, doc)
	return nil
}

func (e *Engine) find(ctx context.Context, col *collection.Collection, q query.Set) ([]*document.Document, error) {
	docs, err := e.adapter.Find(ctx, col.ID, q)
	if err != nil {
		return nil, dberrors.WrapAdapter(err, "failed to find documents")
	}
	for _, doc := range docs {
		if err := e.decodeDocument(ctx, col, doc); err != nil {
			return nil, err
		}
		if err := e.relate.Populate(ctx, col, doc); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// --- relate.DocStore: authorization-free, cache-aware primitives used for
// nested relationship traversal and cache warm-up (spec section 4.5's skip
// scope covers exactly this usage) ---

// Get loads collectionID/id, through the cache when available.
func (e *Engine) Get(ctx context.Context, collectionID, id string) (*document.Document, error) {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if cached, ok := e.loadCached(ctx, col, id, nil); ok {
		return cached, nil
	}
	doc, err := e.get(ctx, col, id, nil)
	if err != nil {
		return nil, err
	}
	if !doc.IsEmpty() {
		e.saveCache(ctx, col, doc, nil)
	}
	return doc, nil
}

// Create persists doc into collectionID without an authorization check.
func (e *Engine) Create(ctx context.Context, collectionID string, doc *document.Document) (*document.Document, error) {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	return e.create(ctx, col, doc)
}

// Update persists doc's full state as collectionID's new row for its id,
// without an authorization check.
func (e *Engine) Update(ctx context.Context, collectionID string, doc *document.Document) (*document.Document, error) {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	return e.update(ctx, col, nil, doc)
}

// Delete removes collectionID/id without an authorization check.
func (e *Engine) Delete(ctx context.Context, collectionID, id string) error {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return err
	}
	doc, err := e.get(ctx, col, id, nil)
	if err != nil {
		return err
	}
	if doc.IsEmpty() {
		return nil
	}
	return e.delete(ctx, col, doc)
}

// Find executes q against collectionID without an authorization check.
func (e *Engine) Find(ctx context.Context, collectionID string, q query.Set) ([]*document.Document, error) {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	return e.find(ctx, col, q)
}

// --- public API (spec section 4.1) ---

// CreateDocument validates, writes, and resolves relationships for doc in
// collectionID, subject to roles' create authorization.
func (e *Engine) CreateDocument(ctx context.Context, collectionID string, doc *document.Document, roles permission.Roles) (*document.Document, error) {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, consts.ActionCreate, roles, col, doc); err != nil {
		return nil, err
	}
	return e.create(ctx, col, doc)
}

// CreateDocuments batch-creates docs in a single transaction, emitting one
// aggregate documents.create event (spec section 4.1: "same semantics per
// document; single transaction").
func (e *Engine) CreateDocuments(ctx context.Context, collectionID string, docs []*document.Document, roles permission.Roles) ([]*document.Document, error) {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if err := e.authorize(ctx, consts.ActionCreate, roles, col, doc); err != nil {
			return nil, err
		}
	}
	var created []*document.Document
	err = e.adapter.WithTransaction(ctx, func(txCtx context.Context) error {
		now := time.Now().UTC()
		for _, doc := range docs {
			if len(doc.ID()) == 0 {
				doc.SetID(newID())
			}
			doc.SetInternalID(newInternalID())
			doc.SetCollection(col.ID)
			doc.SetCreatedAt(now)
			doc.SetUpdatedAt(now)
			if err := validate.Structure(doc.ToMap(), *col, false); err != nil {
				return err
			}
			if err := e.relate.WriteRelations(txCtx, col, doc, nil); err != nil {
				return err
			}
			if err := e.encodeDocument(txCtx, col, doc); err != nil {
				return err
			}
		}
		rows, err := e.adapter.CreateDocuments(txCtx, col.ID, docs, consts.DefaultBatchSize)
		if err != nil {
			return dberrors.WrapAdapter(err, "failed to batch-create documents")
		}
		for _, doc := range rows {
			if err := e.decodeDocument(txCtx, col, doc); err != nil {
				return err
			}
		}
		created = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.purgeCollection(ctx, col)
	e.bus.Emit(consts.EventDocumentsCreate, col.ID, created)
	return created, nil
}

// GetDocument loads collectionID/id (through the cache when available),
// applies q's select projection, subject to roles' read authorization.
func (e *Engine) GetDocument(ctx context.Context, collectionID, id string, q query.Set, roles permission.Roles) (*document.Document, error) {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	selects := q.SelectAttrs()
	if cached, ok := e.loadCached(ctx, col, id, selects); ok {
		if err := e.authorize(ctx, consts.ActionRead, roles, col, cached); err != nil {
			return nil, err
		}
		e.bus.Emit(consts.EventDocumentRead, col.ID, cached)
		return applySelect(cached, selects), nil
	}
	doc, err := e.get(ctx, col, id, q)
	if err != nil {
		return nil, err
	}
	if doc.IsEmpty() {
		return doc, nil
	}
	if err := e.authorize(ctx, consts.ActionRead, roles, col, doc); err != nil {
		return nil, err
	}
	e.saveCache(ctx, col, doc, selects)
	e.bus.Emit(consts.EventDocumentRead, col.ID, doc)
	return applySelect(doc, selects), nil
}

// UpdateDocument merges doc's attributes onto the persisted document (a
// patch, not a replace), subject to roles' update authorization and any
// optimistic-concurrency fence set via WithRequestTimestamp.
func (e *Engine) UpdateDocument(ctx context.Context, collectionID string, doc *document.Document, roles permission.Roles) (*document.Document, error) {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	existing, err := e.get(ctx, col, doc.ID(), nil)
	if err != nil {
		return nil, err
	}
	if existing.IsEmpty() {
		return nil, dberrors.NotFound("document %q not found in collection %q", doc.ID(), col.ID)
	}
	if err := e.authorize(ctx, consts.ActionUpdate, roles, col, existing); err != nil {
		return nil, err
	}
	if ts, ok := requestTimestamp(ctx); ok && existing.UpdatedAt().After(ts) {
		return nil, dberrors.Conflict("document %q was modified after the request timestamp", doc.ID())
	}
	old := existing.Clone()
	merged := existing
	for _, key := range doc.Keys() {
		merged.Set(key, doc.Get(key))
	}
	return e.update(ctx, col, old, merged)
}

// UpdateDocuments applies updates to every document matched by q.
func (e *Engine) UpdateDocuments(ctx context.Context, collectionID string, q query.Set, updates map[string]any, roles permission.Roles) (int, error) {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return 0, err
	}
	if err := e.authorize(ctx, consts.ActionUpdate, roles, col, nil); err != nil {
		return 0, err
	}
	n, err := e.adapter.UpdateDocuments(ctx, col.ID, q, updates, consts.DefaultBatchSize)
	if err != nil {
		return 0, dberrors.WrapAdapter(err, "failed to batch-update documents")
	}
	e.purgeCollection(ctx, col)
	e.bus.Emit(consts.EventDocumentsUpdate, col.ID, n)
	return n, nil
}

// DeleteDocument removes collectionID/id, enforcing onDelete policy on its
// relationship attributes first. Deleting an absent document is a no-op,
// matching the "get after delete returns empty" invariant.
func (e *Engine) DeleteDocument(ctx context.Context, collectionID, id string, roles permission.Roles) error {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return err
	}
	doc, err := e.get(ctx, col, id, nil)
	if err != nil {
		return err
	}
	if doc.IsEmpty() {
		return nil
	}
	if err := e.authorize(ctx, consts.ActionDelete, roles, col, doc); err != nil {
		return err
	}
	if ts, ok := requestTimestamp(ctx); ok && doc.UpdatedAt().After(ts) {
		return dberrors.Conflict("document %q was modified after the request timestamp", id)
	}
	return e.delete(ctx, col, doc)
}

// DeleteDocuments removes every document matched by q.
func (e *Engine) DeleteDocuments(ctx context.Context, collectionID string, q query.Set, roles permission.Roles) (int, error) {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return 0, err
	}
	if err := e.authorize(ctx, consts.ActionDelete, roles, col, nil); err != nil {
		return 0, err
	}
	n, err := e.adapter.DeleteDocuments(ctx, col.ID, q, consts.DefaultBatchSize)
	if err != nil {
		return 0, dberrors.WrapAdapter(err, "failed to batch-delete documents")
	}
	e.purgeCollection(ctx, col)
	e.bus.Emit(consts.EventDocumentsDelete, col.ID, n)
	return n, nil
}

// IncreaseDocumentAttribute atomically adds value to attr. When max is
// non-nil and the result would exceed it, nothing is written and a Conflict
// error is returned.
func (e *Engine) IncreaseDocumentAttribute(ctx context.Context, collectionID, id, attr string, value float64, max *float64, roles permission.Roles) error {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return err
	}
	doc, err := e.get(ctx, col, id, nil)
	if err != nil {
		return err
	}
	if doc.IsEmpty() {
		return dberrors.NotFound("document %q not found in collection %q", id, col.ID)
	}
	if err := e.authorize(ctx, consts.ActionUpdate, roles, col, doc); err != nil {
		return err
	}
	var fence *time.Time
	if ts, ok := requestTimestamp(ctx); ok {
		fence = &ts
	}
	if err := e.adapter.IncreaseDocumentAttribute(ctx, col.ID, id, attr, value, max, fence); err != nil {
		return dberrors.WrapAdapter(err, "failed to increase document attribute")
	}
	e.purgeDocument(ctx, col, id)
	e.bus.Emit(consts.EventDocumentIncrease, col.ID, doc)
	return nil
}

// DecreaseDocumentAttribute atomically subtracts value from attr. When min
// is non-nil and the result would fall below it, nothing is written and a
// Conflict error is returned.
func (e *Engine) DecreaseDocumentAttribute(ctx context.Context, collectionID, id, attr string, value float64, min *float64, roles permission.Roles) error {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return err
	}
	doc, err := e.get(ctx, col, id, nil)
	if err != nil {
		return err
	}
	if doc.IsEmpty() {
		return dberrors.NotFound("document %q not found in collection %q", id, col.ID)
	}
	if err := e.authorize(ctx, consts.ActionUpdate, roles, col, doc); err != nil {
		return err
	}
	var fence *time.Time
	if ts, ok := requestTimestamp(ctx); ok {
		fence = &ts
	}
	if err := e.adapter.DecreaseDocumentAttribute(ctx, col.ID, id, attr, value, min, fence); err != nil {
		return dberrors.WrapAdapter(err, "failed to decrease document attribute")
	}
	e.purgeDocument(ctx, col, id)
	e.bus.Emit(consts.EventDocumentDecrease, col.ID, doc)
	return nil
}

// FindDocuments executes q against collectionID, silently omitting rows
// roles cannot read rather than failing the whole find.
func (e *Engine) FindDocuments(ctx context.Context, collectionID string, q query.Set, roles permission.Roles) ([]*document.Document, error) {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	docs, err := e.find(ctx, col, q)
	if err != nil {
		return nil, err
	}
	selects := q.SelectAttrs()
	out := make([]*document.Document, 0, len(docs))
	for _, doc := range docs {
		if err := e.authorize(ctx, consts.ActionRead, roles, col, doc); err != nil {
			continue
		}
		out = append(out, applySelect(doc, selects))
	}
	e.bus.Emit(consts.EventDocumentFind, col.ID, out)
	return out, nil
}

// FindOneDocument returns the first match of q, or an empty Document.
func (e *Engine) FindOneDocument(ctx context.Context, collectionID string, q query.Set, roles permission.Roles) (*document.Document, error) {
	docs, err := e.FindDocuments(ctx, collectionID, append(query.Set{query.LimitTo(1)}, q...), roles)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return document.New(), nil
	}
	return docs[0], nil
}

// CountDocuments reports how many documents in collectionID match q.
func (e *Engine) CountDocuments(ctx context.Context, collectionID string, q query.Set, roles permission.Roles) (int64, error) {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return 0, err
	}
	if err := e.authorize(ctx, consts.ActionRead, roles, col, nil); err != nil {
		return 0, err
	}
	n, err := e.adapter.Count(ctx, col.ID, q)
	if err != nil {
		return 0, dberrors.WrapAdapter(err, "failed to count documents")
	}
	e.bus.Emit(consts.EventDocumentCount, col.ID, n)
	return n, nil
}

// SumDocuments sums attr across documents in collectionID matching q.
func (e *Engine) SumDocuments(ctx context.Context, collectionID, attr string, q query.Set, roles permission.Roles) (float64, error) {
	col, err := e.collectionByID(ctx, collectionID)
	if err != nil {
		return 0, err
	}
	if err := e.authorize(ctx, consts.ActionRead, roles, col, nil); err != nil {
		return 0, err
	}
	sum, err := e.adapter.Sum(ctx, col.ID, attr, q)
	if err != nil {
		return 0, dberrors.WrapAdapter(err, "failed to sum attribute")
	}
	e.bus.Emit(consts.EventDocumentSum, col.ID, sum)
	return sum, nil
}

// WithTransaction runs fn against a single adapter connection; every
// mutation inside fn commits atomically, and any error rolls everything
// back before propagating.
func (e *Engine) WithTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return e.adapter.WithTransaction(ctx, fn)
}

// DeleteDatabase drops database name via the adapter's Drop and flushes
// the cache entirely, per spec section 4.4 ("On deleteDatabase: flush").
func (e *Engine) DeleteDatabase(ctx context.Context, name string) error {
	if err := e.adapter.Drop(ctx, name); err != nil {
		return dberrors.WrapAdapter(err, "failed to drop database")
	}
	if e.cache != nil {
		if err := e.cache.Flush(ctx); err != nil {
			logger.Cache.Warnw("cache flush failed", "error", err)
		}
	}
	e.bus.Emit(consts.EventDatabaseDelete, name, nil)
	return nil
}
