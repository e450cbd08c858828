// Package consts collects the engine's system field names, action and
// event identifiers, and default limits, grounded in the teacher's own
// types/consts package (kept small here since this module has no HTTP or
// controller/service layer to name phases for).
package consts

// System attribute keys, present on every Document.
const (
	FieldID          = "$id"
	FieldInternalID  = "$internalId"
	FieldCollection  = "$collection"
	FieldCreatedAt   = "$createdAt"
	FieldUpdatedAt   = "$updatedAt"
	FieldPermissions = "$permissions"
	FieldTenant      = "$tenant"
)

// Action is one permission action. Write implies create/update/delete.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionWrite  Action = "write"
)

// AttributeType enumerates the scalar kinds an Attribute may hold.
type AttributeType string

const (
	AttributeString       AttributeType = "string"
	AttributeInteger      AttributeType = "integer"
	AttributeFloat        AttributeType = "float"
	AttributeBoolean      AttributeType = "boolean"
	AttributeDatetime     AttributeType = "datetime"
	AttributeRelationship AttributeType = "relationship"
)

// IndexType enumerates the supported index kinds.
type IndexType string

const (
	IndexKey      IndexType = "key"
	IndexUnique   IndexType = "unique"
	IndexFulltext IndexType = "fulltext"
)

// RelationType enumerates the four relationship variants.
type RelationType string

const (
	RelationOneToOne   RelationType = "oneToOne"
	RelationOneToMany  RelationType = "oneToMany"
	RelationManyToOne  RelationType = "manyToOne"
	RelationManyToMany RelationType = "manyToMany"
)

// RelationSide identifies which side of a relationship pair an attribute is.
type RelationSide string

const (
	SideParent RelationSide = "parent"
	SideChild  RelationSide = "child"
)

// OnDelete enumerates the cascade policy applied when the parent side of a
// relationship is deleted.
type OnDelete string

const (
	OnDeleteRestrict OnDelete = "restrict"
	OnDeleteSetNull  OnDelete = "setNull"
	OnDeleteCascade  OnDelete = "cascade"
)

// MetadataCollection is the well-known id of the self-describing catalog.
const MetadataCollection = "_metadata"

// RoleAny is the wildcard role that matches any caller.
const RoleAny = "any"

// Event names emitted by the engine, mirroring the teacher's event-name
// conventions (dotted, present tense for collection nouns).
const (
	EventDatabaseCreate = "database.create"
	EventDatabaseDelete = "database.delete"

	EventCollectionCreate = "collection.create"
	EventCollectionRead   = "collection.read"
	EventCollectionUpdate = "collection.update"
	EventCollectionDelete = "collection.delete"
	EventCollectionList   = "collection.list"

	EventAttributeCreate = "attribute.create"
	EventAttributeUpdate = "attribute.update"
	EventAttributeDelete = "attribute.delete"

	EventIndexCreate = "index.create"
	EventIndexDelete = "index.delete"
	EventIndexRename = "index.rename"

	EventDocumentCreate   = "document.create"
	EventDocumentRead     = "document.read"
	EventDocumentUpdate   = "document.update"
	EventDocumentDelete   = "document.delete"
	EventDocumentFind     = "document.find"
	EventDocumentCount    = "document.count"
	EventDocumentSum      = "document.sum"
	EventDocumentIncrease = "document.increase"
	EventDocumentDecrease = "document.decrease"
	EventDocumentPurge    = "document.purge"

	EventDocumentsCreate = "documents.create"
	EventDocumentsUpdate = "documents.update"
	EventDocumentsDelete = "documents.delete"

	EventQueryExecuted = "query:executed"

	// EventWildcard subscribes a listener to every event above.
	EventWildcard = "*"
)

// Defaults and limits (spec section 6).
const (
	RelationMaxDepth   = 3
	DefaultCacheTTL    = 86400 // seconds
	MaxQueryValues     = 100
	ArrayIndexLength   = 255
	DefaultBatchSize   = 1000
	InsertBatchSizeMin = 1
)

// LayoutTimeEncoder is the timestamp layout used by the structured logger.
const LayoutTimeEncoder = "2006-01-02 15:04:05.000"
