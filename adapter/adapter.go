// Package adapter defines the Adapter contract consumed by the engine
// (spec section 6): DDL/DML issuance, connection pool ownership, and
// dialect translation are the adapter's responsibility, not the engine's.
package adapter

import (
	"context"
	"time"

	"github.com/forbearing/docdb/attribute"
	"github.com/forbearing/docdb/document"
	"github.com/forbearing/docdb/index"
	"github.com/forbearing/docdb/query"
)

// Adapter is the external collaborator contract the Document engine is
// built against. One concrete implementation ships with this module
// (adapter/gormadapter), but the engine never imports it directly.
type Adapter interface {
	// Lifecycle
	Init(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
	GetConnectionID(ctx context.Context) (string, error)

	// Scoping
	SetPrefix(prefix string)
	GetPrefix() string
	SetDatabase(name string)
	GetDatabase() string
	SetTenantID(tenant *int)
	GetTenantID() *int
	GetSharedTables() bool

	// Database/collection DDL
	Create(ctx context.Context, name string) error
	Exists(ctx context.Context, name string, collection string) (bool, error)
	Drop(ctx context.Context, name string) error
	CreateCollection(ctx context.Context, id string, attrs []attribute.Attribute, indexes []index.Index) error
	DropCollection(ctx context.Context, id string) error

	// Attribute/index DDL
	CreateAttribute(ctx context.Context, collectionID string, attr attribute.Attribute) error
	UpdateAttribute(ctx context.Context, collectionID string, attr attribute.Attribute) error
	RenameAttribute(ctx context.Context, collectionID, oldKey, newKey string) error
	DeleteAttribute(ctx context.Context, collectionID string, key string) error
	CreateIndex(ctx context.Context, collectionID string, idx index.Index) error
	RenameIndex(ctx context.Context, collectionID, oldID, newID string) error
	DeleteIndex(ctx context.Context, collectionID string, id string) error

	// Relationship DDL (junction tables, backing indexes)
	CreateRelationship(ctx context.Context, collectionID string, attr attribute.Attribute) error
	UpdateRelationship(ctx context.Context, collectionID string, oldKey string, attr attribute.Attribute) error
	DeleteRelationship(ctx context.Context, collectionID string, attr attribute.Attribute) error

	// Document DML
	GetDocument(ctx context.Context, collectionID, id string, q query.Set, forUpdate bool) (*document.Document, error)
	CreateDocument(ctx context.Context, collectionID string, doc *document.Document) (*document.Document, error)
	CreateDocuments(ctx context.Context, collectionID string, docs []*document.Document, batchSize int) ([]*document.Document, error)
	UpdateDocument(ctx context.Context, collectionID string, doc *document.Document) (*document.Document, error)
	UpdateDocuments(ctx context.Context, collectionID string, q query.Set, updates map[string]any, batchSize int) (int, error)
	DeleteDocument(ctx context.Context, collectionID, id string) error
	DeleteDocuments(ctx context.Context, collectionID string, q query.Set, batchSize int) (int, error)
	IncreaseDocumentAttribute(ctx context.Context, collectionID, id, attr string, value float64, max *float64, updatedAtFence *time.Time) error
	DecreaseDocumentAttribute(ctx context.Context, collectionID, id, attr string, value float64, min *float64, updatedAtFence *time.Time) error

	Find(ctx context.Context, collectionID string, q query.Set) ([]*document.Document, error)
	Count(ctx context.Context, collectionID string, q query.Set) (int64, error)
	Sum(ctx context.Context, collectionID, attr string, q query.Set) (float64, error)

	GetSizeOfCollection(ctx context.Context, collectionID string) (int64, error)
	GetSizeOfCollectionOnDisk(ctx context.Context, collectionID string) (int64, error)

	// Transactions
	StartTransaction(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	WithTransaction(ctx context.Context, fn func(txCtx context.Context) error) error

	// Limits & capability flags
	GetMaxIndexLength() int
	GetLimitForString() int
	GetLimitForInt() int
	GetLimitForAttributes() int
	GetLimitForIndexes() int
	GetDocumentSizeLimit() int
	GetAttributeWidth(attr attribute.Attribute) int
	GetCountOfAttributes(collectionID string) int
	GetCountOfIndexes(collectionID string) int
	GetCountOfDefaultAttributes() int
	GetCountOfDefaultIndexes() int
	GetInternalIndexesKeys() []string
	GetMinDateTime() time.Time
	GetMaxDateTime() time.Time
	GetSupportForIndex() bool
	GetSupportForUniqueIndex() bool
	GetSupportForFulltextIndex() bool
	GetSupportForCasting() bool

	// Diagnostics
	Before(event, name string, fn func(sql string, args []any))
}
