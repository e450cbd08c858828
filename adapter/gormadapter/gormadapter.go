// Package gormadapter implements adapter.Adapter over gorm.io/gorm,
// grounded in the teacher's database/sqlite and database/postgres
// connection-bootstrap packages. Because collections are schemas known
// only at runtime, DDL is issued as raw SQL (dialect-aware) rather than
// through GORM's struct-reflection-based migrator, and DML uses GORM's
// map-based Table()/Create()/Updates()/Raw() surface instead of typed
// models.
package gormadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/forbearing/docdb/attribute"
	"github.com/forbearing/docdb/collection"
	"github.com/forbearing/docdb/consts"
	"github.com/forbearing/docdb/dberrors"
	"github.com/forbearing/docdb/document"
	"github.com/forbearing/docdb/index"
	"github.com/forbearing/docdb/query"
)

// Dialect names the SQL dialect quirks this adapter adapts DDL for.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

type txKey struct{}

// Adapter implements adapter.Adapter over a *gorm.DB connection.
type Adapter struct {
	db      *gorm.DB
	dialect Dialect

	prefix       string
	databaseName string
	tenant       *int
	sharedTables bool

	before map[string][]func(sql string, args []any)
}

// New wraps an already-connected *gorm.DB (built by the caller via
// gorm.Open with a dialect driver, mirroring the teacher's sqlite.New /
// postgres.New helpers).
func New(db *gorm.DB, dialect Dialect) *Adapter {
	return &Adapter{db: db, dialect: dialect, before: make(map[string][]func(string, []any))}
}

func (a *Adapter) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return a.db.WithContext(ctx)
}

func (a *Adapter) fireBefore(event, sql string, args []any) {
	for _, fn := range a.before[event] {
		fn(sql, args)
	}
	for _, fn := range a.before[consts.EventWildcard] {
		fn(sql, args)
	}
}

// Before registers a pre-execution interceptor, per spec section 4.6/6.
func (a *Adapter) Before(event, _ string, fn func(sql string, args []any)) {
	a.before[event] = append(a.before[event], fn)
}

func (a *Adapter) Init(ctx context.Context) error {
	return a.Ping(ctx)
}

func (a *Adapter) Ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return dberrors.WrapDatabase(err, "failed to obtain underlying sql.DB")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dberrors.WrapDatabase(err, "ping failed")
	}
	return nil
}

func (a *Adapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return dberrors.WrapDatabase(err, "failed to obtain underlying sql.DB")
	}
	return sqlDB.Close()
}

func (a *Adapter) GetConnectionID(ctx context.Context) (string, error) {
	var id string
	switch a.dialect {
	case DialectPostgres:
		err := a.conn(ctx).Raw("SELECT pg_backend_pid()").Scan(&id).Error
		return id, err
	case DialectMySQL:
		err := a.conn(ctx).Raw("SELECT CONNECTION_ID()").Scan(&id).Error
		return id, err
	default:
		return "sqlite-single-connection", nil
	}
}

func (a *Adapter) SetPrefix(prefix string)   { a.prefix = prefix }
func (a *Adapter) GetPrefix() string         { return a.prefix }
func (a *Adapter) SetDatabase(name string)   { a.databaseName = name }
func (a *Adapter) GetDatabase() string       { return a.databaseName }
func (a *Adapter) SetTenantID(tenant *int)   { a.tenant = tenant }
func (a *Adapter) GetTenantID() *int         { return a.tenant }
func (a *Adapter) GetSharedTables() bool     { return a.sharedTables }
func (a *Adapter) SetSharedTables(v bool)    { a.sharedTables = v }

// tableName applies the configured prefix to a collection's derived table name.
func (a *Adapter) tableName(collectionID string) string {
	return a.prefix + collection.TableName(collectionID)
}

// quoteIdent quotes a SQL identifier per dialect, since a raw-SQL DDL layer
// cannot rely on GORM's struct-based quoting helpers.
func quoteIdent(dialect Dialect, id string) string {
	switch dialect {
	case DialectMySQL:
		return "`" + strings.ReplaceAll(id, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
	}
}

func (a *Adapter) Create(ctx context.Context, name string) error {
	switch a.dialect {
	case DialectSQLite:
		return nil // a single sqlite file already *is* the database.
	default:
		stmt := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", quoteIdent(a.dialect, name))
		return a.exec(ctx, stmt)
	}
}

func (a *Adapter) Exists(ctx context.Context, _ string, collectionID string) (bool, error) {
	if len(collectionID) == 0 {
		return true, nil
	}
	return a.conn(ctx).Migrator().HasTable(a.tableName(collectionID)), nil
}

func (a *Adapter) Drop(ctx context.Context, name string) error {
	if a.dialect == DialectSQLite {
		return nil
	}
	return a.exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", quoteIdent(a.dialect, name)))
}

func (a *Adapter) exec(ctx context.Context, sql string, args ...any) error {
	a.fireBefore(consts.EventQueryExecuted, sql, args)
	start := time.Now()
	err := a.conn(ctx).Exec(sql, args...).Error
	_ = time.Since(start)
	if err != nil {
		return dberrors.WrapDatabase(err, "sql exec failed: "+sql)
	}
	return nil
}

// sqlColumnType maps an Attribute to the dialect's DDL column type.
func (a *Adapter) sqlColumnType(attr attribute.Attribute) string {
	base := ""
	switch attr.Type {
	case consts.AttributeString:
		size := attr.Size
		if size <= 0 {
			size = 255
		}
		if a.dialect == DialectPostgres {
			base = fmt.Sprintf("VARCHAR(%d)", size)
		} else {
			base = fmt.Sprintf("VARCHAR(%d)", size)
		}
	case consts.AttributeInteger:
		base = "BIGINT"
	case consts.AttributeFloat:
		base = "DOUBLE PRECISION"
		if a.dialect == DialectMySQL || a.dialect == DialectSQLite {
			base = "DOUBLE"
		}
	case consts.AttributeBoolean:
		base = "BOOLEAN"
	case consts.AttributeDatetime:
		base = "VARCHAR(64)" // stored via the datetime filter's canonical string layout.
	case consts.AttributeRelationship:
		base = "VARCHAR(255)"
	default:
		base = "TEXT"
	}
	if attr.Array {
		return "TEXT" // arrays go into a text column; an attribute with the json filter is stored JSON-encoded.
	}
	return base
}

func (a *Adapter) CreateCollection(ctx context.Context, id string, attrs []attribute.Attribute, indexes []index.Index) error {
	table := a.tableName(id)
	var cols []string
	cols = append(cols,
		quoteIdent(a.dialect, "_uid")+" VARCHAR(255) NOT NULL",
		quoteIdent(a.dialect, "_sequence")+" BIGINT",
		quoteIdent(a.dialect, "_created_at")+" VARCHAR(64)",
		quoteIdent(a.dialect, "_updated_at")+" VARCHAR(64)",
		quoteIdent(a.dialect, "_permissions")+" TEXT",
	)
	if a.sharedTables {
		cols = append(cols, quoteIdent(a.dialect, "_tenant")+" BIGINT")
	}
	for _, attr := range attrs {
		if attr.IsRelationship() {
			continue
		}
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(a.dialect, attr.Key), a.sqlColumnType(attr)))
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, PRIMARY KEY (%s))",
		quoteIdent(a.dialect, table), strings.Join(cols, ", "), quoteIdent(a.dialect, "_uid"))
	if err := a.exec(ctx, stmt); err != nil {
		return err
	}
	for _, idx := range indexes {
		if err := a.CreateIndex(ctx, id, idx); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) DropCollection(ctx context.Context, id string) error {
	return a.exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(a.dialect, a.tableName(id))))
}

func (a *Adapter) CreateAttribute(ctx context.Context, collectionID string, attr attribute.Attribute) error {
	if attr.IsRelationship() {
		return nil // relationship key columns are added by CreateRelationship.
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		quoteIdent(a.dialect, a.tableName(collectionID)), quoteIdent(a.dialect, attr.Key), a.sqlColumnType(attr))
	return a.exec(ctx, stmt)
}

func (a *Adapter) UpdateAttribute(ctx context.Context, collectionID string, attr attribute.Attribute) error {
	if attr.IsRelationship() {
		return nil
	}
	// Widening/retyping columns is dialect-specific and often unsupported on
	// sqlite; this adapter issues a best-effort MODIFY/ALTER where supported
	// and otherwise leaves the physical column as-is (metadata is authoritative).
	switch a.dialect {
	case DialectMySQL:
		return a.exec(ctx, fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s",
			quoteIdent(a.dialect, a.tableName(collectionID)), quoteIdent(a.dialect, attr.Key), a.sqlColumnType(attr)))
	case DialectPostgres:
		return a.exec(ctx, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s",
			quoteIdent(a.dialect, a.tableName(collectionID)), quoteIdent(a.dialect, attr.Key), a.sqlColumnType(attr)))
	default:
		return nil
	}
}

func (a *Adapter) RenameAttribute(ctx context.Context, collectionID, oldKey, newKey string) error {
	table := quoteIdent(a.dialect, a.tableName(collectionID))
	switch a.dialect {
	case DialectMySQL:
		return a.exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, quoteIdent(a.dialect, oldKey), quoteIdent(a.dialect, newKey)))
	default:
		return a.exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, quoteIdent(a.dialect, oldKey), quoteIdent(a.dialect, newKey)))
	}
}

func (a *Adapter) DeleteAttribute(ctx context.Context, collectionID string, key string) error {
	return a.exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
		quoteIdent(a.dialect, a.tableName(collectionID)), quoteIdent(a.dialect, key)))
}

func indexName(collectionID string, idx index.Index) string {
	return fmt.Sprintf("idx_%s_%s", collection.TableName(collectionID), idx.ID)
}

func (a *Adapter) CreateIndex(ctx context.Context, collectionID string, idx index.Index) error {
	cols := make([]string, 0, len(idx.Attributes))
	for i, attrKey := range idx.Attributes {
		col := quoteIdent(a.dialect, attrKey)
		if i < len(idx.Orders) && idx.Orders[i] != nil {
			col += " " + strings.ToUpper(*idx.Orders[i])
		}
		cols = append(cols, col)
	}
	unique := ""
	if idx.Type == consts.IndexUnique {
		unique = "UNIQUE "
	}
	stmt := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, quoteIdent(a.dialect, indexName(collectionID, idx)), quoteIdent(a.dialect, a.tableName(collectionID)), strings.Join(cols, ", "))
	return a.exec(ctx, stmt)
}

func (a *Adapter) RenameIndex(ctx context.Context, collectionID, oldID, newID string) error {
	oldName := fmt.Sprintf("idx_%s_%s", collection.TableName(collectionID), oldID)
	newName := fmt.Sprintf("idx_%s_%s", collection.TableName(collectionID), newID)
	switch a.dialect {
	case DialectPostgres, DialectSQLite:
		return a.exec(ctx, fmt.Sprintf("ALTER INDEX %s RENAME TO %s", quoteIdent(a.dialect, oldName), quoteIdent(a.dialect, newName)))
	case DialectMySQL:
		return a.exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME INDEX %s TO %s",
			quoteIdent(a.dialect, a.tableName(collectionID)), quoteIdent(a.dialect, oldName), quoteIdent(a.dialect, newName)))
	}
	return nil
}

func (a *Adapter) DeleteIndex(ctx context.Context, collectionID string, id string) error {
	name := fmt.Sprintf("idx_%s_%s", collection.TableName(collectionID), id)
	switch a.dialect {
	case DialectMySQL:
		return a.exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", quoteIdent(a.dialect, a.tableName(collectionID)), quoteIdent(a.dialect, name)))
	default:
		return a.exec(ctx, fmt.Sprintf("DROP INDEX IF EXISTS %s", quoteIdent(a.dialect, name)))
	}
}

func (a *Adapter) CreateRelationship(ctx context.Context, collectionID string, attr attribute.Attribute) error {
	// Every oneToOne/oneToMany/manyToOne attribute gets its own key column on
	// its side's table (left empty on the side that holds the many end);
	// junction tables for manyToMany are created by the schema manager via
	// CreateCollection on the junction collection id.
	if attr.Relationship != nil && attr.Relationship.RelationType != consts.RelationManyToMany {
		return a.exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			quoteIdent(a.dialect, a.tableName(collectionID)), quoteIdent(a.dialect, attr.Key), a.sqlColumnType(attr)))
	}
	return nil
}

func (a *Adapter) UpdateRelationship(ctx context.Context, collectionID string, oldKey string, attr attribute.Attribute) error {
	if oldKey != attr.Key {
		return a.RenameAttribute(ctx, collectionID, oldKey, attr.Key)
	}
	return nil
}

func (a *Adapter) DeleteRelationship(ctx context.Context, collectionID string, attr attribute.Attribute) error {
	if attr.Relationship != nil && attr.Relationship.RelationType != consts.RelationManyToMany {
		return a.DeleteAttribute(ctx, collectionID, attr.Key)
	}
	return nil
}

// rowToDocument converts a raw scanned row (string-keyed map from GORM) into
// a *document.Document, translating internal column names to system fields.
func (a *Adapter) rowToDocument(collectionID string, row map[string]any) *document.Document {
	doc := document.New()
	doc.SetCollection(collectionID)
	for k, v := range row {
		switch k {
		case "_uid":
			doc.SetID(fmt.Sprint(v))
		case "_sequence":
			doc.SetInternalID(fmt.Sprint(v))
		case "_created_at":
			doc.Set(consts.FieldCreatedAt, v)
		case "_updated_at":
			doc.Set(consts.FieldUpdatedAt, v)
		case "_permissions":
			var perms []string
			switch raw := v.(type) {
			case string:
				_ = json.Unmarshal([]byte(raw), &perms)
			case []byte:
				_ = json.Unmarshal(raw, &perms)
			}
			doc.SetPermissions(perms)
		case "_tenant":
			if v != nil {
				if n, err := strconv.Atoi(fmt.Sprint(v)); err == nil {
					doc.SetTenant(n)
				}
			}
		default:
			doc.Set(k, v)
		}
	}
	return doc
}

// documentToRow converts a *document.Document into the raw column map used
// for INSERT/UPDATE, the inverse of rowToDocument.
func documentToRow(doc *document.Document, sharedTables bool) map[string]any {
	row := make(map[string]any)
	row["_uid"] = doc.ID()
	row["_created_at"] = doc.Get(consts.FieldCreatedAt)
	row["_updated_at"] = doc.Get(consts.FieldUpdatedAt)
	perms, _ := json.Marshal(doc.Permissions()) // stored as a JSON array of strings
	row["_permissions"] = string(perms)
	if sharedTables {
		if tenant, ok := doc.Tenant(); ok {
			row["_tenant"] = tenant
		}
	}
	for _, key := range doc.AttributeKeys() {
		row[key] = doc.Get(key)
	}
	return row
}

func (a *Adapter) GetDocument(ctx context.Context, collectionID, id string, q query.Set, forUpdate bool) (*document.Document, error) {
	tx := a.conn(ctx).Table(a.tableName(collectionID)).Where(quoteIdent(a.dialect, "_uid")+" = ?", id)
	if forUpdate && a.dialect != DialectSQLite {
		tx = tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	if selects := q.SelectAttrs(); len(selects) > 0 {
		tx = tx.Select(a.systemColumnsPlus(selects))
	}
	var row map[string]any
	if err := tx.Take(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return document.New(), nil
		}
		return nil, dberrors.WrapDatabase(err, "get document failed")
	}
	return a.rowToDocument(collectionID, row), nil
}

// systemColumnsPlus lists the system columns (with _tenant only in
// shared-tables mode, the only mode whose tables have it) plus the top-level
// column of each selected attribute; a dotted path selects its relationship
// column, and the nested part is applied by the engine after population.
func (a *Adapter) systemColumnsPlus(attrs []string) []string {
	out := []string{"_uid", "_sequence", "_created_at", "_updated_at", "_permissions"}
	if a.sharedTables {
		out = append(out, "_tenant")
	}
	for _, attr := range attrs {
		out = append(out, strings.SplitN(attr, ".", 2)[0])
	}
	return out
}

func (a *Adapter) CreateDocument(ctx context.Context, collectionID string, doc *document.Document) (*document.Document, error) {
	row := documentToRow(doc, a.sharedTables)
	if err := a.conn(ctx).Table(a.tableName(collectionID)).Create(row).Error; err != nil {
		return nil, translateCreateErr(err, doc.ID())
	}
	return a.GetDocument(ctx, collectionID, doc.ID(), nil, false)
}

// translateCreateErr maps a _uid primary-key collision to KindDuplicate, the
// same way every other adapter failure maps to KindDatabase.
func translateCreateErr(err error, id string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return dberrors.Duplicate("document %q already exists", id)
	}
	return dberrors.WrapDatabase(err, "create document failed")
}

func (a *Adapter) CreateDocuments(ctx context.Context, collectionID string, docs []*document.Document, batchSize int) ([]*document.Document, error) {
	if batchSize <= 0 {
		batchSize = consts.DefaultBatchSize
	}
	rows := make([]map[string]any, len(docs))
	for i, d := range docs {
		rows[i] = documentToRow(d, a.sharedTables)
	}
	if err := a.conn(ctx).Table(a.tableName(collectionID)).CreateInBatches(rows, batchSize).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, dberrors.Duplicate("one or more documents in %q already exist", collectionID)
		}
		return nil, dberrors.WrapDatabase(err, "create documents failed")
	}
	out := make([]*document.Document, 0, len(docs))
	for _, d := range docs {
		got, err := a.GetDocument(ctx, collectionID, d.ID(), nil, false)
		if err != nil {
			return nil, err
		}
		out = append(out, got)
	}
	return out, nil
}

func (a *Adapter) UpdateDocument(ctx context.Context, collectionID string, doc *document.Document) (*document.Document, error) {
	row := documentToRow(doc, a.sharedTables)
	delete(row, "_uid")
	if err := a.conn(ctx).Table(a.tableName(collectionID)).Where(quoteIdent(a.dialect, "_uid")+" = ?", doc.ID()).Updates(row).Error; err != nil {
		return nil, dberrors.WrapDatabase(err, "update document failed")
	}
	return a.GetDocument(ctx, collectionID, doc.ID(), nil, false)
}

func (a *Adapter) UpdateDocuments(ctx context.Context, collectionID string, q query.Set, updates map[string]any, batchSize int) (int, error) {
	tx := applyFilters(a.conn(ctx).Table(a.tableName(collectionID)), q)
	result := tx.Updates(updates)
	if result.Error != nil {
		return 0, dberrors.WrapDatabase(result.Error, "update documents failed")
	}
	return int(result.RowsAffected), nil
}

func (a *Adapter) DeleteDocument(ctx context.Context, collectionID, id string) error {
	if err := a.conn(ctx).Table(a.tableName(collectionID)).Where(quoteIdent(a.dialect, "_uid")+" = ?", id).Delete(nil).Error; err != nil {
		return dberrors.WrapDatabase(err, "delete document failed")
	}
	return nil
}

func (a *Adapter) DeleteDocuments(ctx context.Context, collectionID string, q query.Set, batchSize int) (int, error) {
	tx := applyFilters(a.conn(ctx).Table(a.tableName(collectionID)), q)
	result := tx.Delete(nil)
	if result.Error != nil {
		return 0, dberrors.WrapDatabase(result.Error, "delete documents failed")
	}
	return int(result.RowsAffected), nil
}

func (a *Adapter) IncreaseDocumentAttribute(ctx context.Context, collectionID, id, attr string, value float64, max *float64, updatedAtFence *time.Time) error {
	return a.bump(ctx, collectionID, id, attr, value, max, nil, updatedAtFence)
}

func (a *Adapter) DecreaseDocumentAttribute(ctx context.Context, collectionID, id, attr string, value float64, min *float64, updatedAtFence *time.Time) error {
	return a.bump(ctx, collectionID, id, attr, -value, nil, min, updatedAtFence)
}

func (a *Adapter) bump(ctx context.Context, collectionID, id, attr string, delta float64, max, min *float64, updatedAtFence *time.Time) error {
	col := quoteIdent(a.dialect, attr)
	tx := a.conn(ctx).Table(a.tableName(collectionID)).Where(quoteIdent(a.dialect, "_uid")+" = ?", id)
	if updatedAtFence != nil {
		tx = tx.Where(quoteIdent(a.dialect, "_updated_at")+" <= ?", *updatedAtFence)
	}
	expr := fmt.Sprintf("%s + (%f)", col, delta)
	if max != nil && delta > 0 {
		tx = tx.Where(fmt.Sprintf("%s + (%f) <= ?", col, delta), *max)
	}
	if min != nil && delta < 0 {
		tx = tx.Where(fmt.Sprintf("%s + (%f) >= ?", col, delta), *min)
	}
	result := tx.Update(attr, gorm.Expr(expr))
	if result.Error != nil {
		return dberrors.WrapDatabase(result.Error, "increase/decrease attribute failed")
	}
	if result.RowsAffected == 0 {
		return dberrors.Conflict("document %q attribute %q bump rejected by fence/bound", id, attr)
	}
	return nil
}

func (a *Adapter) Find(ctx context.Context, collectionID string, q query.Set) ([]*document.Document, error) {
	tx := applyFilters(a.conn(ctx).Table(a.tableName(collectionID)), q)
	if selects := q.SelectAttrs(); len(selects) > 0 {
		tx = tx.Select(a.systemColumnsPlus(selects))
	}
	var rows []map[string]any
	if err := tx.Find(&rows).Error; err != nil {
		return nil, dberrors.WrapDatabase(err, "find failed")
	}
	out := make([]*document.Document, 0, len(rows))
	for _, row := range rows {
		out = append(out, a.rowToDocument(collectionID, row))
	}
	return out, nil
}

func (a *Adapter) Count(ctx context.Context, collectionID string, q query.Set) (int64, error) {
	tx := applyFilters(a.conn(ctx).Table(a.tableName(collectionID)), q)
	var count int64
	if err := tx.Count(&count).Error; err != nil {
		return 0, dberrors.WrapDatabase(err, "count failed")
	}
	return count, nil
}

func (a *Adapter) Sum(ctx context.Context, collectionID, attr string, q query.Set) (float64, error) {
	tx := applyFilters(a.conn(ctx).Table(a.tableName(collectionID)), q)
	var sum float64
	if err := tx.Select(fmt.Sprintf("COALESCE(SUM(%s), 0)", quoteIdent(a.dialect, attr))).Scan(&sum).Error; err != nil {
		return 0, dberrors.WrapDatabase(err, "sum failed")
	}
	return sum, nil
}

func (a *Adapter) GetSizeOfCollection(ctx context.Context, collectionID string) (int64, error) {
	var count int64
	err := a.conn(ctx).Table(a.tableName(collectionID)).Count(&count).Error
	return count, err
}

func (a *Adapter) GetSizeOfCollectionOnDisk(ctx context.Context, collectionID string) (int64, error) {
	// Only postgres exposes a portable on-disk size function among the
	// dialects this adapter supports; others report the row count as a proxy.
	if a.dialect == DialectPostgres {
		var bytes int64
		err := a.conn(ctx).Raw("SELECT pg_total_relation_size(?)", a.tableName(collectionID)).Scan(&bytes).Error
		if err == nil {
			return bytes, nil
		}
	}
	return a.GetSizeOfCollection(ctx, collectionID)
}

func (a *Adapter) StartTransaction(ctx context.Context) (context.Context, error) {
	tx := a.conn(ctx).Begin()
	if tx.Error != nil {
		return ctx, dberrors.WrapDatabase(tx.Error, "begin transaction failed")
	}
	return context.WithValue(ctx, txKey{}, tx), nil
}

func (a *Adapter) Commit(ctx context.Context) error {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	if !ok {
		return dberrors.Database("commit called outside a transaction")
	}
	return tx.Commit().Error
}

func (a *Adapter) Rollback(ctx context.Context) error {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	if !ok {
		return dberrors.Database("rollback called outside a transaction")
	}
	return tx.Rollback().Error
}

// WithTransaction runs fn against a single connection, committing on
// success and rolling back on error or panic (spec section 5: "all database
// mutations inside that closure commit atomically; failure anywhere rolls
// back").
func (a *Adapter) WithTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, already := ctx.Value(txKey{}).(*gorm.DB); already {
		return fn(ctx) // nested: treat as part of the outer transaction.
	}
	return a.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (a *Adapter) GetMaxIndexLength() int { return 768 }
func (a *Adapter) GetLimitForString() int { return 16383 }
func (a *Adapter) GetLimitForInt() int    { return 8 }
func (a *Adapter) GetLimitForAttributes() int {
	if a.dialect == DialectMySQL {
		return 1017
	}
	return 1600
}
func (a *Adapter) GetLimitForIndexes() int        { return 64 }
func (a *Adapter) GetDocumentSizeLimit() int       { return 16 * 1024 * 1024 }
func (a *Adapter) GetAttributeWidth(attr attribute.Attribute) int {
	switch attr.Type {
	case consts.AttributeString:
		if attr.Size > 0 {
			return attr.Size
		}
		return 255
	default:
		return 8
	}
}
func (a *Adapter) GetCountOfAttributes(collectionID string) int {
	cols, _ := a.conn(context.Background()).Migrator().ColumnTypes(a.tableName(collectionID))
	return len(cols)
}
func (a *Adapter) GetCountOfIndexes(collectionID string) int {
	idxs, _ := a.conn(context.Background()).Migrator().GetIndexes(a.tableName(collectionID))
	return len(idxs)
}
func (a *Adapter) GetCountOfDefaultAttributes() int { return 5 }
func (a *Adapter) GetCountOfDefaultIndexes() int    { return 1 }
func (a *Adapter) GetInternalIndexesKeys() []string {
	return []string{"_uid", "_sequence", "_created_at", "_updated_at"}
}
func (a *Adapter) GetMinDateTime() time.Time { return time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC) }
func (a *Adapter) GetMaxDateTime() time.Time { return time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC) }
func (a *Adapter) GetSupportForIndex() bool         { return true }
func (a *Adapter) GetSupportForUniqueIndex() bool   { return true }
func (a *Adapter) GetSupportForFulltextIndex() bool { return a.dialect != DialectSQLite }
func (a *Adapter) GetSupportForCasting() bool        { return a.dialect == DialectPostgres }

// applyFilters translates a query.Set into GORM Where/Order/Limit/Offset
// clauses against an already-Table()-scoped *gorm.DB.
func applyFilters(tx *gorm.DB, q query.Set) *gorm.DB {
	for _, f := range q.Filters() {
		tx = applyFilter(tx, f)
	}
	for _, o := range q.Orders() {
		dir := "ASC"
		if o.Method() == query.OrderDesc {
			dir = "DESC"
		}
		tx = tx.Order(fmt.Sprintf("%s %s", o.Attribute(), dir))
	}
	if n := q.Limit(); n > 0 {
		tx = tx.Limit(n)
	}
	if n := q.Offset(); n > 0 {
		tx = tx.Offset(n)
	}
	if after, ok := q.CursorAfter(); ok {
		tx = tx.Where("_sequence > (SELECT _sequence FROM "+tx.Statement.Table+" WHERE _uid = ?)", after)
	}
	return tx
}

func applyFilter(tx *gorm.DB, f *query.Query) *gorm.DB {
	col := f.Attribute()
	values := f.Values()
	switch f.Method() {
	case query.Equal:
		return tx.Where(fmt.Sprintf("%s = ?", col), values[0])
	case query.NotEqual:
		return tx.Where(fmt.Sprintf("%s <> ?", col), values[0])
	case query.LessThan:
		return tx.Where(fmt.Sprintf("%s < ?", col), values[0])
	case query.LessThanEqual:
		return tx.Where(fmt.Sprintf("%s <= ?", col), values[0])
	case query.GreaterThan:
		return tx.Where(fmt.Sprintf("%s > ?", col), values[0])
	case query.GreaterThanEqual:
		return tx.Where(fmt.Sprintf("%s >= ?", col), values[0])
	case query.Between:
		return tx.Where(fmt.Sprintf("%s BETWEEN ? AND ?", col), values[0], values[1])
	case query.IsNull:
		return tx.Where(fmt.Sprintf("%s IS NULL", col))
	case query.IsNotNull:
		return tx.Where(fmt.Sprintf("%s IS NOT NULL", col))
	case query.StartsWith:
		return tx.Where(fmt.Sprintf("%s LIKE ?", col), fmt.Sprint(values[0])+"%")
	case query.EndsWith:
		return tx.Where(fmt.Sprintf("%s LIKE ?", col), "%"+fmt.Sprint(values[0]))
	case query.Contains:
		if len(values) == 1 {
			return tx.Where(fmt.Sprintf("%s LIKE ?", col), "%"+fmt.Sprint(values[0])+"%")
		}
		return tx.Where(fmt.Sprintf("%s IN ?", col), values)
	case query.Search:
		return tx.Where(fmt.Sprintf("%s LIKE ?", col), "%"+fmt.Sprint(values[0])+"%")
	case query.And:
		for _, child := range f.Children() {
			tx = applyFilter(tx, child)
		}
		return tx
	case query.Or:
		db := tx.Session(&gorm.Session{NewDB: true})
		for _, child := range f.Children() {
			db = applyFilter(db, child).Or("")
		}
		return tx.Where(db)
	default:
		return tx
	}
}
