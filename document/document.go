// Package document implements the engine's Document value type: an ordered
// attribute bag plus the well-known system fields every document carries.
package document

import (
	"time"

	"github.com/forbearing/docdb/consts"
)

// Document is an ordered mapping from attribute name to value, plus the
// system fields described in the data model: $id, $internalId, $collection,
// $createdAt, $updatedAt, $permissions, $tenant. Values are scalars, nulls,
// arrays of scalars, or nested *Document (only while relationships are
// materialized).
//
// Document is a value owned by callers; the engine never retains a pointer
// to one beyond the scope of a single operation.
type Document struct {
	data  map[string]any
	order []string
}

// New creates an empty Document.
func New() *Document {
	return &Document{data: make(map[string]any)}
}

// NewFromMap creates a Document pre-populated from m. Key order follows
// Go's randomized map iteration order is NOT guaranteed; callers that care
// about attribute order should build the Document with repeated Set calls
// instead.
func NewFromMap(m map[string]any) *Document {
	d := New()
	for k, v := range m {
		d.Set(k, v)
	}
	return d
}

// IsEmpty reports whether the document carries no data at all — the
// sentinel "not found" return value used throughout the engine instead of
// an error, per the getDocument/find contracts.
func (d *Document) IsEmpty() bool {
	return d == nil || len(d.data) == 0
}

// Get returns the value stored under key, or nil if absent.
func (d *Document) Get(key string) any {
	if d == nil || d.data == nil {
		return nil
	}
	return d.data[key]
}

// GetString returns the value under key as a string, or "" if absent or
// not a string.
func (d *Document) GetString(key string) string {
	v, _ := d.Get(key).(string)
	return v
}

// Has reports whether key is present in the document.
func (d *Document) Has(key string) bool {
	if d == nil || d.data == nil {
		return false
	}
	_, ok := d.data[key]
	return ok
}

// Set assigns value to key, appending key to the attribute order the first
// time it is set. Returns d for chaining.
func (d *Document) Set(key string, value any) *Document {
	if d.data == nil {
		d.data = make(map[string]any)
	}
	if _, exists := d.data[key]; !exists {
		d.order = append(d.order, key)
	}
	d.data[key] = value
	return d
}

// Delete removes key from the document.
func (d *Document) Delete(key string) *Document {
	if d.data == nil {
		return d
	}
	delete(d.data, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return d
}

// Keys returns attribute keys (system fields included) in insertion order.
func (d *Document) Keys() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// AttributeKeys returns only the non-system attribute keys, in insertion order.
func (d *Document) AttributeKeys() []string {
	out := make([]string, 0, len(d.order))
	for _, k := range d.order {
		if !isSystemField(k) {
			out = append(out, k)
		}
	}
	return out
}

func isSystemField(key string) bool {
	switch key {
	case consts.FieldID, consts.FieldInternalID, consts.FieldCollection,
		consts.FieldCreatedAt, consts.FieldUpdatedAt, consts.FieldPermissions, consts.FieldTenant:
		return true
	}
	return false
}

// ToMap returns a shallow copy of the document's underlying data.
func (d *Document) ToMap() map[string]any {
	out := make(map[string]any, len(d.data))
	for k, v := range d.data {
		out[k] = v
	}
	return out
}

// Clone returns a deep-enough copy safe to mutate independently; nested
// *Document values are cloned recursively, slices are copied shallowly.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	clone := New()
	for _, k := range d.order {
		v := d.data[k]
		if nested, ok := v.(*Document); ok {
			clone.Set(k, nested.Clone())
		} else if list, ok := v.([]*Document); ok {
			cp := make([]*Document, len(list))
			for i, item := range list {
				cp[i] = item.Clone()
			}
			clone.Set(k, cp)
		} else {
			clone.Set(k, v)
		}
	}
	return clone
}

// --- System field accessors ---

func (d *Document) ID() string           { return d.GetString(consts.FieldID) }
func (d *Document) SetID(id string) *Document {
	return d.Set(consts.FieldID, id)
}

func (d *Document) InternalID() string { return d.GetString(consts.FieldInternalID) }
func (d *Document) SetInternalID(id string) *Document {
	return d.Set(consts.FieldInternalID, id)
}

func (d *Document) Collection() string { return d.GetString(consts.FieldCollection) }
func (d *Document) SetCollection(id string) *Document {
	return d.Set(consts.FieldCollection, id)
}

func (d *Document) CreatedAt() time.Time { return d.getTime(consts.FieldCreatedAt) }
func (d *Document) SetCreatedAt(t time.Time) *Document {
	return d.Set(consts.FieldCreatedAt, t)
}

func (d *Document) UpdatedAt() time.Time { return d.getTime(consts.FieldUpdatedAt) }
func (d *Document) SetUpdatedAt(t time.Time) *Document {
	return d.Set(consts.FieldUpdatedAt, t)
}

func (d *Document) getTime(key string) time.Time {
	switch v := d.Get(key).(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		// The layout go-sqlite3 writes when a time.Time is bound to a text column.
		if t, err := time.Parse("2006-01-02 15:04:05.999999999-07:00", v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Permissions returns the document's own permission strings (action:role).
func (d *Document) Permissions() []string {
	switch v := d.Get(consts.FieldPermissions).(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// SetPermissions assigns the document's own permission strings.
func (d *Document) SetPermissions(perms []string) *Document {
	return d.Set(consts.FieldPermissions, perms)
}

// Tenant returns the tenant id, and whether the field is present at all
// (shared-tables mode is off iff this is false).
func (d *Document) Tenant() (int, bool) {
	if !d.Has(consts.FieldTenant) {
		return 0, false
	}
	switch v := d.Get(consts.FieldTenant).(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case nil:
		return 0, false
	}
	return 0, false
}

// SetTenant assigns the tenant id.
func (d *Document) SetTenant(tenant int) *Document {
	return d.Set(consts.FieldTenant, tenant)
}
