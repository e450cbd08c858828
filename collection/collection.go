// Package collection defines the Collection type (a Document stored inside
// the _metadata catalog) and a process-wide registry tracking the global
// collections set and table-name derivation, per spec section 3 and design
// note "Shared resources: globalCollections set".
package collection

import (
	"fmt"
	"sync"

	"github.com/gertd/go-pluralize"
	"github.com/stoewer/go-strcase"

	"github.com/forbearing/docdb/attribute"
	"github.com/forbearing/docdb/index"
)

var pluralizeClient = pluralize.NewClient()

// Collection is the catalog's own view of a collection: the Document
// stored in _metadata has attributes {name, attributes[], indexes[],
// documentSecurity, $permissions, $tenant?}; this struct is the typed
// projection the engine operates on.
type Collection struct {
	ID               string
	Name             string
	Attributes       []attribute.Attribute
	Indexes          []index.Index
	DocumentSecurity bool
	Permissions      []string
	Tenant           *int
}

// Clone returns a deep-enough copy safe to mutate independently.
func (c Collection) Clone() Collection {
	clone := c
	clone.Attributes = make([]attribute.Attribute, len(c.Attributes))
	for i, a := range c.Attributes {
		clone.Attributes[i] = a.Clone()
	}
	clone.Indexes = make([]index.Index, len(c.Indexes))
	for i, idx := range c.Indexes {
		clone.Indexes[i] = idx.Clone()
	}
	clone.Permissions = append([]string(nil), c.Permissions...)
	if c.Tenant != nil {
		v := *c.Tenant
		clone.Tenant = &v
	}
	return clone
}

// AttributeByKey returns the attribute with the given key (case-insensitive
// per invariant 1), and whether it was found.
func (c Collection) AttributeByKey(key string) (attribute.Attribute, bool) {
	for _, a := range c.Attributes {
		if equalFoldASCII(a.Key, key) {
			return a, true
		}
	}
	return attribute.Attribute{}, false
}

// IndexByID returns the index with the given id, and whether it was found.
func (c Collection) IndexByID(id string) (index.Index, bool) {
	for _, idx := range c.Indexes {
		if idx.ID == id {
			return idx, true
		}
	}
	return index.Index{}, false
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// TableName derives the backing SQL table name for a collection id,
// following the teacher's model.GetTableName convention: snake_case the
// pluralized identifier.
func TableName(collectionID string) string {
	return strcase.SnakeCase(pluralizeClient.Plural(collectionID))
}

// JunctionName derives the junction collection id backing a manyToMany
// relationship as "_<parent>_<child>"; schema.Manager passes the two
// collection ids, since collections carry no separate internal id.
func JunctionName(parentInternalID, childInternalID string) string {
	return fmt.Sprintf("_%s_%s", parentInternalID, childInternalID)
}

// Registry tracks which collection ids are "global" (shared across tenants,
// using tenant=null in their cache key per spec section 4.4) — process-wide
// state populated at init/bootstrap time.
type Registry struct {
	mu     sync.RWMutex
	global map[string]bool
}

// NewRegistry returns an empty Registry with _metadata pre-marked global.
func NewRegistry() *Registry {
	r := &Registry{global: make(map[string]bool)}
	r.global["_metadata"] = true
	return r
}

// MarkGlobal flags id as a global (non-tenant-scoped) collection.
func (r *Registry) MarkGlobal(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global[id] = true
}

// UnmarkGlobal removes the global flag from id.
func (r *Registry) UnmarkGlobal(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.global, id)
}

// IsGlobal reports whether id is flagged global.
func (r *Registry) IsGlobal(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global[id]
}
