// Package index defines the Index type from the data model (spec section 3).
package index

import "github.com/forbearing/docdb/consts"

// Index describes one index on a collection.
type Index struct {
	ID         string
	Type       consts.IndexType
	Attributes []string
	Lengths    []*int // nil entry = adapter default / no explicit length
	Orders     []*string
}

// Clone returns a deep-enough copy safe to mutate independently.
func (idx Index) Clone() Index {
	clone := idx
	clone.Attributes = append([]string(nil), idx.Attributes...)
	clone.Lengths = make([]*int, len(idx.Lengths))
	for i, l := range idx.Lengths {
		if l != nil {
			v := *l
			clone.Lengths[i] = &v
		}
	}
	clone.Orders = make([]*string, len(idx.Orders))
	for i, o := range idx.Orders {
		if o != nil {
			v := *o
			clone.Orders[i] = &v
		}
	}
	return clone
}

// RenameAttribute rewrites oldKey to newKey everywhere it appears in the
// index's attribute list, used by renameAttribute/updateRelationship.
func (idx *Index) RenameAttribute(oldKey, newKey string) {
	for i, a := range idx.Attributes {
		if a == oldKey {
			idx.Attributes[i] = newKey
		}
	}
}

// RemoveAttribute removes attr from the index's attribute list (and the
// corresponding length/order entries), reporting whether the index is now
// empty and should itself be deleted.
func (idx *Index) RemoveAttribute(attr string) (empty bool) {
	for i, a := range idx.Attributes {
		if a == attr {
			idx.Attributes = append(idx.Attributes[:i], idx.Attributes[i+1:]...)
			if i < len(idx.Lengths) {
				idx.Lengths = append(idx.Lengths[:i], idx.Lengths[i+1:]...)
			}
			if i < len(idx.Orders) {
				idx.Orders = append(idx.Orders[:i], idx.Orders[i+1:]...)
			}
			break
		}
	}
	return len(idx.Attributes) == 0
}

// IntPtr is a convenience constructor for Index.Lengths entries.
func IntPtr(v int) *int { return &v }

// StrPtr is a convenience constructor for Index.Orders entries.
func StrPtr(v string) *string { return &v }
