// Package attribute defines the Attribute and RelationshipOptions types
// from the data model (spec section 3).
package attribute

import "github.com/forbearing/docdb/consts"

// RelationshipOptions carries the relationship-specific configuration
// present only on attributes of type "relationship".
type RelationshipOptions struct {
	RelatedCollection string
	RelationType      consts.RelationType
	TwoWay            bool
	TwoWayKey         string
	OnDelete          consts.OnDelete
	Side              consts.RelationSide

	// Junction is the backing junction collection id, populated only for
	// manyToMany relationships. Recorded at creation time (rather than
	// re-derived from the two collection ids) so both sides agree on it
	// regardless of which side originally called createRelationship.
	Junction string
}

// Attribute describes one column of a collection's schema.
type Attribute struct {
	ID            string
	Key           string
	Type          consts.AttributeType
	Size          int
	Required      bool
	Default       any
	Signed        bool
	Array         bool
	Format        string
	FormatOptions map[string]any
	Filters       []string
	Options       map[string]any

	// Relationship is populated iff Type == consts.AttributeRelationship.
	Relationship *RelationshipOptions
}

// Clone returns a deep-enough copy safe to mutate independently.
func (a Attribute) Clone() Attribute {
	clone := a
	if a.FormatOptions != nil {
		clone.FormatOptions = make(map[string]any, len(a.FormatOptions))
		for k, v := range a.FormatOptions {
			clone.FormatOptions[k] = v
		}
	}
	if a.Options != nil {
		clone.Options = make(map[string]any, len(a.Options))
		for k, v := range a.Options {
			clone.Options[k] = v
		}
	}
	if a.Filters != nil {
		clone.Filters = append([]string(nil), a.Filters...)
	}
	if a.Relationship != nil {
		rel := *a.Relationship
		clone.Relationship = &rel
	}
	return clone
}

// IsRelationship reports whether this attribute is a relationship mirror
// rather than a scalar column.
func (a Attribute) IsRelationship() bool {
	return a.Type == consts.AttributeRelationship
}

// RequiresDatetimeFilter reports whether a is a datetime attribute missing
// the mandatory "datetime" filter, per invariant: "datetime attributes must
// carry the datetime filter".
func (a Attribute) RequiresDatetimeFilter() bool {
	if a.Type != consts.AttributeDatetime {
		return false
	}
	for _, f := range a.Filters {
		if f == "datetime" {
			return false
		}
	}
	return true
}
