// Package validate implements schema validation, the format registry, and
// index validity checks (spec section 2 "Structure & Index validators" and
// section 4.2).
package validate

import (
	"fmt"
	"strings"

	"github.com/forbearing/docdb/attribute"
	"github.com/forbearing/docdb/collection"
	"github.com/forbearing/docdb/consts"
	"github.com/forbearing/docdb/dberrors"
	"github.com/forbearing/docdb/index"
)

// Limits bundles the adapter-reported limits structure validation is
// bounded by (spec section 6: "Limits... adapter-provided").
type Limits struct {
	MaxAttributes    int
	MaxIndexes       int
	MaxIndexLength   int
	MaxStringSize    int
	MaxIntSize       int
	MaxRowWidth      int
	ArrayIndexLength int
	SupportIndex     bool
	SupportUnique    bool
	SupportFulltext  bool
}

// FormatValidator validates a scalar value against a named format (e.g.
// "email", "url", "enum"); registered process-wide like the filter registry.
type FormatValidator func(value any, options map[string]any) error

var formats = map[string]FormatValidator{
	"email": validateEmail,
	"url":   validateURL,
	"enum":  validateEnum,
	"range": validateRange,
}

// RegisterFormat adds or replaces a named format validator.
func RegisterFormat(name string, fn FormatValidator) {
	formats[name] = fn
}

func validateEmail(value any, _ map[string]any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("email format requires a string")
	}
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 || strings.ContainsAny(s, " \t\n") {
		return fmt.Errorf("invalid email %q", s)
	}
	return nil
}

func validateURL(value any, _ map[string]any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("url format requires a string")
	}
	if !strings.Contains(s, "://") {
		return fmt.Errorf("invalid url %q", s)
	}
	return nil
}

func validateEnum(value any, options map[string]any) error {
	elements, _ := options["elements"].([]string)
	s := fmt.Sprint(value)
	for _, e := range elements {
		if e == s {
			return nil
		}
	}
	return fmt.Errorf("value %q not in enum %v", s, elements)
}

func validateRange(value any, options map[string]any) error {
	min, _ := options["min"].(float64)
	max, _ := options["max"].(float64)
	var v float64
	switch n := value.(type) {
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case float64:
		v = n
	default:
		return fmt.Errorf("range format requires a numeric value")
	}
	if v < min || v > max {
		return fmt.Errorf("value %v out of range [%v, %v]", v, min, max)
	}
	return nil
}

// CheckAttribute is a pure, non-persisting pre-flight limit check (design
// note 9(b)) reused both inside createAttribute and as a standalone dry run.
func CheckAttribute(attr attribute.Attribute, col collection.Collection, limits Limits) error {
	if len(attr.ID) == 0 {
		return dberrors.Structure("attribute id must not be empty")
	}
	if _, exists := col.AttributeByKey(attr.Key); exists {
		return dberrors.Duplicate("attribute %q already exists on collection %q", attr.Key, col.ID)
	}
	if len(col.Attributes)+1 > limits.MaxAttributes && limits.MaxAttributes > 0 {
		return dberrors.Limit("collection %q would exceed max attribute count %d", col.ID, limits.MaxAttributes)
	}
	if attr.Required && attr.Default != nil {
		return dberrors.Structure("attribute %q: required=true requires default=null", attr.Key)
	}
	switch attr.Type {
	case consts.AttributeString:
		if limits.MaxStringSize > 0 && attr.Size > limits.MaxStringSize {
			return dberrors.Limit("attribute %q: string size %d exceeds limit %d", attr.Key, attr.Size, limits.MaxStringSize)
		}
	case consts.AttributeInteger:
		if limits.MaxIntSize > 0 && attr.Size > limits.MaxIntSize {
			return dberrors.Limit("attribute %q: integer size %d exceeds limit %d", attr.Key, attr.Size, limits.MaxIntSize)
		}
	case consts.AttributeDatetime:
		if attr.RequiresDatetimeFilter() {
			return dberrors.Structure("datetime attribute %q must carry the datetime filter", attr.Key)
		}
	}
	width := rowWidth(col) + attributeWidth(attr)
	if limits.MaxRowWidth > 0 && width > limits.MaxRowWidth {
		return dberrors.Limit("collection %q would exceed max row width %d", col.ID, limits.MaxRowWidth)
	}
	return nil
}

func rowWidth(col collection.Collection) int {
	total := 0
	for _, a := range col.Attributes {
		total += attributeWidth(a)
	}
	return total
}

func attributeWidth(a attribute.Attribute) int {
	switch a.Type {
	case consts.AttributeString:
		if a.Size > 0 {
			return a.Size
		}
		return 255
	case consts.AttributeInteger, consts.AttributeFloat:
		return 8
	case consts.AttributeBoolean:
		return 1
	case consts.AttributeDatetime:
		return 8
	default:
		return 0
	}
}

// Structure validates a document's raw attribute map against a collection's
// schema: required fields present, types match, formats satisfied.
func Structure(data map[string]any, col collection.Collection, partial bool) error {
	for _, attr := range col.Attributes {
		if attr.IsRelationship() {
			continue
		}
		value, present := data[attr.Key]
		if !present {
			if attr.Required && !partial {
				return dberrors.Structure("attribute %q is required", attr.Key)
			}
			continue
		}
		if value == nil {
			if attr.Required {
				return dberrors.Structure("attribute %q is required and cannot be null", attr.Key)
			}
			continue
		}
		if attr.Array {
			list, ok := value.([]any)
			if !ok {
				return dberrors.Structure("attribute %q must be an array", attr.Key)
			}
			for _, item := range list {
				if err := checkScalar(attr, item); err != nil {
					return err
				}
			}
		} else {
			if err := checkScalar(attr, value); err != nil {
				return err
			}
		}
		if len(attr.Format) > 0 {
			if validator, ok := formats[attr.Format]; ok {
				if err := validator(value, attr.FormatOptions); err != nil {
					return dberrors.Wrap(dberrors.KindStructure, err, fmt.Sprintf("attribute %q failed format %q", attr.Key, attr.Format))
				}
			}
		}
	}
	return nil
}

func checkScalar(attr attribute.Attribute, value any) error {
	switch attr.Type {
	case consts.AttributeString, consts.AttributeDatetime:
		s, ok := value.(string)
		if !ok {
			return dberrors.Structure("attribute %q must be a string", attr.Key)
		}
		if attr.Type == consts.AttributeString && attr.Size > 0 && len(s) > attr.Size {
			return dberrors.Limit("attribute %q exceeds max size %d", attr.Key, attr.Size)
		}
	case consts.AttributeInteger:
		switch value.(type) {
		case int, int32, int64, float64:
		default:
			return dberrors.Structure("attribute %q must be an integer", attr.Key)
		}
	case consts.AttributeFloat:
		switch value.(type) {
		case float32, float64, int, int64:
		default:
			return dberrors.Structure("attribute %q must be a float", attr.Key)
		}
	case consts.AttributeBoolean:
		if _, ok := value.(bool); !ok {
			return dberrors.Structure("attribute %q must be a boolean", attr.Key)
		}
	}
	return nil
}

// Index validates an index definition against adapter support flags and
// limits, and normalizes lengths/orders per spec section 4.2.
func Index(idx *index.Index, col collection.Collection, limits Limits) error {
	switch idx.Type {
	case consts.IndexUnique:
		if !limits.SupportUnique {
			return dberrors.Limit("adapter does not support unique indexes")
		}
	case consts.IndexFulltext:
		if !limits.SupportFulltext {
			return dberrors.Limit("adapter does not support fulltext indexes")
		}
	case consts.IndexKey:
		if !limits.SupportIndex {
			return dberrors.Limit("adapter does not support indexes")
		}
	default:
		return dberrors.Structure("unknown index type %q", idx.Type)
	}
	if limits.MaxIndexes > 0 && len(col.Indexes)+1 > limits.MaxIndexes {
		return dberrors.Limit("collection %q would exceed max index count %d", col.ID, limits.MaxIndexes)
	}
	for i, attrKey := range idx.Attributes {
		attr, ok := col.AttributeByKey(attrKey)
		if !ok {
			return dberrors.NotFound("index references unknown attribute %q", attrKey)
		}
		if attr.Array {
			// Array attributes are indexed with a fixed length and no order.
			l := limits.ArrayIndexLength
			if l == 0 {
				l = consts.ArrayIndexLength
			}
			idx.Lengths[i] = index.IntPtr(l)
			idx.Orders[i] = nil
			continue
		}
		if attr.Type == consts.AttributeString && attr.Size == limits.MaxIndexLength && limits.MaxIndexLength > 0 {
			// Replace with null sentinel per spec 4.2: attributes whose size
			// equals the adapter's index-length limit need no explicit length.
			idx.Lengths[i] = nil
		}
	}
	return nil
}
