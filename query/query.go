// Package query defines the typed query nodes the engine accepts: filter,
// order, limit, offset, cursor, select, and logical (and/or) combinators.
// Queries arrive as these structured objects — there is no query-language
// parser in this module, per the spec's non-goals.
package query

// Method enumerates the supported filter comparison operators.
type Method string

const (
	Equal              Method = "equal"
	NotEqual           Method = "notEqual"
	LessThan           Method = "lessThan"
	LessThanEqual      Method = "lessThanEqual"
	GreaterThan        Method = "greaterThan"
	GreaterThanEqual   Method = "greaterThanEqual"
	Between            Method = "between"
	IsNull             Method = "isNull"
	IsNotNull          Method = "isNotNull"
	StartsWith         Method = "startsWith"
	EndsWith           Method = "endsWith"
	Contains           Method = "contains"
	Search             Method = "search"
	OrderAsc           Method = "orderAsc"
	OrderDesc          Method = "orderDesc"
	Limit_             Method = "limit"
	Offset_            Method = "offset"
	CursorAfter        Method = "cursorAfter"
	CursorBefore       Method = "cursorBefore"
	Select_            Method = "select"
	And                Method = "and"
	Or                 Method = "or"
)

// Query is one node in a query expression: either a leaf (attribute +
// comparison + values) or a logical combinator wrapping nested queries.
type Query struct {
	method   Method
	attr     string
	values   []any
	children []*Query
}

func (q *Query) Method() Method    { return q.method }
func (q *Query) Attribute() string { return q.attr }
func (q *Query) Values() []any     { return q.values }
func (q *Query) Children() []*Query { return q.children }

// IsLogical reports whether this node combines other queries (and/or)
// rather than filtering on a single attribute.
func (q *Query) IsLogical() bool {
	return q.method == And || q.method == Or
}

// IsFilter reports whether this node is a comparison filter (as opposed to
// order/limit/offset/cursor/select modifiers, which shape the result set
// rather than restrict it).
func (q *Query) IsFilter() bool {
	switch q.method {
	case OrderAsc, OrderDesc, Limit_, Offset_, CursorAfter, CursorBefore, Select_, And, Or:
		return false
	default:
		return true
	}
}

func leaf(method Method, attr string, values ...any) *Query {
	return &Query{method: method, attr: attr, values: values}
}

func Eq(attr string, value any) *Query              { return leaf(Equal, attr, value) }
func NotEq(attr string, value any) *Query            { return leaf(NotEqual, attr, value) }
func LessThan_(attr string, value any) *Query         { return leaf(LessThan, attr, value) }
func LessThanEq(attr string, value any) *Query        { return leaf(LessThanEqual, attr, value) }
func GreaterThan_(attr string, value any) *Query      { return leaf(GreaterThan, attr, value) }
func GreaterThanEq(attr string, value any) *Query     { return leaf(GreaterThanEqual, attr, value) }
func BetweenValues(attr string, lo, hi any) *Query     { return leaf(Between, attr, lo, hi) }
func Null(attr string) *Query                        { return leaf(IsNull, attr) }
func NotNull(attr string) *Query                     { return leaf(IsNotNull, attr) }
func StartsWithValue(attr, value string) *Query      { return leaf(StartsWith, attr, value) }
func EndsWithValue(attr, value string) *Query        { return leaf(EndsWith, attr, value) }
func ContainsValue(attr string, values ...any) *Query { return leaf(Contains, attr, values...) }
func SearchValue(attr, value string) *Query          { return leaf(Search, attr, value) }

func OrderAscBy(attr string) *Query  { return leaf(OrderAsc, attr) }
func OrderDescBy(attr string) *Query { return leaf(OrderDesc, attr) }

func LimitTo(n int) *Query   { return leaf(Limit_, "", n) }
func OffsetBy(n int) *Query  { return leaf(Offset_, "", n) }

func CursorAfterID(id string) *Query  { return leaf(CursorAfter, "", id) }
func CursorBeforeID(id string) *Query { return leaf(CursorBefore, "", id) }

// Select chooses which attributes to return. Dotted paths (e.g. "author.name")
// restrict a relationship's nested selection per §4.3.
func Select(attrs ...string) *Query {
	values := make([]any, len(attrs))
	for i, a := range attrs {
		values[i] = a
	}
	return &Query{method: Select_, values: values}
}

// AndQueries combines children with logical AND.
func AndQueries(children ...*Query) *Query { return &Query{method: And, children: children} }

// OrQueries combines children with logical OR.
func OrQueries(children ...*Query) *Query { return &Query{method: Or, children: children} }

// Set is a convenience slice-of-*Query with lookup helpers used by the
// engine when decomposing a caller's query list.
type Set []*Query

// Filters returns only the comparison-filter nodes (top-level; does not
// recurse into And/Or children).
func (s Set) Filters() []*Query {
	out := make([]*Query, 0, len(s))
	for _, q := range s {
		if q.IsFilter() {
			out = append(out, q)
		}
	}
	return out
}

// Orders returns the orderAsc/orderDesc nodes, in the order supplied.
func (s Set) Orders() []*Query {
	out := make([]*Query, 0)
	for _, q := range s {
		if q.method == OrderAsc || q.method == OrderDesc {
			out = append(out, q)
		}
	}
	return out
}

// Limit returns the first limit(n) value found, or 0 if absent.
func (s Set) Limit() int {
	for _, q := range s {
		if q.method == Limit_ {
			if n, ok := q.values[0].(int); ok {
				return n
			}
		}
	}
	return 0
}

// Offset returns the first offset(n) value found, or 0 if absent.
func (s Set) Offset() int {
	for _, q := range s {
		if q.method == Offset_ {
			if n, ok := q.values[0].(int); ok {
				return n
			}
		}
	}
	return 0
}

// SelectAttrs returns the union of all select(...) attribute lists, or nil
// (meaning "all attributes") if no select node is present.
func (s Set) SelectAttrs() []string {
	var out []string
	for _, q := range s {
		if q.method == Select_ {
			for _, v := range q.values {
				if str, ok := v.(string); ok {
					out = append(out, str)
				}
			}
		}
	}
	return out
}

// CursorAfter returns the cursorAfter id and whether one was supplied.
func (s Set) CursorAfter() (string, bool) {
	for _, q := range s {
		if q.method == CursorAfter {
			if id, ok := q.values[0].(string); ok {
				return id, true
			}
		}
	}
	return "", false
}
