// Package filter implements the named encode/decode codec registry applied
// per attribute on document write/read, per spec section 4.1 and design
// note "Filter registry": a process-wide mapping name -> {encode, decode}
// plus a per-instance overlay where the instance overlay wins.
package filter

import (
	"encoding/json"
	"time"

	"github.com/forbearing/docdb/dberrors"
)

// Context is the minimal state a filter may consult: the full document
// being encoded/decoded and a resolver callback a filter can use to call
// back into the engine (e.g. to resolve references). Filters must be safe
// to re-enter, since a resolver call may itself trigger further filters.
type Context struct {
	// Document is the raw attribute map of the document currently being
	// processed (both system and user fields).
	Document map[string]any
	// Resolve, if non-nil, lets a filter call back into the engine, e.g.
	// to look up a referenced document by id.
	Resolve func(collectionID, id string) (map[string]any, error)
}

// Codec is a named pair of pure functions applied to a single attribute
// value on encode (write path) and decode (read path). Decode must be the
// exact inverse of Encode for any value the Encode accepts, per the
// roundtrip invariant decode(encode(doc)) == doc.
type Codec struct {
	Name   string
	Encode func(value any, ctx *Context) (any, error)
	Decode func(value any, ctx *Context) (any, error)
}

// Registry holds a process-wide set of codecs plus, per engine instance, an
// overlay where locally registered codecs shadow process-wide ones of the
// same name.
type Registry struct {
	global   map[string]Codec
	overlay  map[string]Codec
}

var processWide = newRegistry()

func newRegistry() *Registry {
	return &Registry{global: make(map[string]Codec), overlay: make(map[string]Codec)}
}

// Global returns the process-wide registry, pre-populated with the
// built-in datetime and json filters registered by init().
func Global() *Registry { return processWide }

// NewInstance returns a registry overlaying the process-wide one; codecs
// registered here take precedence over process-wide codecs of the same name.
func NewInstance() *Registry {
	r := newRegistry()
	r.global = processWide.global
	return r
}

// Register adds (or replaces) a codec in this registry's own overlay.
func (r *Registry) Register(c Codec) {
	r.overlay[c.Name] = c
}

// RegisterGlobal adds a codec to the process-wide registry directly; used
// by init() for the built-ins and by applications wiring custom filters
// before any engine starts.
func RegisterGlobal(c Codec) {
	processWide.global[c.Name] = c
}

// Get resolves name, preferring the instance overlay over the process-wide
// registry.
func (r *Registry) Get(name string) (Codec, bool) {
	if c, ok := r.overlay[name]; ok {
		return c, true
	}
	c, ok := r.global[name]
	return c, ok
}

// Encode applies names in order, each codec's Encode output feeding the next.
func (r *Registry) Encode(names []string, value any, ctx *Context) (any, error) {
	out := value
	for _, name := range names {
		c, ok := r.Get(name)
		if !ok {
			return nil, dberrors.Structure("unknown filter %q", name)
		}
		var err error
		out, err = c.Encode(out, ctx)
		if err != nil {
			return nil, dberrors.Wrap(dberrors.KindStructure, err, "filter "+name+" encode failed")
		}
	}
	return out, nil
}

// Decode applies names in reverse order, inverting Encode.
func (r *Registry) Decode(names []string, value any, ctx *Context) (any, error) {
	out := value
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		c, ok := r.Get(name)
		if !ok {
			return nil, dberrors.Structure("unknown filter %q", name)
		}
		var err error
		out, err = c.Decode(out, ctx)
		if err != nil {
			return nil, dberrors.Wrap(dberrors.KindStructure, err, "filter "+name+" decode failed")
		}
	}
	return out, nil
}

func init() {
	RegisterGlobal(Codec{Name: "datetime", Encode: datetimeEncode, Decode: datetimeDecode})
	RegisterGlobal(Codec{Name: "json", Encode: jsonEncode, Decode: jsonDecode})
}

// DatetimeDBLayout is the in-database datetime layout: YYYY-MM-DD
// HH:mm:ss.SSS UTC, per spec section 6.
const DatetimeDBLayout = "2006-01-02 15:04:05.000"

// datetimeEncode converts an ISO-8601 API string (or time.Time) to the
// in-database layout.
func datetimeEncode(value any, _ *Context) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(DatetimeDBLayout), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, dberrors.Structure("invalid ISO-8601 datetime %q: %v", v, err)
		}
		return t.UTC().Format(DatetimeDBLayout), nil
	default:
		return nil, dberrors.Structure("datetime filter received non-datetime value %T", value)
	}
}

// datetimeDecode converts the in-database layout back to an ISO-8601 string.
func datetimeDecode(value any, _ *Context) (any, error) {
	if value == nil {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		if t, ok := value.(time.Time); ok {
			return t.UTC().Format(time.RFC3339Nano), nil
		}
		return nil, dberrors.Structure("datetime filter received non-string value %T", value)
	}
	t, err := time.Parse(DatetimeDBLayout, s)
	if err != nil {
		// Tolerate values already in ISO form (e.g. round-tripped in memory).
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2.UTC().Format(time.RFC3339Nano), nil
		}
		return nil, dberrors.Structure("invalid stored datetime %q: %v", s, err)
	}
	return t.UTC().Format(time.RFC3339Nano), nil
}

// jsonEncode marshals arbitrary structured values (e.g. arrays) to a JSON
// string for adapters that store them in a text column.
func jsonEncode(value any, _ *Context) (any, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, dberrors.Wrap(dberrors.KindStructure, err, "json filter encode failed")
	}
	return string(b), nil
}

// jsonDecode parses a stored JSON string back into a Go value.
func jsonDecode(value any, _ *Context) (any, error) {
	if value == nil {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	if len(s) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, dberrors.Wrap(dberrors.KindStructure, err, "json filter decode failed")
	}
	return out, nil
}
