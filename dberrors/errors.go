// Package dberrors defines the engine's error taxonomy on top of
// github.com/cockroachdb/errors, following the wrapping/unwrapping idiom
// used throughout the teacher repository's database and config packages.
package dberrors

import (
	"github.com/cockroachdb/errors"
)

// Kind names one semantic error category raised by the engine.
type Kind string

const (
	KindNotFound      Kind = "not_found"
	KindDuplicate     Kind = "duplicate"
	KindLimit         Kind = "limit"
	KindStructure     Kind = "structure"
	KindQuery         Kind = "query"
	KindAuthorization Kind = "authorization"
	KindRestricted    Kind = "restricted"
	KindRelationship  Kind = "relationship"
	KindConflict      Kind = "conflict"
	KindDatabase      Kind = "database"
)

// kindError carries a Kind alongside the wrapped cause so errors.As can
// recover it after any amount of errors.Wrap layering.
type kindError struct {
	kind Kind
	msg  string
	err  error
}

func (e *kindError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *kindError) Unwrap() error { return e.err }

// New creates a new error of the given kind with a message.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Newf creates a new error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, msg: errors.Newf(format, args...).Error()}
}

// Wrap wraps err with the given kind and message, preserving err as the cause.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, msg: msg, err: err}
}

// Wrapf wraps err with the given kind and a formatted message.
func Wrapf(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, msg: errors.Newf(format, args...).Error(), err: err}
}

// GetKind returns the Kind carried by err, or KindDatabase if err does not
// carry a recognized kind (e.g. it originated outside this package).
func GetKind(err error) Kind {
	if err == nil {
		return ""
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindDatabase
}

// Is reports whether the outermost Kind in err's chain (as returned by
// GetKind) is kind; a Kind buried under another kindError is not seen.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}

func IsNotFound(err error) bool      { return Is(err, KindNotFound) }
func IsDuplicate(err error) bool     { return Is(err, KindDuplicate) }
func IsLimit(err error) bool         { return Is(err, KindLimit) }
func IsStructure(err error) bool     { return Is(err, KindStructure) }
func IsQuery(err error) bool         { return Is(err, KindQuery) }
func IsAuthorization(err error) bool { return Is(err, KindAuthorization) }
func IsRestricted(err error) bool    { return Is(err, KindRestricted) }
func IsRelationship(err error) bool  { return Is(err, KindRelationship) }
func IsConflict(err error) bool      { return Is(err, KindConflict) }
func IsDatabase(err error) bool      { return Is(err, KindDatabase) }

// Convenience constructors mirroring the taxonomy table.

func NotFound(format string, args ...any) error {
	return Newf(KindNotFound, format, args...)
}

func Duplicate(format string, args ...any) error {
	return Newf(KindDuplicate, format, args...)
}

func Limit(format string, args ...any) error {
	return Newf(KindLimit, format, args...)
}

func Structure(format string, args ...any) error {
	return Newf(KindStructure, format, args...)
}

func Query(format string, args ...any) error {
	return Newf(KindQuery, format, args...)
}

func Authorization(format string, args ...any) error {
	return Newf(KindAuthorization, format, args...)
}

func Restricted(format string, args ...any) error {
	return Newf(KindRestricted, format, args...)
}

func Relationship(format string, args ...any) error {
	return Newf(KindRelationship, format, args...)
}

func Conflict(format string, args ...any) error {
	return Newf(KindConflict, format, args...)
}

func Database(format string, args ...any) error {
	return Newf(KindDatabase, format, args...)
}

// WrapDatabase wraps an adapter/invariant failure as KindDatabase, the
// generic catch-all per the taxonomy table.
func WrapDatabase(err error, msg string) error {
	return Wrap(KindDatabase, err, msg)
}

// WrapAdapter wraps an error returned by an Adapter call, preserving any Kind
// the adapter already attached (e.g. Duplicate for a primary-key collision)
// instead of collapsing it to KindDatabase. Adapter failures that carry no
// recognized kind of their own still fall back to KindDatabase.
func WrapAdapter(err error, msg string) error {
	if err == nil {
		return nil
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return err
	}
	return Wrap(KindDatabase, err, msg)
}
