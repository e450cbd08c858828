// Package permission implements the authorization model described in
// spec section 4.5: a permission is an (action, role) tuple serialized as
// a string "action:role"; an authorization check succeeds iff the caller's
// role set intersects the union of the collection's action list and
// (when documentSecurity is true) the document's action list. "any"
// always matches.
//
// This replaces the teacher's casbin-based global policy engine: casbin
// models subject/object/action policies evaluated against a shared rule
// set, which does not fit a per-document, per-collection ephemeral
// permission list evaluated by set intersection. See DESIGN.md.
package permission

import (
	"strings"

	"github.com/forbearing/docdb/consts"
)

// Permission is one (action, role) pair.
type Permission struct {
	Action consts.Action
	Role   string
}

// String serializes the permission as "action:role", the wire form stored
// in the $permissions system field and the collection's permission list.
func (p Permission) String() string {
	return string(p.Action) + ":" + p.Role
}

// New builds a permission string for action and role.
func New(action consts.Action, role string) string {
	return Permission{Action: action, Role: role}.String()
}

// Parse decodes a serialized permission string into its action and role.
func Parse(s string) (Permission, bool) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return Permission{}, false
	}
	return Permission{Action: consts.Action(s[:idx]), Role: s[idx+1:]}, true
}

// Roles is the caller's set of roles presented for an authorization check.
type Roles []string

// Has reports whether the role set contains role or the "any" wildcard.
func (r Roles) Has(role string) bool {
	for _, have := range r {
		if have == consts.RoleAny || have == role {
			return true
		}
	}
	return false
}

// Authorize reports whether roles may perform action against the union of
// collectionPermissions and (when documentSecurity) documentPermissions.
//
// "write" on a permission entry authorizes create/update/delete actions in
// addition to "write" itself, per the spec's action semantics.
func Authorize(action consts.Action, roles Roles, collectionPermissions []string, documentSecurity bool, documentPermissions []string) bool {
	allowed := make(map[string]bool)
	collect := func(perms []string) {
		for _, raw := range perms {
			p, ok := Parse(raw)
			if !ok {
				continue
			}
			if matchesAction(p.Action, action) {
				allowed[p.Role] = true
			}
		}
	}
	collect(collectionPermissions)
	if documentSecurity {
		collect(documentPermissions)
	}
	if allowed[consts.RoleAny] {
		return true
	}
	for _, role := range roles {
		if role == consts.RoleAny {
			return true
		}
		if allowed[role] {
			return true
		}
	}
	return false
}

// matchesAction reports whether a stored permission's action covers the
// requested action: an exact match, or "write" covering create/update/delete.
func matchesAction(stored, requested consts.Action) bool {
	if stored == requested {
		return true
	}
	if stored == consts.ActionWrite {
		switch requested {
		case consts.ActionCreate, consts.ActionUpdate, consts.ActionDelete:
			return true
		}
	}
	return false
}

// IsMetadataCollection reports whether collectionID is the self-describing
// catalog, for which reads/writes skip document-level authorization
// entirely (spec 4.5: "Metadata collection reads/writes skip doc-level auth").
func IsMetadataCollection(collectionID string) bool {
	return collectionID == consts.MetadataCollection
}

// scopeKey is a context key type that nothing reads or writes: Scope below
// and events.Silent each keep their skip/silent state on their own value.
type scopeKey struct{}

// Scope tracks whether authorization checks are currently bypassed. It is
// not safe for concurrent mutation from multiple goroutines sharing one
// Scope value, matching the engine's single-threaded-per-call-chain model
// (spec section 5).
type Scope struct {
	skipped bool
}

// NewScope returns a Scope with authorization enabled.
func NewScope() *Scope { return &Scope{} }

// Skipped reports whether authorization checks are currently bypassed.
func (s *Scope) Skipped() bool { return s != nil && s.skipped }

// Skip runs fn with authorization checks bypassed, restoring the previous
// state on both normal and panicking exit.
func (s *Scope) Skip(fn func() error) error {
	prev := s.skipped
	s.skipped = true
	defer func() { s.skipped = prev }()
	return fn()
}
