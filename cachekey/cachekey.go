// Package cachekey implements the deterministic cache key derivation and
// purge-set helpers from spec section 4.4.
package cachekey

import (
	"crypto/md5" //nolint:gosec // used for a non-cryptographic cache key digest, not security.
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Namer derives the "<cacheName>-cache-<host?>:<prefix>" common key prefix
// shared by every key this engine instance produces.
type Namer struct {
	CacheName string
	Host      string
	Prefix    string
}

func (n Namer) base() string {
	host := n.Host
	if len(host) == 0 {
		return fmt.Sprintf("%s-cache:%s", n.CacheName, n.Prefix)
	}
	return fmt.Sprintf("%s-cache-%s:%s", n.CacheName, host, n.Prefix)
}

// CollectionKey derives the per-collection parent key. tenant is nil for
// global collections (spec: "Global collections... use tenant=null").
func (n Namer) CollectionKey(tenant *int, collectionID string) string {
	return fmt.Sprintf("%s:%s:collection:%s", n.base(), tenantSegment(tenant), collectionID)
}

// DocumentKey derives the per-document key nested under its collection key.
func (n Namer) DocumentKey(tenant *int, collectionID, documentID string) string {
	return n.CollectionKey(tenant, collectionID) + ":" + documentID
}

// HashKey derives the per-query-shape key nested under a document key, used
// when a read supplies a `select` list: the hash distinguishes cached
// partial projections of the same document.
func (n Namer) HashKey(tenant *int, collectionID, documentID string, selects []string) string {
	docKey := n.DocumentKey(tenant, collectionID, documentID)
	if len(selects) == 0 {
		return docKey
	}
	return docKey + ":" + HashSelects(selects)
}

// HashSelects returns the md5 hex digest of the sorted, comma-joined select
// list, matching "hashKey = documentKey + ':' + md5(join(selects))".
func HashSelects(selects []string) string {
	sorted := append([]string(nil), selects...)
	sort.Strings(sorted)
	sum := md5.Sum([]byte(strings.Join(sorted, ","))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func tenantSegment(tenant *int) string {
	if tenant == nil {
		return "null"
	}
	return fmt.Sprintf("%d", *tenant)
}

// RelatedDocKey derives the "map:<collectionId>:<id>" key used to record
// reverse-edge references captured during relationship population, so a
// write can purge every doc whose populated result embedded it (spec
// section 4.4 purge rules).
func RelatedDocKey(collectionID, id string) string {
	return fmt.Sprintf("map:%s:%s", collectionID, id)
}
