// Package catalog builds and queries the in-memory system catalog: an
// immutable, indexed, read-optimized snapshot of the control plane's
// structural entities (systems, accounts, buckets, tiers, tiering policies,
// pools, roles).
//
// The snapshot operates over a generic document representation rather than
// typed Go structs, per the design notes: reference resolution is a
// structural recursive walk, and the resulting graph (bucket -> tiering ->
// tier -> pool, and back-indexes like roles_by_system hanging off an
// account) has cycles that a typed object graph cannot express without
// owning pointers in both directions. Modeling it as an arena of documents
// keyed by id, with non-owning lookup links, sidesteps that.
package catalog

import "regexp"

// Document is one entity as loaded from the store: a JSON-object-shaped bag
// of fields. "_id" is always present; "deleted" is present and non-nil only
// on tombstones.
type Document map[string]interface{}

// ID returns the document's identifier, or "" if absent or not a string.
func (d Document) ID() string {
	id, _ := d["_id"].(string)
	return id
}

// Deleted reports whether the document carries a non-nil "deleted" field.
func (d Document) Deleted() bool {
	v, ok := d["deleted"]
	return ok && v != nil
}

// Collection is a named set of documents as fetched from the store.
type Collection = []Document

// identifierPattern matches the opaque identifier format this project
// generates identifiers in (see pkg/types and google/uuid): it is used to
// distinguish a field whose string value is itself an entity reference from
// an ordinary string field, since detection is by value shape, not by field
// name (spec's own exception is "_id"/"id", handled separately in
// resolveRefs).
var identifierPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// looksLikeIdentifier reports whether s has the shape of an opaque
// identifier value (a UUID), independent of which field it was found in.
func looksLikeIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// IsIdentifier reports whether s has the shape of an opaque identifier
// (the "objectid" format from spec.md 4.1). Exported for the schema
// registry's format validator.
func IsIdentifier(s string) bool {
	return looksLikeIdentifier(s)
}
