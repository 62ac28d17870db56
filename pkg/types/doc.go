// Package types is the foundation of the catalog's data model: systems,
// accounts, roles, buckets, tiering policies, tiers, and pools, plus the
// hydrated placement inputs (chunks, blocks, nodes, pool groups).
//
// Entity structs double as the shape documents take in the document store
// (bson tags) and as fixtures/manifests on the CLI side (json tags). The
// catalog itself does not store these structs directly — see pkg/catalog for
// the generic, id-resolved representation entities are converted into once
// loaded.
package types
