// Package docstore is the durable document-store collaborator named in
// spec.md 6: one document collection per catalog collection, every document
// carrying "_id" and a nullable "deleted" timestamp, compound unique
// indexes created at init with background=true, and writes expressed as
// unordered bulk operations.
//
// Store is implemented by MongoStore (backed by go.mongodb.org/mongo-driver,
// the production collaborator) and MemStore (an in-memory fake used by
// tests and the CLI's fixture mode).
package docstore

import (
	"context"

	"github.com/MeridianExplorer/noobaa-core/pkg/catalog"
)

// OpKind names one unordered bulk write operation kind.
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
	OpRemove OpKind = "remove"
)

// WriteOp is one entry of an unordered bulk write. For OpInsert, Doc is the
// full document. For OpUpdate, ID scopes the op and Update is either a
// literal-replacement document or an operator update (first key begins with
// "$") — the Catalog Manager decides which before building this op. For
// OpRemove, ID is the only field that matters.
type WriteOp struct {
	Kind   OpKind
	ID     string
	Doc    catalog.Document
	Update catalog.Document
}

// BulkResult reports per-operation outcomes of an unordered bulk write. A
// failed operation does not prevent its siblings from succeeding
// (allocator semantics, spec.md 4.3 step 5).
type BulkResult struct {
	Succeeded []string
	Failed    map[string]error
}

// IndexDef declares one compound index. Fields are dotted paths into the
// raw (pre-resolution) document, e.g. []string{"system", "name", "deleted"}.
type IndexDef struct {
	Name       string
	Fields     []string
	Unique     bool
	Background bool
}

// Store is the document-store collaborator's interface.
type Store interface {
	// EnsureCollection creates collection if it does not already exist.
	EnsureCollection(ctx context.Context, collection string) error

	// EnsureIndex creates idx on collection if it does not already exist.
	// Called once per process per collection (spec.md 4.3 step 2, memoized
	// by the Catalog Manager, not by the store itself).
	EnsureIndex(ctx context.Context, collection string, idx IndexDef) error

	// FindLive returns every document in collection where deleted is null.
	FindLive(ctx context.Context, collection string) ([]catalog.Document, error)

	// BulkWrite executes ops against collection as a single unordered bulk.
	BulkWrite(ctx context.Context, collection string, ops []WriteOp) (BulkResult, error)

	// Close releases the store's underlying connection.
	Close(ctx context.Context) error
}
