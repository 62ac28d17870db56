package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MeridianExplorer/noobaa-core/pkg/catalog"
)

// MemStore is an in-memory Store used by unit tests and by cmd/catalogctl's
// fixture mode, so both can run without a live Mongo cluster — matching the
// teacher's own tendency to test business logic against the real Store
// interface rather than a mock framework.
type MemStore struct {
	mu          sync.Mutex
	collections map[string]map[string]catalog.Document
	indexes     map[string]map[string]IndexDef
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		collections: make(map[string]map[string]catalog.Document),
		indexes:     make(map[string]map[string]IndexDef),
	}
}

// Seed inserts docs into collection directly, bypassing validation and
// indexing, for test setup.
func (m *MemStore) Seed(collection string, docs ...catalog.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll := m.collectionLocked(collection)
	for _, d := range docs {
		coll[d.ID()] = cloneDoc(d)
	}
}

func (m *MemStore) collectionLocked(name string) map[string]catalog.Document {
	c, ok := m.collections[name]
	if !ok {
		c = make(map[string]catalog.Document)
		m.collections[name] = c
	}
	return c
}

func (m *MemStore) EnsureCollection(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collectionLocked(collection)
	return nil
}

func (m *MemStore) EnsureIndex(ctx context.Context, collection string, idx IndexDef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byName, ok := m.indexes[collection]
	if !ok {
		byName = make(map[string]IndexDef)
		m.indexes[collection] = byName
	}
	byName[idx.Name] = idx
	return nil
}

func (m *MemStore) FindLive(ctx context.Context, collection string) ([]catalog.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll := m.collectionLocked(collection)
	out := make([]catalog.Document, 0, len(coll))
	for _, d := range coll {
		if d.Deleted() {
			continue
		}
		out = append(out, cloneDoc(d))
	}
	return out, nil
}

func (m *MemStore) BulkWrite(ctx context.Context, collection string, ops []WriteOp) (BulkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll := m.collectionLocked(collection)

	result := BulkResult{Failed: make(map[string]error)}
	for _, op := range ops {
		switch op.Kind {
		case OpInsert:
			id := op.Doc.ID()
			if id == "" {
				result.Failed[id] = fmt.Errorf("docstore: insert missing _id")
				continue
			}
			coll[id] = cloneDoc(op.Doc)
			result.Succeeded = append(result.Succeeded, id)
		case OpUpdate:
			existing, ok := coll[op.ID]
			if !ok {
				result.Failed[op.ID] = fmt.Errorf("docstore: update of unknown id %s", op.ID)
				continue
			}
			applyUpdate(existing, op.Update)
			result.Succeeded = append(result.Succeeded, op.ID)
		case OpRemove:
			existing, ok := coll[op.ID]
			if !ok {
				result.Failed[op.ID] = fmt.Errorf("docstore: remove of unknown id %s", op.ID)
				continue
			}
			now := time.Now()
			existing["deleted"] = now
			result.Succeeded = append(result.Succeeded, op.ID)
		}
	}
	return result, nil
}

func (m *MemStore) Close(ctx context.Context) error {
	return nil
}

// applyUpdate mutates existing per update's shape: a literal replacement
// (any key not starting with "$") sets every field; a "$set" operator
// update merges just its fields. This mirrors the subset of MongoDB update
// semantics spec.md 4.3 step 3 actually relies on.
func applyUpdate(existing catalog.Document, update catalog.Document) {
	if setFields, ok := update["$set"].(catalog.Document); ok {
		for k, v := range setFields {
			existing[k] = v
		}
		return
	}
	if setFields, ok := update["$set"].(map[string]interface{}); ok {
		for k, v := range setFields {
			existing[k] = v
		}
		return
	}
	id := existing["_id"]
	for k := range existing {
		delete(existing, k)
	}
	for k, v := range update {
		existing[k] = v
	}
	existing["_id"] = id
}

func cloneDoc(d catalog.Document) catalog.Document {
	out := make(catalog.Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
