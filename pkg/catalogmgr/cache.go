package catalogmgr

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/MeridianExplorer/noobaa-core/pkg/catalog"
)

// Cache is a local, bbolt-backed copy of the last successfully published
// snapshot's raw per-collection documents. It is a fast-restart convenience
// only, never a system of record: a process that starts with a populated
// Cache still performs a normal load against the document store before
// treating any of it as authoritative, and Cache misses or read errors are
// always non-fatal.
type Cache struct {
	db *bolt.DB
}

var cacheBucket = []byte("catalog_snapshot_cache")

// OpenCache opens (creating if absent) a bbolt file at path for use as a
// Manager's local snapshot cache.
func OpenCache(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("catalogmgr: open cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cacheBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalogmgr: init cache bucket: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying bbolt file.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Save persists raw, pre-resolution per-collection documents — the same
// shape FindLive returns — so a later Load can seed a cold start without
// touching the document store. Build resolves references into documents in
// place, so callers must pass a clone taken before Build runs; Save does
// not clone on their behalf.
func (c *Cache) Save(ctx context.Context, raw map[string]catalog.Collection) error {
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("catalogmgr: marshal cache payload: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(cacheBucket).Put([]byte("latest"), payload)
	})
}

// Load returns the last-persisted raw per-collection documents, or
// (nil, false) if nothing has been cached yet.
func (c *Cache) Load(ctx context.Context) (map[string]catalog.Collection, bool, error) {
	var payload []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(cacheBucket).Get([]byte("latest"))
		if v != nil {
			payload = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("catalogmgr: read cache: %w", err)
	}
	if payload == nil {
		return nil, false, nil
	}

	var raw map[string]catalog.Collection
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, false, fmt.Errorf("catalogmgr: unmarshal cache payload: %w", err)
	}
	return raw, true, nil
}

// cloneRaw deep-copies raw's documents. Build mutates a document's fields in
// place to splice in resolved references, so anything kept around after a
// build (the cache snapshot, a retry) must be an independent copy rather
// than the slice Build operated on.
func cloneRaw(raw map[string]catalog.Collection) map[string]catalog.Collection {
	out := make(map[string]catalog.Collection, len(raw))
	for coll, docs := range raw {
		cloned := make(catalog.Collection, len(docs))
		for i, d := range docs {
			cloned[i] = cloneValue(d).(catalog.Document)
		}
		out[coll] = cloned
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case catalog.Document:
		out := make(catalog.Document, len(vv))
		for k, val := range vv {
			out[k] = cloneValue(val)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
