package catalog

import (
	"fmt"
	"strings"
)

// IndexSpec declares one secondary index to build into a Snapshot.
//
//   - Name:       index name, e.g. "buckets_by_name".
//   - Collection: the collection whose items populate this index.
//   - Context:    dotted path, relative to each item, to the (already
//     reference-resolved) document the index should hang off of. Empty
//     means the snapshot root, i.e. a global index.
//   - Key:        dotted path, relative to each item, producing the lookup
//     key. If the resolved value is itself a document, its id is used. May
//     be a comma-separated list of dotted paths for a composite key spanning
//     several fields (e.g. roles' "account,system,role_name"); every part
//     must resolve or the key is treated as absent.
//   - Val:        dotted path for the stored value; empty means the item
//     itself.
//   - ValArray:   true for a one-to-many index (push to a slice instead of
//     overwriting a single slot); duplicates never collide.
type IndexSpec struct {
	Name       string
	Collection string
	Context    string
	Key        string
	Val        string
	ValArray   bool
}

// Collision is a non-fatal duplicate found while building a non-array index.
// The build logs these and continues (spec.md 4.2 phase 3); only cross-
// collection id collisions (phase 1) are build-fatal.
type Collision struct {
	Index         string
	Key           string
	ExistingID    string
	ConflictingID string
}

func (c Collision) String() string {
	return fmt.Sprintf("index %s: key %q already held by %s, ignoring %s", c.Index, c.Key, c.ExistingID, c.ConflictingID)
}

// Snapshot is an immutable, indexed, reference-resolved view of the catalog
// as of one load. Once Build returns a Snapshot, nothing about it mutates;
// a refresh produces an entirely new Snapshot and the Catalog Manager swaps
// the published pointer.
type Snapshot struct {
	idmap      map[string]Document
	root       Document
	specs      []IndexSpec
	specsByCol map[string][]IndexSpec
	collisions []Collision
}

// ByID returns the document with the given id, reference-resolved, or
// (nil, false) if unknown.
func (s *Snapshot) ByID(id string) (Document, bool) {
	d, ok := s.idmap[id]
	return d, ok
}

// Lookup resolves a secondary index. ctx is the context document the index
// hangs off (pass nil for a global index); key is the lookup key. The
// result is either a single Document (non-array index) or []interface{}
// (array index).
func (s *Snapshot) Lookup(indexName string, ctx Document, key string) (interface{}, bool) {
	if ctx == nil {
		ctx = s.root
	}
	bucket, ok := ctx[indexName].(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, ok := bucket[key]
	return v, ok
}

// Collisions returns the non-fatal secondary-index collisions observed
// during Build, for logging.
func (s *Snapshot) Collisions() []Collision {
	return s.collisions
}

// Build constructs a Snapshot from raw per-collection document arrays in
// three phases: id indexing, reference resolution, secondary indexing. A
// duplicate id across (or within) collections is a fatal build error;
// everything else is best-effort per spec.md 4.2.
func Build(raw map[string]Collection, specs []IndexSpec) (*Snapshot, error) {
	s := &Snapshot{
		idmap:      make(map[string]Document),
		root:       make(Document),
		specs:      specs,
		specsByCol: make(map[string][]IndexSpec),
	}
	for _, spec := range specs {
		s.specsByCol[spec.Collection] = append(s.specsByCol[spec.Collection], spec)
	}

	// Phase 1: id index.
	for collName, docs := range raw {
		for _, d := range docs {
			id := d.ID()
			if id == "" {
				return nil, fmt.Errorf("catalog: document in collection %q has no _id", collName)
			}
			if _, ok := s.idmap[id]; ok {
				return nil, fmt.Errorf("catalog: id collision for %q between collections", id)
			}
			s.idmap[id] = d
		}
	}

	// Phase 2: reference resolution, structural and recursive.
	for _, docs := range raw {
		for _, d := range docs {
			s.resolveMapFields(d)
		}
	}

	// Phase 3: secondary indexes.
	for collName, docs := range raw {
		for _, spec := range s.specsByCol[collName] {
			for _, item := range docs {
				s.applyIndex(spec, item)
			}
		}
	}

	return s, nil
}

func (s *Snapshot) resolveMapFields(doc Document) {
	for k, v := range doc {
		if k == "_id" || k == "id" {
			continue
		}
		doc[k] = s.resolveValue(v)
	}
}

func (s *Snapshot) resolveValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case string:
		if looksLikeIdentifier(vv) {
			if d, ok := s.idmap[vv]; ok {
				return d
			}
		}
		return vv
	case []interface{}:
		for i, e := range vv {
			vv[i] = s.resolveValue(e)
		}
		return vv
	case []string:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = s.resolveValue(e)
		}
		return out
	case Document:
		s.resolveMapFields(vv)
		return vv
	case map[string]interface{}:
		s.resolveMapFields(Document(vv))
		return vv
	default:
		return v
	}
}

func (s *Snapshot) applyIndex(spec IndexSpec, item Document) {
	key, ok := compositeKeyGet(item, spec.Key)
	if !ok {
		return
	}

	var val interface{} = item
	if spec.Val != "" {
		v, ok := dottedGet(item, spec.Val)
		if !ok {
			return
		}
		val = v
	}

	ctx := s.root
	if spec.Context != "" {
		c, ok := dottedGet(item, spec.Context)
		if !ok {
			return
		}
		if d, ok := c.(Document); ok {
			ctx = d
		} else if m, ok := c.(map[string]interface{}); ok {
			ctx = Document(m)
		} else {
			return
		}
	}

	bucket, ok := ctx[spec.Name].(map[string]interface{})
	if !ok {
		bucket = make(map[string]interface{})
		ctx[spec.Name] = bucket
	}

	if spec.ValArray {
		arr, _ := bucket[key].([]interface{})
		bucket[key] = append(arr, val)
		return
	}

	if existing, ok := bucket[key]; ok {
		if !sameEntity(existing, val) {
			s.collisions = append(s.collisions, Collision{
				Index:         spec.Name,
				Key:           key,
				ExistingID:    entityID(existing),
				ConflictingID: entityID(val),
			})
		}
		return
	}
	bucket[key] = val
}

func sameEntity(a, b interface{}) bool {
	return entityID(a) == entityID(b)
}

func entityID(v interface{}) string {
	if d, ok := v.(Document); ok {
		return d.ID()
	}
	return fmt.Sprint(v)
}

func keyString(v interface{}) string {
	if d, ok := v.(Document); ok {
		return d.ID()
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// compositeKeyGet resolves spec.Key against item. Key is usually a single
// dotted path, but collections whose natural key spans more than one field
// (e.g. Role's (account, system, role_name) triple) declare it as a
// comma-separated list of dotted paths; every part must resolve or the
// composite key is considered absent, matching dottedGet's all-or-nothing
// behavior for a single path.
func compositeKeyGet(item Document, keyPath string) (string, bool) {
	parts := strings.Split(keyPath, ",")
	keys := make([]string, len(parts))
	for i, p := range parts {
		v, ok := dottedGet(item, strings.TrimSpace(p))
		if !ok {
			return "", false
		}
		keys[i] = keyString(v)
	}
	return strings.Join(keys, "\x1f"), true
}

// dottedGet walks a dotted field path ("a.b.c") starting at doc. Each
// intermediate segment must resolve to a Document (or map[string]interface{});
// the final segment's raw value is returned.
func dottedGet(doc Document, path string) (interface{}, bool) {
	if path == "" {
		return doc, true
	}
	var cur interface{} = doc
	for _, seg := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		v, present := m[seg]
		if !present {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func asMap(v interface{}) (Document, bool) {
	switch m := v.(type) {
	case Document:
		return m, true
	case map[string]interface{}:
		return Document(m), true
	default:
		return nil, false
	}
}
