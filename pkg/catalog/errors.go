package catalog

import "fmt"

// ValidationError reports a schema check failure for one document. On
// insert it aborts the whole batch; on a read-time load it is logged and
// the item is kept as-is for forward compatibility.
type ValidationError struct {
	Collection string
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s.%s: %s", e.Collection, e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Collection, e.Reason)
}

// ConflictError reports a uniqueness or index collision caught by
// CheckIndexes before a write reaches the store. A batch that raises this
// aborts entirely, before any bulk operation runs.
type ConflictError struct {
	Collection    string
	Index         string
	Key           string
	ConflictingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict in %s: index %s key %q already used by %s", e.Collection, e.Index, e.Key, e.ConflictingID)
}

// CheckIndexes replays secondary-index assignment for a candidate item as
// if it were already part of collection, without mutating the snapshot. It
// reports a ConflictError if any non-array index declared on collection
// would map Key to a different id than the candidate's own.
//
// This is a pre-check only: a conflict introduced by a racing writer
// between this check and the store's bulk execution is caught by the
// store's own unique index (spec.md 5).
func (s *Snapshot) CheckIndexes(collection string, item Document) error {
	id := item.ID()
	for _, spec := range s.specsByCol[collection] {
		if spec.ValArray {
			continue
		}
		key, ok := compositeKeyGet(item, spec.Key)
		if !ok {
			continue
		}

		ctx := s.root
		if spec.Context != "" {
			c, ok := dottedGet(item, spec.Context)
			if !ok {
				continue
			}
			// A candidate from a write batch still carries its references as
			// raw ids; find the scope document the way Build would resolve it.
			if ref, isRef := c.(string); isRef {
				if d, found := s.idmap[ref]; found {
					c = d
				}
			}
			if d, ok := c.(Document); ok {
				ctx = d
			} else if m, ok := c.(map[string]interface{}); ok {
				ctx = Document(m)
			} else {
				continue
			}
		}

		bucket, ok := ctx[spec.Name].(map[string]interface{})
		if !ok {
			continue
		}
		existing, ok := bucket[key]
		if !ok {
			continue
		}
		existingID := entityID(existing)
		if existingID != "" && existingID != id {
			return &ConflictError{
				Collection:    collection,
				Index:         spec.Name,
				Key:           key,
				ConflictingID: existingID,
			}
		}
	}
	return nil
}
