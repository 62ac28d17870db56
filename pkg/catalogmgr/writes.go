package catalogmgr

import (
	"context"
	"sync"
	"time"

	"github.com/MeridianExplorer/noobaa-core/pkg/catalog"
	"github.com/MeridianExplorer/noobaa-core/pkg/clusterrpc"
	"github.com/MeridianExplorer/noobaa-core/pkg/docstore"
	"github.com/MeridianExplorer/noobaa-core/pkg/log"
	"github.com/MeridianExplorer/noobaa-core/pkg/metrics"
)

// UpdateOp names one document to update by id. Payload is either a literal
// replacement document or an operator update ("$set": {...}); the Manager
// decides which by inspecting Payload's first key.
type UpdateOp struct {
	ID      string
	Payload catalog.Document
}

// CollectionChanges is one collection's slice of a make_changes batch.
type CollectionChanges struct {
	Insert []catalog.Document
	Update []UpdateOp
	Remove []string
}

// Changes is a make_changes batch, grouped by collection.
type Changes map[string]*CollectionChanges

// NewChanges returns an empty batch.
func NewChanges() Changes {
	return make(Changes)
}

func (c Changes) collection(name string) *CollectionChanges {
	cc, ok := c[name]
	if !ok {
		cc = &CollectionChanges{}
		c[name] = cc
	}
	return cc
}

// Insert appends a document to insert into collection.
func (c Changes) Insert(collection string, doc catalog.Document) {
	cc := c.collection(collection)
	cc.Insert = append(cc.Insert, doc)
}

// Update appends an update for id in collection.
func (c Changes) Update(collection, id string, payload catalog.Document) {
	cc := c.collection(collection)
	cc.Update = append(cc.Update, UpdateOp{ID: id, Payload: payload})
}

// Remove appends a removal for id in collection.
func (c Changes) Remove(collection, id string) {
	cc := c.collection(collection)
	cc.Remove = append(cc.Remove, id)
}

func (c Changes) isEmpty() bool {
	return len(c) == 0
}

// merge concatenates other's per-collection arrays onto c, per spec.md
// 4.3's coalescing rule: "arrays concatenate, other fields deep-merge."
// Every field here is an array, so merging is pure concatenation.
func (c Changes) merge(other Changes) {
	for name, cc := range other {
		dst := c.collection(name)
		dst.Insert = append(dst.Insert, cc.Insert...)
		dst.Update = append(dst.Update, cc.Update...)
		dst.Remove = append(dst.Remove, cc.Remove...)
	}
}

// MakeChanges implements the write protocol (spec.md 4.3): refresh, then
// per-collection validate/check_indexes, then an unordered bulk per
// collection executed in parallel, then a cluster-wide reload broadcast.
func (m *Manager) MakeChanges(ctx context.Context, changes Changes) error {
	if changes.isEmpty() {
		return nil
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.MakeChangesDuration)

	snap, err := m.Refresh(ctx)
	if err != nil {
		return err
	}

	opsByCollection := make(map[string][]docstore.WriteOp, len(changes))

	for collection, cc := range changes {
		var ops []docstore.WriteOp

		for _, doc := range cc.Insert {
			if ok, errs := m.registry.Validate(collection, doc); !ok {
				metrics.MakeChangesTotal.WithLabelValues("validation_error").Inc()
				return errs[0]
			}
			if err := snap.CheckIndexes(collection, doc); err != nil {
				metrics.MakeChangesConflictsTotal.WithLabelValues(collection).Inc()
				metrics.MakeChangesTotal.WithLabelValues("conflict").Inc()
				return err
			}
			ops = append(ops, docstore.WriteOp{Kind: docstore.OpInsert, ID: doc.ID(), Doc: doc})
		}

		for _, u := range cc.Update {
			if err := snap.CheckIndexes(collection, mergedForCheck(snap, u.ID, u.Payload)); err != nil {
				metrics.MakeChangesConflictsTotal.WithLabelValues(collection).Inc()
				metrics.MakeChangesTotal.WithLabelValues("conflict").Inc()
				return err
			}
			ops = append(ops, docstore.WriteOp{Kind: docstore.OpUpdate, ID: u.ID, Update: asUpdateOperation(u.Payload)})
		}

		for _, id := range cc.Remove {
			ops = append(ops, docstore.WriteOp{
				Kind:   docstore.OpRemove,
				ID:     id,
				Update: catalog.Document{"$set": catalog.Document{"deleted": time.Now()}},
			})
		}

		opsByCollection[collection] = ops
	}

	if err := m.executeBulksInParallel(ctx, opsByCollection); err != nil {
		metrics.MakeChangesTotal.WithLabelValues("store_error").Inc()
		return err
	}

	metrics.MakeChangesTotal.WithLabelValues("success").Inc()

	if err := m.redirector.Broadcast(clusterrpc.NewReloadMessage()); err != nil {
		log.WithComponent("catalogmgr").Warn().Err(err).Msg("reload broadcast failed")
	} else {
		metrics.ReloadBroadcastsTotal.Inc()
	}

	return nil
}

// executeBulksInParallel runs one unordered bulk per collection
// concurrently; a failed bulk is surfaced as a StoreWriteError but does not
// cancel the others (spec.md 4.3 step 5 / 5).
func (m *Manager) executeBulksInParallel(ctx context.Context, opsByCollection map[string][]docstore.WriteOp) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for collection, ops := range opsByCollection {
		if len(ops) == 0 {
			continue
		}
		wg.Add(1)
		go func(collection string, ops []docstore.WriteOp) {
			defer wg.Done()
			result, err := m.store.BulkWrite(ctx, collection, ops)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = &StoreWriteError{Collection: collection, Err: err}
				}
				mu.Unlock()
				return
			}
			for id, opErr := range result.Failed {
				log.WithCollection(collection).Warn().Str("id", id).Err(opErr).Msg("bulk operation failed, siblings unaffected")
			}
		}(collection, ops)
	}
	wg.Wait()
	return firstErr
}

// MakeChangesInBackground coalesces changes into a pending batch and arms a
// single one-shot timer if one is not already running, per spec.md 4.3's
// background-coalescing operation (S7).
func (m *Manager) MakeChangesInBackground(changes Changes) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()

	m.pending.merge(changes)

	if m.pendingTimer != nil {
		return
	}
	m.pendingTimer = time.AfterFunc(m.cfg.CoalesceInterval, m.flushPending)
}

func (m *Manager) flushPending() {
	m.pendingMu.Lock()
	batch := m.pending
	m.pending = make(Changes)
	m.pendingTimer = nil
	m.pendingMu.Unlock()

	if batch.isEmpty() {
		return
	}

	metrics.CoalescedBatchesTotal.Inc()
	if err := m.MakeChanges(context.Background(), batch); err != nil {
		log.WithComponent("catalogmgr").Warn().Err(err).Msg("coalesced make_changes flush failed")
	}
}

// mergedForCheck builds the post-update view of the existing document so
// CheckIndexes sees the candidate shape an operator update would produce,
// not just the raw payload (which may only carry the changed fields).
func mergedForCheck(snap *catalog.Snapshot, id string, payload catalog.Document) catalog.Document {
	existing, ok := snap.ByID(id)
	if !ok {
		return payload
	}
	merged := make(catalog.Document, len(existing)+len(payload))
	for k, v := range existing {
		merged[k] = v
	}
	fields := payload
	if set, ok := payload["$set"].(catalog.Document); ok {
		fields = set
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}

// asUpdateOperation distinguishes a literal replacement from an operator
// update by inspecting payload's keys (spec.md 4.3 step 3: "inspecting the
// first key"). A valid operator document's keys all begin with "$" — Mongo
// forbids mixing operator and literal fields — so checking any key is
// equivalent to checking the first and needs no assumption about Go's
// unordered map iteration. Anything else is wrapped as a set-all-fields
// operation.
func asUpdateOperation(payload catalog.Document) catalog.Document {
	for k := range payload {
		if len(k) == 0 || k[0] != '$' {
			return catalog.Document{"$set": payload}
		}
	}
	return payload
}
