package catalogmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeridianExplorer/noobaa-core/pkg/catalog"
)

func TestManager_MakeChanges_InsertThenVisibleAfterRefresh(t *testing.T) {
	m, _ := testManager(t)
	store := m.store

	changes := NewChanges()
	changes.Insert("systems", catalog.Document{"_id": "sys-1", "name": "acme"})

	require.NoError(t, m.MakeChanges(context.Background(), changes))

	docs, err := store.FindLive(context.Background(), "systems")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "acme", docs[0]["name"])

	// The snapshot loaded at the start of MakeChanges is still fresh, so
	// Refresh keeps returning it until the reload triggered by the batch's
	// broadcast has published a new one.
	require.Eventually(t, func() bool {
		_, ok := m.Snapshot().ByID("sys-1")
		return ok
	}, time.Second, 10*time.Millisecond, "broadcast-triggered reload should publish the insert")

	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)
	_, ok := snap.ByID("sys-1")
	assert.True(t, ok)
}

func TestManager_MakeChanges_DuplicateNameConflictAbortsBatch(t *testing.T) {
	m, store := testManager(t)
	store.Seed("systems", catalog.Document{"_id": "sys-1", "name": "acme"})
	_, err := m.Refresh(context.Background())
	require.NoError(t, err)

	changes := NewChanges()
	changes.Insert("systems", catalog.Document{"_id": "sys-2", "name": "acme"})

	err = m.MakeChanges(context.Background(), changes)
	require.Error(t, err)
	var conflictErr *catalog.ConflictError
	require.ErrorAs(t, err, &conflictErr)

	docs, err := store.FindLive(context.Background(), "systems")
	require.NoError(t, err)
	assert.Len(t, docs, 1, "the conflicting insert must not reach the store")
}

func TestManager_MakeChanges_DuplicateRoleTripleConflictAbortsBatch(t *testing.T) {
	const acctID = "11111111-1111-1111-1111-111111111111"
	const sysID = "22222222-2222-2222-2222-222222222222"

	m, store := testManager(t)
	store.Seed("accounts", catalog.Document{"_id": acctID, "email": "a@example.com"})
	store.Seed("systems", catalog.Document{"_id": sysID, "name": "acme"})
	store.Seed("roles", catalog.Document{"_id": "33333333-3333-3333-3333-333333333333", "account": acctID, "system": sysID, "role_name": "admin"})
	_, err := m.Refresh(context.Background())
	require.NoError(t, err)

	changes := NewChanges()
	changes.Insert("roles", catalog.Document{"_id": "44444444-4444-4444-4444-444444444444", "account": acctID, "system": sysID, "role_name": "admin"})

	err = m.MakeChanges(context.Background(), changes)
	require.Error(t, err)
	var conflictErr *catalog.ConflictError
	require.ErrorAs(t, err, &conflictErr)

	docs, err := store.FindLive(context.Background(), "roles")
	require.NoError(t, err)
	assert.Len(t, docs, 1, "the conflicting role insert must not reach the store")
}

func TestManager_MakeChanges_SameRoleNameDifferentSystemIsNotAConflict(t *testing.T) {
	const acctID = "11111111-1111-1111-1111-111111111111"
	const sys1ID = "22222222-2222-2222-2222-222222222222"
	const sys2ID = "55555555-5555-5555-5555-555555555555"

	m, store := testManager(t)
	store.Seed("accounts", catalog.Document{"_id": acctID, "email": "a@example.com"})
	store.Seed("systems", catalog.Document{"_id": sys1ID, "name": "acme"}, catalog.Document{"_id": sys2ID, "name": "other"})
	store.Seed("roles", catalog.Document{"_id": "33333333-3333-3333-3333-333333333333", "account": acctID, "system": sys1ID, "role_name": "admin"})
	_, err := m.Refresh(context.Background())
	require.NoError(t, err)

	changes := NewChanges()
	changes.Insert("roles", catalog.Document{"_id": "44444444-4444-4444-4444-444444444444", "account": acctID, "system": sys2ID, "role_name": "admin"})

	require.NoError(t, m.MakeChanges(context.Background(), changes))

	docs, err := store.FindLive(context.Background(), "roles")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestManager_MakeChanges_ValidationFailureAbortsBatch(t *testing.T) {
	m, store := testManager(t)

	changes := NewChanges()
	changes.Insert("systems", catalog.Document{"_id": "sys-1"}) // missing required "name"

	err := m.MakeChanges(context.Background(), changes)
	require.Error(t, err)
	var valErr *catalog.ValidationError
	require.ErrorAs(t, err, &valErr)

	docs, err := store.FindLive(context.Background(), "systems")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestManager_MakeChanges_RemoveSetsDeletedAndIsHiddenFromSnapshot(t *testing.T) {
	m, store := testManager(t)
	store.Seed("systems", catalog.Document{"_id": "sys-1", "name": "acme"})
	_, err := m.Refresh(context.Background())
	require.NoError(t, err)

	changes := NewChanges()
	changes.Remove("systems", "sys-1")
	require.NoError(t, m.MakeChanges(context.Background(), changes))

	docs, err := store.FindLive(context.Background(), "systems")
	require.NoError(t, err)
	assert.Empty(t, docs)

	// Wait for the reload triggered by the batch's broadcast; until it
	// publishes, Refresh returns the still-fresh pre-remove snapshot.
	require.Eventually(t, func() bool {
		_, ok := m.Snapshot().ByID("sys-1")
		return !ok
	}, time.Second, 10*time.Millisecond, "broadcast-triggered reload should drop the removed document")

	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)
	_, ok := snap.ByID("sys-1")
	assert.False(t, ok)
}

func TestManager_MakeChanges_BroadcastsReloadOnSuccess(t *testing.T) {
	m, _ := testManager(t)
	sub := m.redirector.Subscribe()

	changes := NewChanges()
	changes.Insert("systems", catalog.Document{"_id": "sys-1", "name": "acme"})
	require.NoError(t, m.MakeChanges(context.Background(), changes))

	select {
	case <-sub:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reload broadcast after make_changes")
	}
}

func TestManager_MakeChangesInBackground_CoalescesIntoOneBulk(t *testing.T) {
	m, store := testManager(t)
	m.cfg.CoalesceInterval = 20 * time.Millisecond

	first := NewChanges()
	first.Insert("systems", catalog.Document{"_id": "sys-1", "name": "a"})
	m.MakeChangesInBackground(first)

	second := NewChanges()
	second.Insert("systems", catalog.Document{"_id": "sys-2", "name": "b"})
	m.MakeChangesInBackground(second)

	require.Eventually(t, func() bool {
		docs, err := store.FindLive(context.Background(), "systems")
		return err == nil && len(docs) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestAsUpdateOperation_WrapsLiteralPayload(t *testing.T) {
	out := asUpdateOperation(catalog.Document{"name": "renamed"})
	set, ok := out["$set"].(catalog.Document)
	require.True(t, ok)
	assert.Equal(t, "renamed", set["name"])
}

func TestAsUpdateOperation_PassesThroughOperatorPayload(t *testing.T) {
	payload := catalog.Document{"$set": catalog.Document{"name": "renamed"}}
	out := asUpdateOperation(payload)
	assert.Equal(t, payload, out)
}

func TestChanges_MergeConcatenatesArrays(t *testing.T) {
	a := NewChanges()
	a.Insert("systems", catalog.Document{"_id": "sys-1"})
	b := NewChanges()
	b.Insert("systems", catalog.Document{"_id": "sys-2"})
	b.Remove("systems", "sys-3")

	a.merge(b)

	cc := a["systems"]
	require.Len(t, cc.Insert, 2)
	require.Len(t, cc.Remove, 1)
}
