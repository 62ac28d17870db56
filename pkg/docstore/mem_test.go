package docstore

import (
	"context"
	"testing"

	"github.com/MeridianExplorer/noobaa-core/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_FindLiveExcludesDeleted(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	store.Seed("systems",
		catalog.Document{"_id": "sys-1", "name": "a"},
		catalog.Document{"_id": "sys-2", "name": "b", "deleted": "2020-01-01T00:00:00Z"},
	)

	docs, err := store.FindLive(ctx, "systems")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "sys-1", docs[0].ID())
}

func TestMemStore_BulkWriteInsertThenUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	result, err := store.BulkWrite(ctx, "systems", []WriteOp{
		{Kind: OpInsert, Doc: catalog.Document{"_id": "sys-1", "name": "a"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sys-1"}, result.Succeeded)

	result, err = store.BulkWrite(ctx, "systems", []WriteOp{
		{Kind: OpUpdate, ID: "sys-1", Update: catalog.Document{"$set": catalog.Document{"name": "renamed"}}},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Succeeded, "sys-1")

	docs, err := store.FindLive(ctx, "systems")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "renamed", docs[0]["name"])
}

func TestMemStore_BulkWritePartialFailureDoesNotAbortSiblings(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	result, err := store.BulkWrite(ctx, "systems", []WriteOp{
		{Kind: OpInsert, Doc: catalog.Document{"_id": "sys-1", "name": "a"}},
		{Kind: OpUpdate, ID: "does-not-exist", Update: catalog.Document{"$set": catalog.Document{"name": "x"}}},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Succeeded, "sys-1")
	assert.Contains(t, result.Failed, "does-not-exist")
}

func TestMemStore_Remove_SetsDeletedTimestamp(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	store.Seed("systems", catalog.Document{"_id": "sys-1", "name": "a"})

	_, err := store.BulkWrite(ctx, "systems", []WriteOp{{Kind: OpRemove, ID: "sys-1"}})
	require.NoError(t, err)

	docs, err := store.FindLive(ctx, "systems")
	require.NoError(t, err)
	assert.Empty(t, docs)
}
