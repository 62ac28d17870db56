package catalogmgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeridianExplorer/noobaa-core/pkg/catalog"
	"github.com/MeridianExplorer/noobaa-core/pkg/clusterrpc"
	"github.com/MeridianExplorer/noobaa-core/pkg/docstore"
)

func testManager(t *testing.T) (*Manager, *docstore.MemStore) {
	t.Helper()
	store := docstore.NewMemStore()
	broker := clusterrpc.NewLocalBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	cfg := DefaultConfig()
	m := NewManager(cfg, store, broker, nil)
	return m, store
}

func TestManager_ColdLoadPublishesSnapshot(t *testing.T) {
	m, store := testManager(t)
	store.Seed("systems", catalog.Document{"_id": "sys-1", "name": "acme"})

	assert.Equal(t, Cold, State(m.State()))

	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)

	doc, ok := snap.ByID("sys-1")
	require.True(t, ok)
	assert.Equal(t, "acme", doc["name"])
	assert.Equal(t, Warm, State(m.State()))
}

func TestManager_RefreshWithinStartThresholdReturnsCached(t *testing.T) {
	m, store := testManager(t)
	store.Seed("systems", catalog.Document{"_id": "sys-1", "name": "acme"})

	first, err := m.Refresh(context.Background())
	require.NoError(t, err)

	store.Seed("systems", catalog.Document{"_id": "sys-2", "name": "other"})

	second, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, ok := second.ByID("sys-2")
	assert.False(t, ok, "fresh insert should not appear until the cache ages past the refresh threshold")
}

func TestManager_RefreshPastForceThresholdReloads(t *testing.T) {
	m, store := testManager(t)
	store.Seed("systems", catalog.Document{"_id": "sys-1", "name": "acme"})

	_, err := m.Refresh(context.Background())
	require.NoError(t, err)

	store.Seed("systems", catalog.Document{"_id": "sys-2", "name": "other"})

	m.mu.Lock()
	m.loadedAt = time.Now().Add(-2 * m.cfg.ForceRefreshThreshold)
	m.mu.Unlock()

	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)

	_, ok := snap.ByID("sys-2")
	assert.True(t, ok)
}

func TestManager_ConcurrentRefreshesShareOneLoad(t *testing.T) {
	m, store := testManager(t)
	store.Seed("systems", catalog.Document{"_id": "sys-1", "name": "acme"})

	const n = 20
	results := make(chan *catalog.Snapshot, n)
	for i := 0; i < n; i++ {
		go func() {
			snap, err := m.Refresh(context.Background())
			require.NoError(t, err)
			results <- snap
		}()
	}

	first := <-results
	for i := 1; i < n; i++ {
		assert.Same(t, first, <-results)
	}
}

func TestManager_LoadFailureKeepsPreviousSnapshotPublished(t *testing.T) {
	m, store := testManager(t)
	store.Seed("systems", catalog.Document{"_id": "sys-1", "name": "acme"})

	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)

	failing := &failingStore{Store: store}
	m.store = failing

	m.mu.Lock()
	m.loadedAt = time.Now().Add(-2 * m.cfg.ForceRefreshThreshold)
	m.mu.Unlock()

	_, err = m.Refresh(context.Background())
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)

	assert.Same(t, snap, m.Snapshot())
	assert.Equal(t, Warm, State(m.State()))
}

func TestManager_ReconnectClearsInitMemo(t *testing.T) {
	m, store := testManager(t)
	store.Seed("systems", catalog.Document{"_id": "sys-1", "name": "acme"})

	_, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, m.initDone)

	m.InvalidateInit()
	assert.False(t, m.initDone)

	_, err = m.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, m.initDone)
}

// failingStore wraps a Store and fails every FindLive call, to exercise
// LoadError handling without a real broken connection.
type failingStore struct {
	docstore.Store
}

func (f *failingStore) FindLive(ctx context.Context, collection string) ([]catalog.Document, error) {
	return nil, errSimulatedStoreFailure
}

var errSimulatedStoreFailure = errors.New("simulated store failure")
