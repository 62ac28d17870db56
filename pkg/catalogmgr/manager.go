// Package catalogmgr implements the Catalog Manager: the process-wide state
// machine that loads, refreshes, and transactionally mutates the in-memory
// system catalog (pkg/catalog), backed by a document store (pkg/docstore)
// and a cluster-wide reload broadcast (pkg/clusterrpc).
package catalogmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MeridianExplorer/noobaa-core/pkg/catalog"
	"github.com/MeridianExplorer/noobaa-core/pkg/clusterrpc"
	"github.com/MeridianExplorer/noobaa-core/pkg/docstore"
	"github.com/MeridianExplorer/noobaa-core/pkg/log"
	"github.com/MeridianExplorer/noobaa-core/pkg/metrics"
	"github.com/MeridianExplorer/noobaa-core/pkg/schema"
)

// State is one of the Catalog Manager's four process-wide states. The
// numeric values match catalog_state's documented gauge encoding.
type State int32

const (
	Cold State = iota
	Loading
	Warm
	Refreshing
)

func (s State) String() string {
	switch s {
	case Cold:
		return "cold"
	case Loading:
		return "loading"
	case Warm:
		return "warm"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

const loadKey = "load"

// Manager is the Catalog Manager. It is process-wide state: construct one
// per process (or one per test, for isolation) and inject it as a
// dependency rather than reaching for a package-level singleton.
type Manager struct {
	cfg        Config
	store      docstore.Store
	registry   *schema.Registry
	indexSpecs []catalog.IndexSpec
	storeIdx   []storeIndex
	redirector clusterrpc.Redirector
	cache      *Cache

	loadGroup singleflight.Group

	mu       sync.RWMutex
	state    State
	snapshot *catalog.Snapshot
	loadedAt time.Time

	initMu   sync.Mutex
	initDone bool

	registerOnce sync.Once

	pendingMu    sync.Mutex
	pending      Changes
	pendingTimer *time.Timer
}

type storeIndex struct {
	collection string
	def        docstore.IndexDef
}

// NewManager constructs a Manager around store and redirector using the
// collections and unique-index declarations in pkg/schema. cache may be nil
// to disable the local fast-restart cache.
func NewManager(cfg Config, store docstore.Store, redirector clusterrpc.Redirector, cache *Cache) *Manager {
	registry := schema.NewRegistry(schema.Collections()...)

	var catalogSpecs []catalog.IndexSpec
	var storeIdxs []storeIndex
	for _, u := range schema.UniqueIndexSpecs() {
		// A plain (scope, name) pair hangs its catalog index off the scope
		// document itself. A composite (scope, extra scope, name) tuple, as
		// roles needs, has no single document to nest under, so it's indexed
		// at the snapshot root with a composite key instead.
		var ctx, key, idxName string
		fields := []string{}
		if u.ExtraScopeField != "" {
			key = u.ScopeField + "," + u.ExtraScopeField + "," + u.NameField
			idxName = u.Collection + "_by_" + u.ScopeField + "_" + u.ExtraScopeField + "_" + u.NameField
			fields = append(fields, u.ScopeField, u.ExtraScopeField)
		} else {
			ctx = u.ScopeField
			key = u.NameField
			idxName = u.Collection + "_by_" + u.NameField
			if u.ScopeField != "" {
				fields = append(fields, u.ScopeField)
			}
		}
		fields = append(fields, u.NameField, "deleted")

		catalogSpecs = append(catalogSpecs, catalog.IndexSpec{
			Name:       idxName,
			Collection: u.Collection,
			Context:    ctx,
			Key:        key,
		})

		storeIdxs = append(storeIdxs, storeIndex{
			collection: u.Collection,
			def: docstore.IndexDef{
				Name:       idxName + "_unique",
				Fields:     fields,
				Unique:     true,
				Background: true,
			},
		})
	}

	return &Manager{
		cfg:        cfg,
		store:      store,
		registry:   registry,
		indexSpecs: catalogSpecs,
		storeIdx:   storeIdxs,
		redirector: redirector,
		cache:      cache,
		pending:    make(Changes),
	}
}

// State implements metrics.StateProvider.
func (m *Manager) State() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int(m.state)
}

// SnapshotAge implements metrics.StateProvider.
func (m *Manager) SnapshotAge() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot == nil {
		return 0
	}
	return time.Since(m.loadedAt)
}

// Snapshot returns the currently published snapshot, or nil if the Manager
// has never completed a load.
func (m *Manager) Snapshot() *catalog.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Refresh implements the Catalog Manager's age-based state machine
// (spec.md 4.3). It returns the snapshot to use for this call: the cached
// one when still fresh or refreshing in the background, or a freshly
// loaded one when cold or past the force-refresh threshold.
func (m *Manager) Refresh(ctx context.Context) (*catalog.Snapshot, error) {
	m.registerOnce.Do(func() { m.startInvalidationWatch() })

	m.mu.RLock()
	snap := m.snapshot
	age := time.Since(m.loadedAt)
	m.mu.RUnlock()

	// The age-based decision applies whenever a snapshot already exists,
	// regardless of whether one happens to be Warm or mid-Refreshing: a
	// caller arriving while a background refresh is already in flight still
	// gets the cached snapshot immediately if it is fresh enough, and joins
	// the same in-flight load (via the singleflight group in doLoad)
	// otherwise.
	switch {
	case snap != nil && age < m.cfg.StartRefreshThreshold:
		return snap, nil

	case snap != nil && age < m.cfg.ForceRefreshThreshold:
		m.setState(Refreshing)
		go func() {
			if _, err := m.doLoad(context.Background()); err != nil {
				log.WithComponent("catalogmgr").Warn().Err(err).Msg("background refresh failed")
			}
		}()
		return snap, nil

	default:
		v, err := m.doLoad(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

// forceReload bypasses the age check entirely — used by the invalidation
// watch when a cluster reload notification arrives.
func (m *Manager) forceReload(ctx context.Context) error {
	_, err := m.doLoad(ctx)
	return err
}

// doLoad drives exactly one load through the in-flight singleflight group,
// so concurrent callers (synchronous or background) share one result.
func (m *Manager) doLoad(ctx context.Context) (*catalog.Snapshot, error) {
	v, err, _ := m.loadGroup.Do(loadKey, func() (interface{}, error) {
		m.setState(Loading)
		timer := metrics.NewTimer()
		snap, raw, loadErr := m.load(ctx)
		timer.ObserveDuration(metrics.CatalogLoadDuration)

		if loadErr != nil {
			metrics.CatalogLoadsTotal.WithLabelValues("failure").Inc()
			m.mu.Lock()
			if m.snapshot != nil {
				m.state = Warm // previous snapshot remains published (spec.md 7)
			} else {
				m.state = Cold
			}
			m.mu.Unlock()
			return nil, loadErr
		}

		metrics.CatalogLoadsTotal.WithLabelValues("success").Inc()
		m.mu.Lock()
		m.snapshot = snap
		m.loadedAt = time.Now()
		m.state = Warm
		m.mu.Unlock()

		if m.cache != nil {
			if err := m.cache.Save(ctx, raw); err != nil {
				log.WithComponent("catalogmgr").Warn().Err(err).Msg("failed to persist local snapshot cache")
			}
		}

		log.WithComponent("catalogmgr").Info().Msg("catalog snapshot loaded")
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*catalog.Snapshot), nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// load runs the load protocol (spec.md 4.3): ensure store init, fetch live
// documents per collection, validate (logging, not aborting), and build a
// new Snapshot. It does not touch m's published state — the caller swaps.
// The returned raw map is an independent clone taken before Build resolves
// references in place, safe for the local cache to persist.
func (m *Manager) load(ctx context.Context) (*catalog.Snapshot, map[string]catalog.Collection, error) {
	if err := m.ensureStoreInit(ctx); err != nil {
		return nil, nil, err
	}

	raw := make(map[string]catalog.Collection, len(schema.Collections()))
	for _, s := range schema.Collections() {
		docs, err := m.store.FindLive(ctx, s.Collection)
		if err != nil {
			return nil, nil, &LoadError{Collection: s.Collection, Err: err}
		}

		for _, d := range docs {
			if ok, errs := m.registry.Validate(s.Collection, d); !ok {
				metrics.CatalogValidationFailuresTotal.WithLabelValues(s.Collection).Inc()
				for _, verr := range errs {
					log.WithCollection(s.Collection).Warn().Err(verr).Msg("validation failure during load, keeping item")
				}
			}
		}
		raw[s.Collection] = docs
	}

	cached := cloneRaw(raw)

	snap, err := catalog.Build(raw, m.indexSpecs)
	if err != nil {
		return nil, nil, &LoadError{Collection: "*", Err: err}
	}
	for _, c := range snap.Collisions() {
		metrics.CatalogIndexCollisionsTotal.WithLabelValues(c.Index).Inc()
		log.WithComponent("catalogmgr").Warn().Str("collision", c.String()).Msg("non-fatal index collision")
	}

	return snap, cached, nil
}

// ensureStoreInit creates missing collections and declared unique compound
// indexes exactly once per process, per spec.md 4.3 step 2. A reconnect
// clears the memo via invalidateInit so the next load redoes it.
func (m *Manager) ensureStoreInit(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.initDone {
		return nil
	}

	for _, s := range schema.Collections() {
		if err := m.store.EnsureCollection(ctx, s.Collection); err != nil {
			return &LoadError{Collection: s.Collection, Err: fmt.Errorf("ensure collection: %w", err)}
		}
	}
	for _, idx := range m.storeIdx {
		if err := m.store.EnsureIndex(ctx, idx.collection, idx.def); err != nil {
			return &LoadError{Collection: idx.collection, Err: fmt.Errorf("ensure index %s: %w", idx.def.Name, err)}
		}
	}

	m.initDone = true
	return nil
}

// InvalidateInit clears the store-init memo, forcing the next load to
// re-run EnsureCollection/EnsureIndex. Call this when the underlying store
// reconnects (spec.md 4.3's reconnect handling). It does not start a load
// itself; the next Refresh that loads, or a cluster notification, does.
func (m *Manager) InvalidateInit() {
	m.initMu.Lock()
	m.initDone = false
	m.initMu.Unlock()
}

// startInvalidationWatch subscribes to the cluster redirector once per
// process and reloads on every notification received, including this
// process's own self-delivered broadcasts (spec.md 4.3 step 1 / 6.1).
func (m *Manager) startInvalidationWatch() {
	ch := m.redirector.Subscribe()
	go func() {
		for range ch {
			metrics.ReloadsReceivedTotal.Inc()
			if err := m.forceReload(context.Background()); err != nil {
				log.WithComponent("catalogmgr").Warn().Err(err).Msg("reload triggered by cluster invalidation failed")
			}
		}
	}()
}

var _ metrics.StateProvider = (*Manager)(nil)
