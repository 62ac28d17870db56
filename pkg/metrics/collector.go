package metrics

import (
	"time"
)

// StateProvider is implemented by the Catalog Manager so the collector can
// poll its current state without importing pkg/catalogmgr (which in turn
// depends on this package for instrumentation).
type StateProvider interface {
	// State returns the manager's current lifecycle state as a small
	// integer: 0=Cold, 1=Loading, 2=Warm, 3=Refreshing.
	State() int
	// SnapshotAge returns how long ago the current snapshot was
	// published, or zero if no snapshot has ever been published.
	SnapshotAge() time.Duration
}

// Collector periodically samples a StateProvider's gauges so they reflect
// current state even between loads and make_changes calls.
type Collector struct {
	source StateProvider
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector for the given source.
func NewCollector(source StateProvider) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a fixed interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	CatalogState.Set(float64(c.source.State()))
	CatalogSnapshotAgeSeconds.Set(c.source.SnapshotAge().Seconds())
}
