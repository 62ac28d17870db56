package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Catalog state gauges
	CatalogState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_state",
			Help: "Catalog Manager state (0=Cold, 1=Loading, 2=Warm, 3=Refreshing)",
		},
	)

	CatalogSnapshotAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_snapshot_age_seconds",
			Help: "Age of the currently published snapshot in seconds",
		},
	)

	CatalogLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_loads_total",
			Help: "Total number of catalog loads by outcome",
		},
		[]string{"outcome"},
	)

	CatalogLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_load_duration_seconds",
			Help:    "Time taken to load and publish a catalog snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	CatalogValidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_validation_failures_total",
			Help: "Total number of schema validation failures by collection",
		},
		[]string{"collection"},
	)

	CatalogIndexCollisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_index_collisions_total",
			Help: "Total number of non-fatal secondary index collisions observed while building a snapshot",
		},
		[]string{"index"},
	)

	// make_changes metrics
	MakeChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_make_changes_total",
			Help: "Total number of make_changes batches by outcome",
		},
		[]string{"outcome"},
	)

	MakeChangesDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_make_changes_duration_seconds",
			Help:    "Time taken to execute a make_changes batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	MakeChangesConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_make_changes_conflicts_total",
			Help: "Total number of make_changes batches aborted by a conflict, by collection",
		},
		[]string{"collection"},
	)

	CoalescedBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_coalesced_batches_total",
			Help: "Total number of background-coalesced batches flushed",
		},
	)

	// Cluster RPC metrics
	ReloadBroadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_reload_broadcasts_total",
			Help: "Total number of cluster-wide reload notifications published",
		},
	)

	ReloadsReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_reloads_received_total",
			Help: "Total number of reload notifications received from the cluster RPC subscription",
		},
	)

	// Placement Analyzer metrics
	PlacementDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placement_decisions_total",
			Help: "Total number of per-fragment placement decisions by health bucket",
		},
		[]string{"health"},
	)

	PlacementBlocksToRemoveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placement_blocks_to_remove_total",
			Help: "Total number of blocks marked for removal by liveness bucket",
		},
		[]string{"bucket"},
	)

	PlacementAllocationsRequestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "placement_allocations_requested_total",
			Help: "Total number of block allocation requests emitted by the analyzer",
		},
	)

	PlacementAnalyzeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "placement_analyze_duration_seconds",
			Help:    "Time taken by one chunk placement analysis",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	// Register catalog metrics
	prometheus.MustRegister(CatalogState)
	prometheus.MustRegister(CatalogSnapshotAgeSeconds)
	prometheus.MustRegister(CatalogLoadsTotal)
	prometheus.MustRegister(CatalogLoadDuration)
	prometheus.MustRegister(CatalogValidationFailuresTotal)
	prometheus.MustRegister(CatalogIndexCollisionsTotal)

	// Register make_changes metrics
	prometheus.MustRegister(MakeChangesTotal)
	prometheus.MustRegister(MakeChangesDuration)
	prometheus.MustRegister(MakeChangesConflictsTotal)
	prometheus.MustRegister(CoalescedBatchesTotal)

	// Register cluster RPC metrics
	prometheus.MustRegister(ReloadBroadcastsTotal)
	prometheus.MustRegister(ReloadsReceivedTotal)

	// Register placement metrics
	prometheus.MustRegister(PlacementDecisionsTotal)
	prometheus.MustRegister(PlacementBlocksToRemoveTotal)
	prometheus.MustRegister(PlacementAllocationsRequestedTotal)
	prometheus.MustRegister(PlacementAnalyzeDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
