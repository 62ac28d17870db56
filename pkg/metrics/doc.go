/*
Package metrics exposes Prometheus instrumentation for the catalog and
placement core: Catalog Manager state and snapshot age, load/make_changes
outcome counters and durations, index collision and validation failure
counts, cluster RPC reload traffic, and per-fragment placement decisions.

It also carries a small HTTP health surface (/health, /ready, /live)
independent of Prometheus, for orchestrators that want a liveness/readiness
probe rather than a metrics scrape.

# Usage

	metrics.CatalogState.Set(float64(catalogmgr.Warm))
	metrics.CatalogLoadsTotal.WithLabelValues("success").Inc()

	timer := metrics.NewTimer()
	snap, err := build()
	timer.ObserveDuration(metrics.CatalogLoadDuration)

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())

# Collector

Collector polls a StateProvider (implemented by the Catalog Manager) on a
fixed interval so CatalogState and CatalogSnapshotAgeSeconds stay current
even when no load or make_changes call is in flight.
*/
package metrics
