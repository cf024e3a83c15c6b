/*
Package metrics provides Prometheus metrics collection and exposition for
the hearth runtime.

Metrics are registered at package init and updated directly at their
call sites inside pkg/postoffice, pkg/lump, pkg/asset, pkg/connection,
pkg/wasmhost, and pkg/registry — there is no separate polling collector;
each package instruments its own hot paths the moment something
happens, the same way pkg/scheduler did in the cluster this runtime's
plugin and process machinery was adapted from.

# Metrics Catalog

Process and Route Metrics:

hearth_processes_total:
  - Type: Gauge
  - Description: Total number of live mailbox groups (processes)
  - Example: hearth_processes_total 42

hearth_routes_total:
  - Type: Gauge
  - Description: Total number of open routes across every mailbox group

hearth_processes_killed_total:
  - Type: Counter
  - Description: Total number of mailbox groups that have been killed

Mailbox Metrics:

hearth_mailbox_queue_depth:
  - Type: Histogram
  - Description: Observed queue depth at delivery time
  - Buckets: exponential, base 1, factor 2, 10 buckets

hearth_mailbox_signals_delivered_total:
  - Type: Counter
  - Description: Total number of signals enqueued into any mailbox

Lump and Asset Store Metrics:

hearth_lump_store_bytes:
  - Type: Gauge
  - Description: Total bytes held in the in-memory lump store

hearth_lump_store_entries:
  - Type: Gauge
  - Description: Total number of distinct lumps held

hearth_asset_cache_hits_total{loader}:
  - Type: Counter
  - Description: Asset loads served from cache, by loader name

hearth_asset_cache_misses_total{loader}:
  - Type: Counter
  - Description: Asset loads that had to build, by loader name

hearth_asset_build_duration_seconds{loader}:
  - Type: Histogram
  - Description: Time taken to build an asset, by loader name
  - Buckets: prometheus.DefBuckets

Connection Metrics:

hearth_connection_frames_read_total{op}:
  - Type: Counter
  - Description: Connection frames read, by CapOperation variant

hearth_connection_frames_written_total{op}:
  - Type: Counter
  - Description: Connection frames written, by CapOperation variant

hearth_connections_active:
  - Type: Gauge
  - Description: Number of currently open remote connections

Wasm Guest Host Metrics:

hearth_wasm_guests_active:
  - Type: Gauge
  - Description: Number of currently running wasm guest instances
    (metadata-phase and running-phase instances both count while live)

hearth_wasm_epoch_preemptions_total:
  - Type: Counter
  - Description: Cancellations issued by the epoch ticker, one per tick
    for each registered guest instance whose owning group was killed;
    an instance still unwinding may be counted on several ticks

hearth_wasm_guest_traps_total:
  - Type: Counter
  - Description: Guest calls that ended in a trap (instantiate failure
    or a trapping exported function call)

Registry Metrics:

hearth_registry_requests_total{op}:
  - Type: Counter
  - Description: Registry requests handled, by op (get/register/list)

# Usage

Updating Gauge Metrics:

	import "github.com/cuemby/hearthd/pkg/metrics"

	metrics.ProcessesTotal.Inc()
	metrics.ProcessesTotal.Dec()

Updating Counter Metrics:

	metrics.ProcessesKilledTotal.Inc()
	metrics.AssetCacheHitsTotal.WithLabelValues("wasm_module").Inc()

Recording Histogram Observations:

	metrics.MailboxQueueDepth.Observe(float64(depth))

	// Using the Timer helper
	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.AssetBuildDuration, "wasm_module")

Exposing the Endpoint:

	http.Handle("/metrics", metrics.Handler())

# Design Patterns

Package Init Registration:
  - Every metric is registered once in init() via a single
    prometheus.MustRegister call
  - MustRegister panics on duplicate registration
  - No runtime registration needed

Direct Instrumentation:
  - Counters and histograms are updated inline at the single
    canonical mutation site for the thing they count (e.g.
    Mailbox.enqueueLocked, not a periodic scan of every mailbox)
  - Gauges that track a count already guarded by a mutex (process
    count, route count, active connections, active guests) are
    Inc/Dec'd at the same guarded site rather than recomputed
  - Idempotency guards (atomic.Bool.CompareAndSwap, sync.Once) sit
    alongside any Dec() reachable from more than one call path, so a
    double-close or cascading kill cannot double-decrement a gauge

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
  - Histogram best practices: https://prometheus.io/docs/practices/histograms/
*/
package metrics
