package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Process/route metrics
	ProcessesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_processes_total",
			Help: "Total number of live processes",
		},
	)

	RoutesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_routes_total",
			Help: "Total number of open routes across every mailbox group",
		},
	)

	ProcessesKilledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_processes_killed_total",
			Help: "Total number of mailbox groups that have been killed",
		},
	)

	// Mailbox metrics
	MailboxQueueDepth = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hearth_mailbox_queue_depth",
			Help:    "Observed queue depth at delivery time",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	MailboxSignalsDeliveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_mailbox_signals_delivered_total",
			Help: "Total number of signals enqueued into any mailbox",
		},
	)

	// Lump and asset store metrics
	LumpStoreBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_lump_store_bytes",
			Help: "Total bytes held in the in-memory lump store",
		},
	)

	LumpStoreEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_lump_store_entries",
			Help: "Total number of distinct lumps held",
		},
	)

	AssetCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_asset_cache_hits_total",
			Help: "Total number of asset loads served from cache, by loader name",
		},
		[]string{"loader"},
	)

	AssetCacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_asset_cache_misses_total",
			Help: "Total number of asset loads that had to build, by loader name",
		},
		[]string{"loader"},
	)

	AssetBuildDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hearth_asset_build_duration_seconds",
			Help:    "Time taken to build an asset, by loader name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"loader"},
	)

	// Connection metrics
	ConnectionFramesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_connection_frames_read_total",
			Help: "Total number of connection frames read, by operation",
		},
		[]string{"op"},
	)

	ConnectionFramesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_connection_frames_written_total",
			Help: "Total number of connection frames written, by operation",
		},
		[]string{"op"},
	)

	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_connections_active",
			Help: "Number of currently open remote connections",
		},
	)

	// Wasm guest host metrics
	WasmGuestsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hearth_wasm_guests_active",
			Help: "Number of currently running wasm guest processes",
		},
	)

	WasmEpochPreemptionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_wasm_epoch_preemptions_total",
			Help: "Total number of guest calls aborted by the epoch ticker after their group was killed",
		},
	)

	WasmGuestTrapsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hearth_wasm_guest_traps_total",
			Help: "Total number of guest calls that ended in a trap",
		},
	)

	// Registry metrics
	RegistryRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hearth_registry_requests_total",
			Help: "Total number of registry requests, by operation",
		},
		[]string{"op"},
	)

	// Health metrics
	ComponentHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hearth_component_healthy",
			Help: "1 if a registered subsystem's last health probe succeeded, 0 otherwise",
		},
		[]string{"component"},
	)
)

func init() {
	prometheus.MustRegister(
		ProcessesTotal,
		RoutesTotal,
		ProcessesKilledTotal,
		MailboxQueueDepth,
		MailboxSignalsDeliveredTotal,
		LumpStoreBytes,
		LumpStoreEntries,
		AssetCacheHitsTotal,
		AssetCacheMissesTotal,
		AssetBuildDuration,
		ConnectionFramesReadTotal,
		ConnectionFramesWrittenTotal,
		ConnectionsActive,
		WasmGuestsActive,
		WasmEpochPreemptionsTotal,
		WasmGuestTrapsTotal,
		RegistryRequestsTotal,
		ComponentHealthy,
	)
}

// Handler returns the Prometheus HTTP handler serving the process's
// registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing an in-flight operation against a
// histogram, used throughout the runtime's hot paths (asset builds,
// connection round trips, guest calls).
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labelled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
