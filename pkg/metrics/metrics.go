package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Trunk metrics
	TrunkOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorndb_trunk_ops_total",
			Help: "Total number of trunk operations by trunk kind, op, and status",
		},
		[]string{"trunk", "op", "status"},
	)

	TrunkOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acorndb_trunk_op_duration_seconds",
			Help:    "Trunk operation duration in seconds by trunk kind and op",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trunk", "op"},
	)

	TrunkFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "acorndb_trunk_flush_duration_seconds",
			Help:    "Time taken to flush a batched trunk's pending writes to disk",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Cache metrics
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorndb_cache_hits_total",
			Help: "Total number of tree cache hits",
		},
	)

	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorndb_cache_misses_total",
			Help: "Total number of tree cache misses",
		},
	)

	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorndb_cache_evictions_total",
			Help: "Total number of cache entries evicted",
		},
	)

	// Root chain metrics
	RootBytesIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorndb_root_bytes_in_total",
			Help: "Total bytes entering a root transform, by root name",
		},
		[]string{"root"},
	)

	RootBytesOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorndb_root_bytes_out_total",
			Help: "Total bytes leaving a root transform, by root name",
		},
		[]string{"root"},
	)

	RootErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorndb_root_errors_total",
			Help: "Total number of root chain transform errors, by root name and direction",
		},
		[]string{"root", "direction"},
	)

	// Tree write-admission metrics
	StashTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorndb_stash_total",
			Help: "Total number of locally authored writes admitted",
		},
	)

	SquabbleTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorndb_squabble_total",
			Help: "Total number of conflict-resolving admissions by outcome",
		},
		[]string{"outcome"}, // incoming_won | local_won | dropped_dedup | dropped_hop_limit
	)

	TossTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorndb_toss_total",
			Help: "Total number of deletes admitted",
		},
	)

	TTLExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorndb_ttl_expired_total",
			Help: "Total number of envelopes reaped by the TTL sweeper",
		},
	)

	// Mesh metrics
	MeshHopsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorndb_mesh_hops_total",
			Help: "Total number of leaves forwarded across branches",
		},
	)

	MeshDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorndb_mesh_dropped_total",
			Help: "Total number of leaves dropped by the mesh, by reason",
		},
		[]string{"reason"}, // hop_limit | already_visited | delivery_failed
	)

	BranchDeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acorndb_branch_delivery_duration_seconds",
			Help:    "Time taken to deliver a leaf to a branch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"remote_tree_id"},
	)
)

func init() {
	prometheus.MustRegister(TrunkOpsTotal)
	prometheus.MustRegister(TrunkOpDuration)
	prometheus.MustRegister(TrunkFlushDuration)

	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CacheEvictionsTotal)

	prometheus.MustRegister(RootBytesIn)
	prometheus.MustRegister(RootBytesOut)
	prometheus.MustRegister(RootErrorsTotal)

	prometheus.MustRegister(StashTotal)
	prometheus.MustRegister(SquabbleTotal)
	prometheus.MustRegister(TossTotal)
	prometheus.MustRegister(TTLExpiredTotal)

	prometheus.MustRegister(MeshHopsTotal)
	prometheus.MustRegister(MeshDroppedTotal)
	prometheus.MustRegister(BranchDeliveryDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
