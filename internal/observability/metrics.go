package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NOTE: Currently, all metrics are defined globally here.
// This causes a harmless side-effect where a service (e.g., the SDK plane)
// initializes metrics from other services (e.g., the admin plane) with zero values.
//
// TODO(refactor): When the number of metrics grows significantly, split this
// package into sub-packages (metrics/sdk, metrics/admin) to isolate initialization.

// namespace defines the global prefix for all metrics (e.g., ff_...).
const namespace = "ff"

// lowLatencyBuckets defines custom buckets for high-performance operations (SDK plane).
// Standard buckets are too coarse (starting at 5ms), so we add 1ms and 2ms resolution.
// Range: 1ms to 500ms.
var lowLatencyBuckets = []float64{.001, .002, .005, .010, .015, .020, .025, .030, .050, .100, .500}

var (
	// -------------------------------------------------------------------------
	// ADMIN PLANE (HTTP)
	// -------------------------------------------------------------------------

	// AdminPlaneReqDuration measures the latency of admin HTTP requests.
	// Metric: ff_admin_plane_http_handling_seconds
	AdminPlaneReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "admin_plane",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests in the admin plane",
		Buckets:   prometheus.DefBuckets, // Standard buckets are fine for admin APIs (human speed)
	}, []string{"method", "route"})

	// AdminPlaneReqTotal counts the total number of admin HTTP requests.
	// Metric: ff_admin_plane_http_requests_total
	AdminPlaneReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "admin_plane",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests in the admin plane",
	}, []string{"method", "route", "code"})

	// -------------------------------------------------------------------------
	// SDK PLANE (HTTP + Evaluation)
	// -------------------------------------------------------------------------

	// SDKPlaneReqDuration measures the latency of SDK evaluate requests.
	// Metric: ff_sdk_plane_http_handling_seconds
	SDKPlaneReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sdk_plane",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle SDK requests",
		Buckets:   lowLatencyBuckets, // Custom buckets for < 20ms SLO
	}, []string{"method", "route"})

	// SDKPlaneReqTotal counts the total number of SDK requests.
	// Metric: ff_sdk_plane_http_requests_total
	SDKPlaneReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sdk_plane",
		Name:      "http_requests_total",
		Help:      "Total SDK requests",
	}, []string{"method", "route", "code"})

	// EvalResults counts flag decisions by coarse reason.
	// Per-rule reasons are collapsed to "rule_match" to keep cardinality bounded.
	EvalResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eval",
		Name:      "results_total",
		Help:      "Total per-flag evaluation results by reason",
	}, []string{"reason"}) // flag_off, rule_match, no_rule_match

	// EvalDefects counts stored-data defects observed during evaluation.
	EvalDefects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "eval",
		Name:      "defects_total",
		Help:      "Total flag configuration defects observed during evaluation",
	}, []string{"kind"})

	// --- Snapshot Cache Metrics ---

	// CacheHits counts snapshot cache hits per layer (memory, redis).
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total snapshot cache hits by layer",
	}, []string{"layer"})

	// CacheMisses counts snapshot cache misses per layer.
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total snapshot cache misses by layer",
	}, []string{"layer"})

	// CacheItems tracks the current number of snapshots in the memory layer.
	CacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "memory_items_count",
		Help:      "Current number of snapshots in the in-memory cache",
	})

	// CacheInvalidations counts invalidation events received via Pub/Sub.
	CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "invalidations_total",
		Help:      "Total cache invalidation events received via PubSub",
	})

	// SnapshotLoadDuration measures how long a full snapshot load takes when
	// every cache layer misses and the database is hit.
	SnapshotLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "snapshot_load_seconds",
		Help:      "Time taken to load an evaluation snapshot from the database",
		Buckets:   lowLatencyBuckets,
	})
)
