package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NOTE: All metrics are defined globally here. The CLI binary links this
// package too and registers the same collectors with zero values, which is
// harmless because it never exposes /metrics.

// namespace defines the global prefix for all metrics (e.g., bifrost_...).
const namespace = "bifrost"

// lowLatencyBuckets defines custom buckets for in-memory operations (assignment).
// Standard buckets start at 5ms, far above the cost of a hash and a few map lookups.
// Range: 10µs to 50ms.
var lowLatencyBuckets = []float64{.00001, .00005, .0001, .0005, .001, .005, .010, .050}

// Assignment outcomes reported on EngineAssignmentsTotal.
const (
	OutcomeAssigned     = "assigned"
	OutcomeOverridden   = "overridden"
	OutcomeNotInSegment = "not_in_segment"
	OutcomeUnallocated  = "unallocated"
)

var (
	// -------------------------------------------------------------------------
	// HTTP API
	// -------------------------------------------------------------------------

	// APIReqDuration measures the latency of HTTP requests.
	// Metric: bifrost_api_http_handling_seconds
	APIReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	// APIReqTotal counts the total number of HTTP requests.
	// Metric: bifrost_api_http_requests_total
	APIReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "path", "code"})

	// -------------------------------------------------------------------------
	// ENGINE
	// -------------------------------------------------------------------------

	// EngineAssignmentsTotal counts membership checks that reached an experiment.
	// Unknown and inactive experiments are not counted per name to keep cardinality bounded.
	// Metric: bifrost_engine_assignments_total
	EngineAssignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "assignments_total",
		Help:      "Total experiment assignments by outcome",
	}, []string{"experiment", "outcome"})

	// EngineSkippedTotal counts checks that never reached bucketing.
	// Metric: bifrost_engine_skipped_total
	EngineSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "skipped_total",
		Help:      "Membership checks skipped before bucketing",
	}, []string{"reason"}) // no_identity, not_loaded, unknown, inactive

	// EngineAssignDuration measures the latency of a single membership check.
	// Metric: bifrost_engine_assign_seconds
	EngineAssignDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "assign_seconds",
		Help:      "Time taken to evaluate experiment membership",
		Buckets:   lowLatencyBuckets,
	})

	// -------------------------------------------------------------------------
	// CATALOG
	// -------------------------------------------------------------------------

	// CatalogLoadsTotal counts catalog loads by status (success, fail).
	// Metric: bifrost_catalog_loads_total
	CatalogLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "loads_total",
		Help:      "Total catalog loads",
	}, []string{"status"})

	// CatalogLoadDuration measures fetch plus parse time of a catalog load.
	// Metric: bifrost_catalog_load_duration_seconds
	CatalogLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "load_duration_seconds",
		Help:      "Time taken to fetch and install the catalog",
		Buckets:   prometheus.DefBuckets,
	})

	// CatalogExperiments reports the number of experiments in the live catalog.
	CatalogExperiments = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "experiments",
		Help:      "Number of experiments in the installed catalog",
	})

	// CatalogSegments reports the number of segments in the live catalog.
	CatalogSegments = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "segments",
		Help:      "Number of segments in the installed catalog",
	})

	// -------------------------------------------------------------------------
	// TELEMETRY (Dimensions)
	// -------------------------------------------------------------------------

	// TelemetryTagsTotal counts tag attempts by result (added, unchanged).
	TelemetryTagsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "telemetry",
		Name:      "tags_total",
		Help:      "Total custom dimension tag attempts",
	}, []string{"result"})

	// TelemetryPublishTotal counts Redis publishes by status (success, unchanged, fail, dropped).
	// "unchanged" means Redis already held the tag, typically because L1 could not hydrate.
	// Metric: bifrost_telemetry_publish_total
	TelemetryPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "telemetry",
		Name:      "publish_total",
		Help:      "Total dimension publishes to Redis",
	}, []string{"status"})

	// TelemetryHydrationsTotal counts L1 entries loaded from Redis by status (success, fail).
	// Metric: bifrost_telemetry_hydrations_total
	TelemetryHydrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "telemetry",
		Name:      "hydrations_total",
		Help:      "Total L1 dimension entries hydrated from Redis",
	}, []string{"status"})

	// TelemetryQueueDepth is the number of tags waiting to be published.
	TelemetryQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "telemetry",
		Name:      "queue_depth",
		Help:      "Current number of dimension updates waiting for publish",
	})

	// TelemetryCacheItems reports the identities tracked by the L1 dimension cache.
	// Otter (S3-FIFO) tracks item count efficiently, not byte size.
	TelemetryCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "telemetry",
		Name:      "l1_cache_items_count",
		Help:      "Current number of identities in the L1 dimension cache",
	})

	TelemetryCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "telemetry",
		Name:      "l1_cache_hits_total",
		Help:      "Total L1 dimension cache hits",
	})

	TelemetryCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "telemetry",
		Name:      "l1_cache_misses_total",
		Help:      "Total L1 dimension cache misses",
	})

	// -------------------------------------------------------------------------
	// SYNCER
	// -------------------------------------------------------------------------

	// SyncerRunsTotal counts refresh cycles by trigger (startup, interval, watch).
	SyncerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "syncer",
		Name:      "runs_total",
		Help:      "Total catalog refresh cycles",
	}, []string{"trigger", "status"})

	// -------------------------------------------------------------------------
	// DATABASE (Pool)
	// -------------------------------------------------------------------------

	// DatabasePoolConnections exposes pgxpool statistics by state (max, total, idle, acquired).
	DatabasePoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_connections",
		Help:      "Connection pool statistics by state",
	}, []string{"state"})
)
