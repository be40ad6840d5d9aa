// Package monitoring exposes Prometheus metrics and health/readiness/
// liveness HTTP handlers for the scene and tile pipeline.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// ServiceName is the name reported in health and system-info metrics.
	ServiceName = "vectorscene"
)

var (
	// Scene lifecycle metrics.
	SceneLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorscene_scene_loads_total",
			Help: "Total number of scene load attempts",
		},
		[]string{"status"},
	)

	SceneLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vectorscene_scene_load_duration_seconds",
			Help:    "Scene load duration in seconds, from the start of the scene import until the scene is built or its load is canceled",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"status"},
	)

	ScenesDisposedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vectorscene_scenes_disposed_total",
			Help: "Total number of scenes disposed by the ordered worker",
		},
	)

	// Import metrics.
	ImportFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorscene_import_fetches_total",
			Help: "Total number of document fetches performed by the scene importer",
		},
		[]string{"status"},
	)

	ImportDepthMax = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vectorscene_import_depth_max",
			Help: "Deepest import chain observed in the most recently completed import",
		},
	)

	// Tile fetch/decode metrics.
	TileFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorscene_tile_fetches_total",
			Help: "Total number of tile fetches",
		},
		[]string{"source", "status"},
	)

	TileFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vectorscene_tile_fetch_duration_seconds",
			Help:    "Tile fetch duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"source"},
	)

	TileDecodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorscene_tile_decodes_total",
			Help: "Total number of tile decode attempts",
		},
		[]string{"format", "status"},
	)

	// Cache metrics.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorscene_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorscene_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorscene_cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"cache_type"},
	)

	CacheSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vectorscene_cache_size_bytes",
			Help: "Current cache footprint in bytes",
		},
		[]string{"cache_type"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vectorscene_cache_entries",
			Help: "Current number of entries held in cache",
		},
		[]string{"cache_type"},
	)

	CachePinned = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vectorscene_cache_pinned_entries",
			Help: "Current number of entries pinned against eviction",
		},
		[]string{"cache_type"},
	)

	// Worker pool metrics.
	WorkerPoolQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vectorscene_workpool_queue_depth",
			Help: "Number of queued tasks awaiting a worker",
		},
		[]string{"pool"},
	)

	WorkerPoolActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vectorscene_workpool_active_workers",
			Help: "Number of workers currently executing a task",
		},
		[]string{"pool"},
	)

	WorkerPoolTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorscene_workpool_tasks_total",
			Help: "Total number of tasks executed by a worker pool",
		},
		[]string{"pool", "status"},
	)

	// Transport / rate limiting metrics.
	RateLimitWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vectorscene_rate_limit_wait_duration_seconds",
			Help:    "Time spent waiting for the per-host rate limiter",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"host"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorscene_errors_total",
			Help: "Total number of errors by component and code",
		},
		[]string{"component", "code"},
	)

	// System metrics.
	SystemInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vectorscene_system_info",
			Help: "Build information",
		},
		[]string{"version", "go_version", "build_commit", "build_date"},
	)

	GoRoutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vectorscene_goroutines",
			Help: "Number of goroutines",
		},
	)

	MemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vectorscene_memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
	)

	GCRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vectorscene_gc_runs_total",
			Help: "Total number of garbage collection runs",
		},
	)
)

// ServiceHealth is the JSON body served by the health handler.
type ServiceHealth struct {
	Service       string                 `json:"service"`
	Version       string                 `json:"version"`
	Status        string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Uptime        time.Duration          `json:"uptime"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	StartTime     time.Time              `json:"start_time,omitempty"`
	Connections   map[string]ConnStatus  `json:"connections"`
	Metrics       map[string]interface{} `json:"metrics,omitempty"`
}

// ConnStatus describes the status of a single monitored dependency
// (a tile source host, an OTLP collector, and so on).
type ConnStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // "connected", "disconnected", "error"
	Latency   int64  `json:"latency_ms,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// RecordSceneLoad records the outcome and duration of a scene load.
func RecordSceneLoad(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	SceneLoadsTotal.WithLabelValues(status).Inc()
	SceneLoadDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordSceneDisposed records a completed scene disposal.
func RecordSceneDisposed() {
	ScenesDisposedTotal.Inc()
}

// RecordImportFetch records the outcome of one document fetch during import.
func RecordImportFetch(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	ImportFetchesTotal.WithLabelValues(status).Inc()
}

// RecordTileFetch records the outcome and duration of a tile fetch.
func RecordTileFetch(source string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	TileFetchesTotal.WithLabelValues(source, status).Inc()
	TileFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordTileDecode records the outcome of a tile payload decode.
func RecordTileDecode(format string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	TileDecodesTotal.WithLabelValues(format, status).Inc()
}

// RecordCacheHit records a cache hit for the given cache type.
func RecordCacheHit(cacheType string) {
	CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss for the given cache type.
func RecordCacheMiss(cacheType string) {
	CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordCacheEviction records an eviction for the given cache type.
func RecordCacheEviction(cacheType string) {
	CacheEvictionsTotal.WithLabelValues(cacheType).Inc()
}

// UpdateCacheStats sets the size/entry/pinned gauges for a cache type.
func UpdateCacheStats(cacheType string, sizeBytes int64, entries, pinned int) {
	CacheSizeBytes.WithLabelValues(cacheType).Set(float64(sizeBytes))
	CacheEntries.WithLabelValues(cacheType).Set(float64(entries))
	CachePinned.WithLabelValues(cacheType).Set(float64(pinned))
}

// UpdateWorkerPoolStats sets the queue-depth and active-worker gauges for a pool.
func UpdateWorkerPoolStats(pool string, queueDepth, active int) {
	WorkerPoolQueueDepth.WithLabelValues(pool).Set(float64(queueDepth))
	WorkerPoolActive.WithLabelValues(pool).Set(float64(active))
}

// RecordWorkerPoolTask records a completed worker pool task.
func RecordWorkerPoolTask(pool string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	WorkerPoolTasksTotal.WithLabelValues(pool, status).Inc()
}

// RecordRateLimitWait records time spent waiting on the per-host limiter.
func RecordRateLimitWait(host string, duration time.Duration) {
	RateLimitWaitTime.WithLabelValues(host).Observe(duration.Seconds())
}

// RecordError records an error by owning component and sceneerr code.
func RecordError(component, code string) {
	ErrorsTotal.WithLabelValues(component, code).Inc()
}
