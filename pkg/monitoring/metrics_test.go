package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsInitialization(t *testing.T) {
	metrics := []prometheus.Collector{
		SceneLoadsTotal,
		SceneLoadDuration,
		ScenesDisposedTotal,
		ImportFetchesTotal,
		ImportDepthMax,
		TileFetchesTotal,
		TileFetchDuration,
		TileDecodesTotal,
		CacheHits,
		CacheMisses,
		CacheEvictionsTotal,
		CacheSizeBytes,
		CacheEntries,
		CachePinned,
		WorkerPoolQueueDepth,
		WorkerPoolActive,
		WorkerPoolTasksTotal,
		RateLimitWaitTime,
		ErrorsTotal,
		SystemInfo,
		GoRoutines,
		MemoryUsage,
		GCRuns,
	}

	for _, metric := range metrics {
		if metric == nil {
			t.Error("metric is nil")
		}
	}
}

func TestRecordSceneLoad(t *testing.T) {
	SceneLoadsTotal.Reset()

	RecordSceneLoad(100*time.Millisecond, true)
	if got := testutil.ToFloat64(SceneLoadsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("expected 1 successful scene load, got %v", got)
	}

	RecordSceneLoad(200*time.Millisecond, false)
	if got := testutil.ToFloat64(SceneLoadsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 failed scene load, got %v", got)
	}
}

func TestRecordSceneDisposed(t *testing.T) {
	before := testutil.ToFloat64(ScenesDisposedTotal)
	RecordSceneDisposed()
	if got := testutil.ToFloat64(ScenesDisposedTotal); got != before+1 {
		t.Errorf("expected scene disposals to increment by 1, got %v -> %v", before, got)
	}
}

func TestRecordImportFetch(t *testing.T) {
	ImportFetchesTotal.Reset()

	RecordImportFetch(true)
	if got := testutil.ToFloat64(ImportFetchesTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("expected 1 successful import fetch, got %v", got)
	}

	RecordImportFetch(false)
	if got := testutil.ToFloat64(ImportFetchesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 failed import fetch, got %v", got)
	}
}

func TestRecordTileFetch(t *testing.T) {
	TileFetchesTotal.Reset()

	RecordTileFetch("mvt-demo", 50*time.Millisecond, true)
	if got := testutil.ToFloat64(TileFetchesTotal.WithLabelValues("mvt-demo", "success")); got != 1 {
		t.Errorf("expected 1 successful tile fetch, got %v", got)
	}

	RecordTileFetch("mvt-demo", 30*time.Millisecond, false)
	if got := testutil.ToFloat64(TileFetchesTotal.WithLabelValues("mvt-demo", "error")); got != 1 {
		t.Errorf("expected 1 failed tile fetch, got %v", got)
	}
}

func TestRecordTileDecode(t *testing.T) {
	TileDecodesTotal.Reset()

	RecordTileDecode("mvt", true)
	if got := testutil.ToFloat64(TileDecodesTotal.WithLabelValues("mvt", "success")); got != 1 {
		t.Errorf("expected 1 successful decode, got %v", got)
	}
}

func TestCacheMetrics(t *testing.T) {
	CacheHits.Reset()
	CacheMisses.Reset()
	CacheEvictionsTotal.Reset()
	CacheSizeBytes.Reset()
	CacheEntries.Reset()
	CachePinned.Reset()

	RecordCacheHit("tile")
	if got := testutil.ToFloat64(CacheHits.WithLabelValues("tile")); got != 1 {
		t.Errorf("expected 1 cache hit, got %v", got)
	}

	RecordCacheMiss("tile")
	if got := testutil.ToFloat64(CacheMisses.WithLabelValues("tile")); got != 1 {
		t.Errorf("expected 1 cache miss, got %v", got)
	}

	RecordCacheEviction("tile")
	if got := testutil.ToFloat64(CacheEvictionsTotal.WithLabelValues("tile")); got != 1 {
		t.Errorf("expected 1 cache eviction, got %v", got)
	}

	UpdateCacheStats("tile", 4096, 12, 3)
	if got := testutil.ToFloat64(CacheSizeBytes.WithLabelValues("tile")); got != 4096 {
		t.Errorf("expected cache size 4096, got %v", got)
	}
	if got := testutil.ToFloat64(CacheEntries.WithLabelValues("tile")); got != 12 {
		t.Errorf("expected 12 entries, got %v", got)
	}
	if got := testutil.ToFloat64(CachePinned.WithLabelValues("tile")); got != 3 {
		t.Errorf("expected 3 pinned entries, got %v", got)
	}
}

func TestWorkerPoolMetrics(t *testing.T) {
	WorkerPoolQueueDepth.Reset()
	WorkerPoolActive.Reset()
	WorkerPoolTasksTotal.Reset()

	UpdateWorkerPoolStats("decode", 7, 4)
	if got := testutil.ToFloat64(WorkerPoolQueueDepth.WithLabelValues("decode")); got != 7 {
		t.Errorf("expected queue depth 7, got %v", got)
	}
	if got := testutil.ToFloat64(WorkerPoolActive.WithLabelValues("decode")); got != 4 {
		t.Errorf("expected 4 active workers, got %v", got)
	}

	RecordWorkerPoolTask("decode", true)
	if got := testutil.ToFloat64(WorkerPoolTasksTotal.WithLabelValues("decode", "success")); got != 1 {
		t.Errorf("expected 1 successful task, got %v", got)
	}
}

func TestRateLimitMetrics(t *testing.T) {
	RateLimitWaitTime.Reset()
	// Only checking this doesn't panic; histogram buckets aren't asserted.
	RecordRateLimitWait("tiles.example.com", 1*time.Second)
}

func TestErrorMetrics(t *testing.T) {
	ErrorsTotal.Reset()

	RecordError("tilesource", "FETCH_ERROR")
	if got := testutil.ToFloat64(ErrorsTotal.WithLabelValues("tilesource", "FETCH_ERROR")); got != 1 {
		t.Errorf("expected 1 error, got %v", got)
	}
}

func BenchmarkRecordTileFetch(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RecordTileFetch("benchmark-source", 10*time.Millisecond, true)
	}
}

func BenchmarkRecordCacheHit(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RecordCacheHit("benchmark-cache")
	}
}
