package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_tiles_jobs_started_total",
		Help: "Total number of region download jobs started",
	})

	JobsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_tiles_jobs_succeeded_total",
		Help: "Total number of region download jobs completed",
	})

	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_tiles_jobs_failed_total",
		Help: "Total number of region download jobs failed",
	})

	JobsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_tiles_jobs_cancelled_total",
		Help: "Total number of region download jobs cancelled",
	})

	TilesRequested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_tiles_tile_requests_total",
		Help: "Total number of tile fetch attempts",
	})

	TilesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_tiles_tiles_stored_total",
		Help: "Total number of tiles written to the cache",
	})

	TilesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_tiles_tile_failures_total",
		Help: "Total number of failed tile fetches by kind",
	}, []string{"kind"})

	TileFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "offline_tiles_tile_fetch_duration_seconds",
		Help:    "Tile fetch duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	TileBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_tiles_tile_bytes_total",
		Help: "Total tile bytes downloaded",
	})

	CacheClears = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_tiles_cache_clears_total",
		Help: "Total number of tile cache clears",
	})
)
