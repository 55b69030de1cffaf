// Package metrics provides centralized Prometheus metrics for the
// aggregation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics track the fan-out stages of a run.
var (
	// FeedsDownloadedTotal counts feed download outcomes by status
	// ("success" or "failed").
	FeedsDownloadedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_feeds_downloaded_total",
			Help: "Total number of feed download attempts by status",
		},
		[]string{"status"},
	)

	// StageDuration measures wall-clock duration of each pipeline stage.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregator_stage_duration_seconds",
			Help:    "Duration of each aggregation pipeline stage in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"stage"},
	)

	// StageItems counts items entering and leaving each stage.
	StageItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_stage_items_total",
			Help: "Items entering and leaving each pipeline stage",
		},
		[]string{"stage", "direction"},
	)

	// ArticlesDroppedTotal counts dropped articles by reason.
	ArticlesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_articles_dropped_total",
			Help: "Articles dropped from the run by reason",
		},
		[]string{"reason"},
	)

	// CacheHitsTotal counts articles served from the article cache.
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aggregator_cache_hits_total",
			Help: "Articles reused from the article cache",
		},
	)

	// ExternalCallsTotal counts calls to the external scoring and
	// classification services by service and status.
	ExternalCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_external_calls_total",
			Help: "External service calls by service and status",
		},
		[]string{"service", "status"},
	)

	// PersistenceErrorsTotal counts store operations that failed and were
	// logged-and-skipped.
	PersistenceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_persistence_errors_total",
			Help: "Persistence operations that failed",
		},
		[]string{"operation"},
	)

	// ImagesProcessedTotal counts image pipeline outcomes
	// ("padded", "passthrough", "no_image", "too_small", "fetch_failed",
	// "decode_failed", "process_failed").
	ImagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_images_processed_total",
			Help: "Image pipeline outcomes",
		},
		[]string{"outcome"},
	)

	// RunsTotal counts completed aggregation runs by result.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregator_runs_total",
			Help: "Completed aggregation runs by result",
		},
		[]string{"result"},
	)

	// EmittedArticles tracks the size of the last emitted feed artifact.
	EmittedArticles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aggregator_emitted_articles",
			Help: "Number of articles in the last emitted feed artifact",
		},
	)
)
