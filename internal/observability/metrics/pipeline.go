package metrics

import "time"

// RecordFeedDownload records the outcome of one feed download.
func RecordFeedDownload(success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	FeedsDownloadedTotal.WithLabelValues(status).Inc()
}

// RecordStage records a completed stage with its item counts.
func RecordStage(stage string, duration time.Duration, in, out int) {
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	StageItems.WithLabelValues(stage, "in").Add(float64(in))
	StageItems.WithLabelValues(stage, "out").Add(float64(out))
}

// RecordDrop records an article dropped for the given reason.
func RecordDrop(reason string) {
	ArticlesDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordCacheHit records an article reused from the store.
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordExternalCall records one call to an external enrichment service.
func RecordExternalCall(service string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	ExternalCallsTotal.WithLabelValues(service, status).Inc()
}

// RecordPersistenceError records a store operation that failed.
func RecordPersistenceError(operation string) {
	PersistenceErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordImageOutcome records the terminal outcome of one image.
func RecordImageOutcome(outcome string) {
	ImagesProcessedTotal.WithLabelValues(outcome).Inc()
}

// RecordRun records a completed run.
func RecordRun(success bool, emitted int) {
	result := "success"
	if !success {
		result = "failure"
	}
	RunsTotal.WithLabelValues(result).Inc()
	if success {
		EmittedArticles.Set(float64(emitted))
	}
}
