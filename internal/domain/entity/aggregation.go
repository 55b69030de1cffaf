package entity

import (
	"time"

	"github.com/google/uuid"
)

// AggregationRun is the per-run audit record. It is inserted with partial
// fields when the run starts and updated as stages complete.
type AggregationRun struct {
	ID                uuid.UUID
	StartTime         time.Time
	RunTimeSecs       int64
	LocaleName        string
	Success           bool
	FeedCount         int64
	StartArticleCount int64
	EndArticleCount   int64
	CacheHitCount     int64
}

// AggregationUpdate names the run fields to overwrite. Nil fields are left
// untouched; set fields overwrite even when zero.
type AggregationUpdate struct {
	RunTimeSecs       *int64
	Success           *bool
	FeedCount         *int64
	StartArticleCount *int64
	EndArticleCount   *int64
	CacheHitCount     *int64
}

// Int64Ptr returns a pointer to v, for building AggregationUpdate values.
func Int64Ptr(v int64) *int64 { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }
