// Package repository defines the persistence interfaces the pipeline depends
// on. Implementations live under internal/infra/adapter/persistence.
package repository

import (
	"context"

	"github.com/google/uuid"

	"today-feed/internal/domain/entity"
)

// ArticleRepository is the article and cache-record store.
type ArticleRepository interface {
	// GetCached looks up an article by url_hash for the given locale. When
	// the article exists, carries an image, and its feed is associated with
	// the locale, it is returned with its stored enriched fields and the
	// cache record's hit counter is incremented. The bool reports whether a
	// cached article was found.
	GetCached(ctx context.Context, urlHash, locale string) (*entity.Article, bool, error)

	// Upsert refreshes an existing article's mutable fields (title,
	// publish_time, description, pop_score, score, and the image pair when
	// the image changed) or inserts a new article, and ensures a cache
	// record exists for (article, locale). Safe under concurrent callers;
	// same-hash callers converge last-writer-wins.
	Upsert(ctx context.Context, article *entity.Article, locale string, aggregationID uuid.UUID) error

	// InsertExternalChannels stores an external classification result.
	// A url_hash with no article row is a no-op.
	InsertExternalChannels(ctx context.Context, urlHash string, channels []string, raw []entity.ChannelConfidence) error

	// ListChannels returns the distinct channel names, sorted.
	ListChannels(ctx context.Context) ([]string, error)
}

// AggregationRepository records per-run aggregation metadata.
type AggregationRepository interface {
	// Insert creates the run row at run start with partial fields.
	Insert(ctx context.Context, run *entity.AggregationRun) error

	// Update overwrites exactly the fields set in update; nil fields are
	// untouched. Idempotent.
	Update(ctx context.Context, id uuid.UUID, update entity.AggregationUpdate) error
}
