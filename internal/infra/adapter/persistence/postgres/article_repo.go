// Package postgres implements the persistence interfaces over the news
// schema. All SQL is hand-written with positional args; every operation is
// scoped by context.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"today-feed/internal/domain/entity"
	"today-feed/internal/repository"
)

type ArticleRepo struct{ db *sql.DB }

// NewArticleRepo creates the article store over the given pool.
func NewArticleRepo(db *sql.DB) repository.ArticleRepository {
	return &ArticleRepo{db: db}
}

func (repo *ArticleRepo) GetCached(ctx context.Context, urlHash, locale string) (*entity.Article, bool, error) {
	const query = `
SELECT a.id, a.title, a.publish_time, a.img, a.category, a.description, a.content_type,
       f.url_hash AS publisher_id, f.name AS publisher_name,
       a.creative_instance_id, a.url, a.url_hash, a.pop_score, a.padded_img, a.score
FROM news.articles a
INNER JOIN news.feeds f ON a.feed_id = f.id
INNER JOIN news.feed_locales fl ON fl.feed_id = f.id
INNER JOIN news.locales l ON l.id = fl.locale_id
WHERE a.url_hash = $1 AND l.locale = $2 AND a.img <> ''
LIMIT 1`

	var (
		articleID   int64
		article     entity.Article
		publishTime time.Time
	)
	err := repo.db.QueryRowContext(ctx, query, urlHash, locale).Scan(
		&articleID, &article.Title, &publishTime, &article.Img, &article.Category,
		&article.Description, &article.ContentType, &article.PublisherID,
		&article.PublisherName, &article.CreativeInstanceID, &article.URL,
		&article.URLHash, &article.PopScore, &article.PaddedImg, &article.Score,
	)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("GetCached: %w", err)
	}
	article.PublishTime = entity.NewTimestamp(publishTime)
	article.Cached = true

	channels, err := repo.localeChannels(ctx, articleID, locale)
	if err != nil {
		return nil, false, err
	}
	article.Channels = channels

	const bump = `
UPDATE news.article_cache_records acr
SET cache_hit = acr.cache_hit + 1
FROM news.locales l
WHERE acr.article_id = $1 AND l.locale = $2 AND acr.locale_id = l.id`
	if _, err := repo.db.ExecContext(ctx, bump, articleID, locale); err != nil {
		return nil, false, fmt.Errorf("GetCached: bump cache_hit: %w", err)
	}

	return &article, true, nil
}

// localeChannels returns the distinct channel names the article's feed
// carries for the locale.
func (repo *ArticleRepo) localeChannels(ctx context.Context, articleID int64, locale string) ([]string, error) {
	const query = `
SELECT DISTINCT c.name
FROM news.articles a
INNER JOIN news.feed_locales fl ON fl.feed_id = a.feed_id
INNER JOIN news.locales l ON l.id = fl.locale_id
INNER JOIN news.feed_locale_channels flc ON flc.feed_locale_id = fl.id
INNER JOIN news.channels c ON c.id = flc.channel_id
WHERE a.id = $1 AND l.locale = $2`
	rows, err := repo.db.QueryContext(ctx, query, articleID, locale)
	if err != nil {
		return nil, fmt.Errorf("localeChannels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("localeChannels: Scan: %w", err)
		}
		channels = append(channels, name)
	}
	return channels, rows.Err()
}

func (repo *ArticleRepo) Upsert(ctx context.Context, article *entity.Article, locale string, aggregationID uuid.UUID) error {
	var (
		articleID  int64
		currentImg string
	)
	const lookup = `SELECT id, img FROM news.articles WHERE url_hash = $1 LIMIT 1`
	err := repo.db.QueryRowContext(ctx, lookup, article.URLHash).Scan(&articleID, &currentImg)
	switch {
	case err == sql.ErrNoRows:
		articleID, err = repo.insertArticle(ctx, article, locale, aggregationID)
		if err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("Upsert: lookup: %w", err)
	default:
		if err := repo.updateArticle(ctx, articleID, article, currentImg); err != nil {
			return err
		}
	}

	return repo.ensureCacheRecord(ctx, articleID, locale, aggregationID)
}

// insertArticle inserts a new article row, resolving the feed id from the
// publisher and locale. ON CONFLICT covers a concurrent insert of the same
// url_hash: the loser refreshes mutable fields and both converge.
func (repo *ArticleRepo) insertArticle(ctx context.Context, article *entity.Article, locale string, aggregationID uuid.UUID) (int64, error) {
	const feedLookup = `
SELECT f.id
FROM news.feeds f
INNER JOIN news.feed_locales fl ON fl.feed_id = f.id
INNER JOIN news.locales l ON l.id = fl.locale_id
WHERE f.url_hash = $1 AND l.locale = $2
LIMIT 1`
	var feedID int64
	err := repo.db.QueryRowContext(ctx, feedLookup, article.PublisherID, locale).Scan(&feedID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("insertArticle: %w: feed %s for locale %s", entity.ErrNotFound, article.PublisherID, locale)
	}
	if err != nil {
		return 0, fmt.Errorf("insertArticle: feed lookup: %w", err)
	}

	const query = `
INSERT INTO news.articles
       (title, publish_time, img, category, description, content_type,
        creative_instance_id, url, url_hash, pop_score, padded_img, score,
        feed_id, aggregation_id, created)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
ON CONFLICT (url_hash) DO UPDATE SET
       title        = EXCLUDED.title,
       publish_time = EXCLUDED.publish_time,
       description  = EXCLUDED.description,
       pop_score    = EXCLUDED.pop_score,
       score        = EXCLUDED.score
RETURNING id`
	var articleID int64
	err = repo.db.QueryRowContext(ctx, query,
		article.Title, article.PublishTime.Time, article.Img, article.Category,
		article.Description, article.ContentType, article.CreativeInstanceID,
		article.URL, article.URLHash, article.PopScore, article.PaddedImg,
		article.Score, feedID, aggregationID,
	).Scan(&articleID)
	if err != nil {
		return 0, fmt.Errorf("insertArticle: %w", err)
	}
	return articleID, nil
}

// updateArticle refreshes the mutable fields of an existing article. The
// image pair is only rewritten when the source image actually changed; a
// cached article keeps its stored image.
func (repo *ArticleRepo) updateArticle(ctx context.Context, articleID int64, article *entity.Article, currentImg string) error {
	const query = `
UPDATE news.articles SET
       title        = $1,
       publish_time = $2,
       description  = $3,
       pop_score    = $4,
       score        = $5
WHERE id = $6`
	if _, err := repo.db.ExecContext(ctx, query,
		article.Title, article.PublishTime.Time, article.Description,
		article.PopScore, article.Score, articleID,
	); err != nil {
		return fmt.Errorf("updateArticle: %w", err)
	}

	if article.Img != "" && article.Img != currentImg {
		const imgQuery = `UPDATE news.articles SET img = $1, padded_img = $2 WHERE id = $3`
		if _, err := repo.db.ExecContext(ctx, imgQuery, article.Img, article.PaddedImg, articleID); err != nil {
			return fmt.Errorf("updateArticle: image: %w", err)
		}
	}
	return nil
}

// ensureCacheRecord upserts the (article, locale) cache record. The unique
// constraint on (article_id, locale_id) makes concurrent callers converge.
func (repo *ArticleRepo) ensureCacheRecord(ctx context.Context, articleID int64, locale string, aggregationID uuid.UUID) error {
	const query = `
INSERT INTO news.article_cache_records (article_id, locale_id, aggregation_id, cache_hit)
SELECT $1, l.id, $2, 0 FROM news.locales l WHERE l.locale = $3
ON CONFLICT (article_id, locale_id) DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, query, articleID, aggregationID, locale); err != nil {
		return fmt.Errorf("ensureCacheRecord: %w", err)
	}
	return nil
}

func (repo *ArticleRepo) InsertExternalChannels(ctx context.Context, urlHash string, channels []string, raw []entity.ChannelConfidence) error {
	const lookup = `SELECT id FROM news.articles WHERE url_hash = $1 LIMIT 1`
	var articleID int64
	err := repo.db.QueryRowContext(ctx, lookup, urlHash).Scan(&articleID)
	if err == sql.ErrNoRows {
		// No article, nothing to classify.
		return nil
	}
	if err != nil {
		return fmt.Errorf("InsertExternalChannels: lookup: %w", err)
	}

	// The raw payload is persisted as [{name: confidence}, ...].
	pairs := make([]map[string]float64, 0, len(raw))
	for _, cc := range raw {
		pairs = append(pairs, map[string]float64{cc.Name: cc.Confidence})
	}
	rawData, err := json.Marshal(pairs)
	if err != nil {
		return fmt.Errorf("InsertExternalChannels: encode raw: %w", err)
	}

	const query = `
INSERT INTO news.external_article_classifications (article_id, channels, raw_data)
VALUES ($1, $2, $3)`
	if _, err := repo.db.ExecContext(ctx, query, articleID, pq.Array(channels), string(rawData)); err != nil {
		return fmt.Errorf("InsertExternalChannels: %w", err)
	}
	return nil
}

func (repo *ArticleRepo) ListChannels(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT name FROM news.channels ORDER BY name`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListChannels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	channels := make([]string, 0, 32)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ListChannels: Scan: %w", err)
		}
		channels = append(channels, name)
	}
	return channels, rows.Err()
}
