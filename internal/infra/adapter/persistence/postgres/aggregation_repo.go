package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"today-feed/internal/domain/entity"
	"today-feed/internal/repository"
)

type AggregationRepo struct{ db *sql.DB }

// NewAggregationRepo creates the aggregation stats store over the given pool.
func NewAggregationRepo(db *sql.DB) repository.AggregationRepository {
	return &AggregationRepo{db: db}
}

func (repo *AggregationRepo) Insert(ctx context.Context, run *entity.AggregationRun) error {
	const query = `
INSERT INTO news.aggregation_stats (id, start_time, locale_name, success)
VALUES ($1, $2, $3, FALSE)`
	_, err := repo.db.ExecContext(ctx, query, run.ID, run.StartTime, run.LocaleName)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	return nil
}

// Update overwrites exactly the fields set in update. The SET clause is built
// dynamically so an explicit zero value still overwrites, unlike the COALESCE
// idiom.
func (repo *AggregationRepo) Update(ctx context.Context, id uuid.UUID, update entity.AggregationUpdate) error {
	var setClauses []string
	var args []interface{}
	paramIndex := 1

	addClause := func(column string, value interface{}) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, paramIndex))
		args = append(args, value)
		paramIndex++
	}

	if update.RunTimeSecs != nil {
		addClause("run_time", *update.RunTimeSecs)
	}
	if update.Success != nil {
		addClause("success", *update.Success)
	}
	if update.FeedCount != nil {
		addClause("feed_count", *update.FeedCount)
	}
	if update.StartArticleCount != nil {
		addClause("start_article_count", *update.StartArticleCount)
	}
	if update.EndArticleCount != nil {
		addClause("end_article_count", *update.EndArticleCount)
	}
	if update.CacheHitCount != nil {
		addClause("cache_hit_count", *update.CacheHitCount)
	}

	if len(setClauses) == 0 {
		return nil
	}

	query := `UPDATE news.aggregation_stats SET ` +
		strings.Join(setClauses, ", ") +
		fmt.Sprintf(` WHERE id = $%d`, paramIndex)
	args = append(args, id)

	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Update: run %s: %w", id, entity.ErrNotFound)
	}
	return nil
}
