package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"today-feed/internal/domain/entity"
)

func TestAggregationInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	run := &entity.AggregationRun{
		ID:         uuid.New(),
		StartTime:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		LocaleName: "en_US",
	}

	mock.ExpectExec(`INSERT INTO news\.aggregation_stats`).
		WithArgs(run.ID, run.StartTime, "en_US").
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewAggregationRepo(db)
	require.NoError(t, repo.Insert(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregationUpdate_PartialFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE news.aggregation_stats SET feed_count = $1 WHERE id = $2`)).
		WithArgs(int64(12), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAggregationRepo(db)
	err = repo.Update(context.Background(), id, entity.AggregationUpdate{
		FeedCount: entity.Int64Ptr(12),
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregationUpdate_ZeroValueOverwrites(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	id := uuid.New()

	// An explicit zero must still be written; nothing coalesces it away.
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE news.aggregation_stats SET end_article_count = $1 WHERE id = $2`)).
		WithArgs(int64(0), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAggregationRepo(db)
	err = repo.Update(context.Background(), id, entity.AggregationUpdate{
		EndArticleCount: entity.Int64Ptr(0),
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregationUpdate_MultipleFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE news.aggregation_stats SET run_time = $1, success = $2, end_article_count = $3 WHERE id = $4`)).
		WithArgs(int64(42), true, int64(7), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAggregationRepo(db)
	err = repo.Update(context.Background(), id, entity.AggregationUpdate{
		RunTimeSecs:     entity.Int64Ptr(42),
		Success:         entity.BoolPtr(true),
		EndArticleCount: entity.Int64Ptr(7),
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregationUpdate_EmptyUpdateIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	repo := NewAggregationRepo(db)
	require.NoError(t, repo.Update(context.Background(), uuid.New(), entity.AggregationUpdate{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregationUpdate_MissingRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	id := uuid.New()
	mock.ExpectExec(`UPDATE news\.aggregation_stats SET`).
		WithArgs(true, id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewAggregationRepo(db)
	err = repo.Update(context.Background(), id, entity.AggregationUpdate{Success: entity.BoolPtr(true)})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
