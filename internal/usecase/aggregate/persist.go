package aggregate

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"today-feed/internal/domain/entity"
	"today-feed/internal/observability/metrics"
)

// persistArticles upserts every ranked article and its cache record. A store
// error on one article is logged and skipped; the article still appears in
// the emitted feed (best-effort persistence).
func (s *Service) persistArticles(ctx context.Context, articles []*entity.Article, locale string, aggregationID uuid.UUID) {
	sem := make(chan struct{}, s.cfg.ThreadPoolSize)
	eg, egCtx := errgroup.WithContext(ctx)

	for _, a := range articles {
		article := a
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := s.articleRepo.Upsert(egCtx, article, locale, aggregationID); err != nil {
				slog.Error("failed to persist article",
					slog.String("url_hash", article.URLHash),
					slog.String("title", article.Title),
					slog.Any("error", err))
				metrics.RecordPersistenceError("update_or_insert_article")
			}
			return nil
		})
	}
	_ = eg.Wait()
}
