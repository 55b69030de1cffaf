package aggregate

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"today-feed/internal/domain/entity"
	"today-feed/internal/observability/metrics"
)

// predictChannels attaches predicted channels to new articles. A failed call
// is non-fatal: the article keeps the channels its publisher catalog
// provided.
func (s *Service) predictChannels(ctx context.Context, articles []*entity.Article) {
	sem := make(chan struct{}, s.cfg.ThreadPoolSize)
	eg, egCtx := errgroup.WithContext(ctx)

	for _, a := range articles {
		article := a
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			predicted, err := s.channels.Predict(egCtx, article.URL)
			metrics.RecordExternalCall("channels", err == nil)
			if err != nil {
				slog.Debug("channel prediction failed",
					slog.String("url", article.URL),
					slog.Any("error", err))
				return nil
			}
			article.PredictedChannels = predicted
			return nil
		})
	}
	_ = eg.Wait()
}

// classifyExternal runs the external classification service over the new
// articles and persists the results. Both the call and the insert are
// best-effort.
func (s *Service) classifyExternal(ctx context.Context, articles []*entity.Article) {
	sem := make(chan struct{}, s.cfg.ThreadPoolSize)
	eg, egCtx := errgroup.WithContext(ctx)

	for _, a := range articles {
		article := a
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			channels, raw, err := s.external.Classify(egCtx, article.URL)
			metrics.RecordExternalCall("external_channels", err == nil)
			if err != nil {
				slog.Debug("external classification failed",
					slog.String("url", article.URL),
					slog.Any("error", err))
				return nil
			}

			if err := s.articleRepo.InsertExternalChannels(egCtx, article.URLHash, channels, raw); err != nil {
				slog.Error("failed to insert external channels",
					slog.String("url_hash", article.URLHash),
					slog.Any("error", err))
				metrics.RecordPersistenceError("insert_external_channels")
			}
			return nil
		})
	}
	_ = eg.Wait()
}
