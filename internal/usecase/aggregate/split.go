package aggregate

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"today-feed/internal/domain/entity"
	"today-feed/internal/observability/metrics"
)

// splitByCache resolves every article link to its canonical URL, derives the
// url_hash identity, and splits the stream into new and cached articles.
// A cached article is one already in the store for this locale; its stored
// enriched fields are carried forward and its cache counter incremented by
// the lookup. Resolution failures drop the entry.
func (s *Service) splitByCache(ctx context.Context, articles []*entity.Article, locale string) (newArticles, cachedArticles []*entity.Article) {
	logger := slog.Default()

	var mu sync.Mutex
	sem := make(chan struct{}, s.cfg.ThreadPoolSize)
	eg, egCtx := errgroup.WithContext(ctx)

	for _, a := range articles {
		article := a
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			resolved, err := s.resolver.Resolve(egCtx, article.Link)
			if err != nil {
				logger.Debug("unshorten failed",
					slog.String("link", article.Link),
					slog.Any("error", err))
				metrics.RecordDrop("unshorten_failed")
				return nil
			}
			article.URL = resolved
			article.URLHash = entity.HashURL(resolved)
			article.Link = ""

			cached, found, err := s.articleRepo.GetCached(egCtx, article.URLHash, locale)
			if err != nil {
				// A store error must not lose the article; treat it as new.
				logger.Warn("cache lookup failed",
					slog.String("url_hash", article.URLHash),
					slog.Any("error", err))
				metrics.RecordPersistenceError("get_cached")
				found = false
			}

			mu.Lock()
			defer mu.Unlock()
			if found {
				metrics.RecordCacheHit()
				cachedArticles = append(cachedArticles, cached)
			} else {
				newArticles = append(newArticles, article)
			}
			return nil
		})
	}
	_ = eg.Wait()

	logger.Info("cache split complete",
		slog.Int("new", len(newArticles)),
		slog.Int("cached", len(cachedArticles)))
	return newArticles, cachedArticles
}
