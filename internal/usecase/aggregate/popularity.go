package aggregate

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"today-feed/internal/domain/entity"
	"today-feed/internal/observability/metrics"
)

// scorePopularity fetches the raw popularity score for every article and
// then min-max normalizes the batch. When dropOnFailure is set (the new
// stream) a failed call drops the article; otherwise (the cached stream) the
// article keeps its prior score. Normalization runs per call so the two
// streams stay comparable within themselves.
func (s *Service) scorePopularity(ctx context.Context, articles []*entity.Article, dropOnFailure bool) []*entity.Article {
	if len(articles) == 0 {
		return articles
	}

	var mu sync.Mutex
	kept := make([]*entity.Article, 0, len(articles))

	sem := make(chan struct{}, s.cfg.ThreadPoolSize)
	eg, egCtx := errgroup.WithContext(ctx)

	for _, a := range articles {
		article := a
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			score, err := s.popularity.Score(egCtx, article.URL)
			metrics.RecordExternalCall("popularity", err == nil)
			if err != nil {
				if dropOnFailure {
					slog.Debug("popularity score failed, dropping article",
						slog.String("url", article.URL),
						slog.Any("error", err))
					metrics.RecordDrop("popularity_failed")
					return nil
				}
				// Cached article: keep the stored score.
			} else {
				article.PopScore = score
			}

			mu.Lock()
			kept = append(kept, article)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	normalizePopScores(kept, s.cfg.PopScoreRange)
	return kept
}

// normalizePopScores min-max normalizes the batch into [1.0, popRange].
// With a degenerate batch (max == min) every score is 1.0. The serial pass
// is the barrier the stage contract requires: all raw scores exist before
// any is normalized.
func normalizePopScores(articles []*entity.Article, popRange float64) {
	if len(articles) == 0 {
		return
	}

	minScore, maxScore := articles[0].PopScore, articles[0].PopScore
	for _, a := range articles[1:] {
		if a.PopScore < minScore {
			minScore = a.PopScore
		}
		if a.PopScore > maxScore {
			maxScore = a.PopScore
		}
	}

	for _, a := range articles {
		if maxScore == minScore {
			a.PopScore = 1.0
			continue
		}
		normalized := popRange * (a.PopScore - minScore) / (maxScore - minScore)
		if normalized < 1.0 {
			normalized = 1.0
		}
		a.PopScore = normalized
	}
}
