package aggregate

import (
	"context"

	"golang.org/x/sync/errgroup"

	"today-feed/internal/domain/entity"
)

// scrubArticles strips any remaining markup from the text fields of new
// articles. Cached articles were scrubbed by the run that first saw them.
func (s *Service) scrubArticles(ctx context.Context, articles []*entity.Article) {
	sem := make(chan struct{}, s.cfg.Concurrency)
	eg, _ := errgroup.WithContext(ctx)

	for _, a := range articles {
		article := a
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			article.Title = cleanText(article.Title)
			article.Description = cleanText(article.Description)
			article.Content = cleanText(article.Content)
			return nil
		})
	}
	_ = eg.Wait()
}
