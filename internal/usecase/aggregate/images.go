package aggregate

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"today-feed/internal/domain/entity"
	"today-feed/internal/infra/imageproc"
	"today-feed/internal/observability/metrics"
)

// imageItem carries an article and its downloaded image between the pipeline
// phases.
type imageItem struct {
	article *entity.Article
	data    []byte
	isLarge bool
}

// processImages runs the three-phase image pipeline over the new articles:
// capped download (I/O pool), small-image rejection (CPU pool), and pad +
// upload for large images (CPU pool). An article whose image fails any phase
// is dropped from the feed output; small passing images fall through with
// padded_img = img.
func (s *Service) processImages(ctx context.Context, articles []*entity.Article, publishers map[string]*entity.Publisher) []*entity.Article {
	logger := slog.Default()

	// Phase 0+1: og:image probe for imageless entries of og-enabled
	// publishers, then the capped download. Both network-bound, one fan-out.
	downloaded := s.downloadImages(ctx, articles, publishers)

	// Phase 2: reject images below the size floor. CPU-bound.
	passed := s.filterSmallImages(ctx, downloaded)

	// Phase 3: pad and upload the large ones. CPU-bound.
	out := s.padAndUpload(ctx, passed)

	logger.Info("image pipeline complete",
		slog.Int("in", len(articles)),
		slog.Int("out", len(out)))
	return out
}

func (s *Service) downloadImages(ctx context.Context, articles []*entity.Article, publishers map[string]*entity.Publisher) []imageItem {
	var mu sync.Mutex
	items := make([]imageItem, 0, len(articles))

	sem := make(chan struct{}, s.cfg.ThreadPoolSize)
	eg, egCtx := errgroup.WithContext(ctx)

	for _, a := range articles {
		article := a
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if article.Img == "" {
				if pub := publishers[article.PublisherID]; pub != nil && pub.OGImages {
					article.Img = s.ogImageFromPage(egCtx, article.URL)
				}
			}
			if article.Img == "" {
				metrics.RecordImageOutcome("no_image")
				metrics.RecordDrop("no_image")
				return nil
			}

			dl, err := s.images.Download(egCtx, article.Img)
			if err != nil {
				slog.Debug("image download failed",
					slog.String("img", article.Img),
					slog.Any("error", err))
				metrics.RecordImageOutcome("fetch_failed")
				metrics.RecordDrop("image_fetch_failed")
				return nil
			}

			mu.Lock()
			items = append(items, imageItem{article: article, data: dl.Data, isLarge: dl.IsLarge})
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return items
}

func (s *Service) filterSmallImages(ctx context.Context, items []imageItem) []imageItem {
	var mu sync.Mutex
	passed := make([]imageItem, 0, len(items))

	sem := make(chan struct{}, s.cfg.Concurrency)
	eg, _ := errgroup.WithContext(ctx)

	for _, it := range items {
		item := it
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			ok, err := imageproc.CheckSize(item.data)
			if err != nil {
				metrics.RecordImageOutcome("decode_failed")
				metrics.RecordDrop("image_decode_failed")
				return nil
			}
			if !ok {
				metrics.RecordImageOutcome("too_small")
				metrics.RecordDrop("image_too_small")
				return nil
			}

			mu.Lock()
			passed = append(passed, item)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return passed
}

func (s *Service) padAndUpload(ctx context.Context, items []imageItem) []*entity.Article {
	var mu sync.Mutex
	out := make([]*entity.Article, 0, len(items))

	sem := make(chan struct{}, s.cfg.Concurrency)
	eg, egCtx := errgroup.WithContext(ctx)

	for _, it := range items {
		item := it
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if !item.isLarge {
				item.article.PaddedImg = item.article.Img
				metrics.RecordImageOutcome("passthrough")
			} else {
				cdnURL, err := s.imgProc.Process(egCtx, item.data)
				if err != nil {
					slog.Debug("image processing failed",
						slog.String("img", item.article.Img),
						slog.Any("error", err))
					metrics.RecordImageOutcome("process_failed")
					metrics.RecordDrop("image_process_failed")
					return nil
				}
				item.article.PaddedImg = cdnURL
				metrics.RecordImageOutcome("padded")
			}

			mu.Lock()
			out = append(out, item.article)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return out
}
