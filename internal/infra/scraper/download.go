// Package scraper downloads publisher feeds and parses them into normalized
// entries. Downloading is network-bound and fans out over the I/O pool;
// parsing is CPU-bound and fans out over the CPU pool.
package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"today-feed/internal/domain/entity"
	"today-feed/internal/infra/fetcher"
	"today-feed/internal/observability/metrics"
)

// maxFeedBytes caps a single feed body. Feeds beyond this are treated as
// download failures.
const maxFeedBytes = 10 << 20 // 10MB

// FeedBody is a downloaded raw feed, discarded after parsing.
type FeedBody struct {
	PublisherID string
	Raw         []byte
	FetchedAt   time.Time
}

// Downloader fetches feed bodies for a publisher set.
type Downloader struct {
	fetcher  *fetcher.Fetcher
	poolSize int
}

// NewDownloader creates a Downloader that keeps at most poolSize requests in
// flight.
func NewDownloader(f *fetcher.Fetcher, poolSize int) *Downloader {
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Downloader{fetcher: f, poolSize: poolSize}
}

// Download fetches every enabled publisher's feed concurrently. A failed
// download drops that feed and marks download_failed in its stats; it never
// fails the stage.
func (d *Downloader) Download(ctx context.Context, publishers []*entity.Publisher, report *entity.Report) []FeedBody {
	logger := slog.Default()
	logger.Info("downloading feeds", slog.Int("publishers", len(publishers)))

	var mu sync.Mutex
	bodies := make([]FeedBody, 0, len(publishers))

	sem := make(chan struct{}, d.poolSize)
	eg, egCtx := errgroup.WithContext(ctx)

	for _, pub := range publishers {
		p := pub
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			raw, err := d.fetcher.Fetch(egCtx, p.FeedURL, maxFeedBytes)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("feed download failed",
					slog.String("publisher_id", p.PublisherID),
					slog.String("feed_url", p.FeedURL),
					slog.Any("error", err))
				metrics.RecordFeedDownload(false)
				report.Stats(p.PublisherID).DownloadFailed = true
				return nil
			}
			metrics.RecordFeedDownload(true)
			bodies = append(bodies, FeedBody{
				PublisherID: p.PublisherID,
				Raw:         raw,
				FetchedAt:   time.Now().UTC(),
			})
			return nil
		})
	}

	// Workers only return nil; Wait is for the barrier.
	_ = eg.Wait()

	logger.Info("feed download complete",
		slog.Int("requested", len(publishers)),
		slog.Int("downloaded", len(bodies)))
	return bodies
}
