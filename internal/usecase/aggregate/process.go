package aggregate

import (
	"context"
	"html"
	"log/slog"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	goaway "github.com/TwiN/go-away"
	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"

	"today-feed/internal/domain/entity"
	"today-feed/internal/infra/scraper"
	"today-feed/internal/observability/metrics"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	profanity    = goaway.NewProfanityDetector()
)

// cleanText trims and strips markup from a text field. The unescape pass
// restores literal ampersands the sanitizer entity-encodes.
func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// processEntries normalizes every parsed entry into an article, applying the
// content filters. Rejections drop the entry; accepted entries count into
// size_after_insert for their publisher. CPU-bound, fanned out over the CPU
// pool.
func (s *Service) processEntries(ctx context.Context, feeds []scraper.ParsedFeed, publishers map[string]*entity.Publisher, report *entity.Report) []*entity.Article {
	var mu sync.Mutex
	articles := make([]*entity.Article, 0, entryCount(feeds))

	sem := make(chan struct{}, s.cfg.Concurrency)
	eg, _ := errgroup.WithContext(ctx)

	for _, feed := range feeds {
		pub := publishers[feed.PublisherID]
		if pub == nil {
			continue
		}
		for _, e := range feed.Entries {
			entry := e
			eg.Go(func() error {
				sem <- struct{}{}
				defer func() { <-sem }()

				article := processEntry(entry, pub)
				if article == nil {
					return nil
				}
				report.IncrInserted(pub.PublisherID)
				mu.Lock()
				articles = append(articles, article)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = eg.Wait()

	return articles
}

// processEntry turns one raw entry into an article, or nil when the entry is
// rejected. Rejection reasons: empty title, profanity, missing or unparsable
// timestamp.
func processEntry(entry entity.RawEntry, pub *entity.Publisher) *entity.Article {
	title := cleanText(entry.Title)
	if title == "" {
		metrics.RecordDrop("empty_title")
		return nil
	}
	if profanity.IsProfane(title) {
		metrics.RecordDrop("profanity")
		return nil
	}

	if entry.Updated == "" {
		metrics.RecordDrop("missing_timestamp")
		return nil
	}
	publishTime, err := dateparse.ParseAny(entry.Updated)
	if err != nil {
		metrics.RecordDrop("bad_timestamp")
		return nil
	}

	img := entry.Img
	if img == "" {
		img = firstContentImage(entry.Content)
	}

	channels := make([]string, len(pub.Channels))
	copy(channels, pub.Channels)

	return &entity.Article{
		Title:              title,
		PublishTime:        entity.NewTimestamp(publishTime),
		Img:                img,
		Category:           pub.Category,
		Description:        cleanText(entry.Description),
		ContentType:        pub.ContentType,
		PublisherID:        pub.PublisherID,
		PublisherName:      pub.PublisherName,
		Channels:           channels,
		CreativeInstanceID: pub.CreativeInstanceID,
		Link:               entry.Link,
		Content:            entry.Content,
	}
}

// firstContentImage returns the src of the first <img> in an entry body.
func firstContentImage(content string) string {
	if content == "" || !strings.Contains(content, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return src
}

// ogImageFromPage fetches an article page and extracts its og:image. Used
// only for publishers with og images enabled whose entries carry no image.
func (s *Service) ogImageFromPage(ctx context.Context, pageURL string) string {
	const maxPageBytes = 5 << 20

	body, err := s.pages.Fetch(ctx, pageURL, maxPageBytes)
	if err != nil {
		slog.Debug("og:image page fetch failed",
			slog.String("url", pageURL),
			slog.Any("error", err))
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}
	for _, selector := range []string{
		`meta[property="og:image"]`,
		`meta[property="og:image:url"]`,
		`meta[name="twitter:image"]`,
	} {
		if content, ok := doc.Find(selector).First().Attr("content"); ok && content != "" {
			return content
		}
	}
	return ""
}
