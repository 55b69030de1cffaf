package scraper

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"today-feed/internal/domain/entity"
)

// ParsedFeed is one feed reduced to its normalized entries.
type ParsedFeed struct {
	PublisherID string
	Title       string
	Entries     []entity.RawEntry
	// SizeBefore is the entry count before the max-entries cap.
	SizeBefore int
}

// Parser turns raw feed bodies into entry lists with a CPU-bound worker pool.
type Parser struct {
	concurrency int
}

// NewParser creates a Parser with the given worker count (≈ CPU count).
func NewParser(concurrency int) *Parser {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Parser{concurrency: concurrency}
}

// Parse parses every downloaded body. Feeds that fail to parse or parse to
// zero entries are dropped; per-feed sizes are recorded in the report. The
// per-publisher max-entry cap is applied here, keeping the newest entries.
func (p *Parser) Parse(ctx context.Context, bodies []FeedBody, publishers map[string]*entity.Publisher, report *entity.Report) []ParsedFeed {
	logger := slog.Default()

	var mu sync.Mutex
	feeds := make([]ParsedFeed, 0, len(bodies))

	sem := make(chan struct{}, p.concurrency)
	eg, _ := errgroup.WithContext(ctx)

	for _, body := range bodies {
		b := body
		eg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			pub := publishers[b.PublisherID]
			parsed, err := p.parseOne(b, pub)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("feed parse failed",
					slog.String("publisher_id", b.PublisherID),
					slog.Any("error", err))
				report.Stats(b.PublisherID).ParseFailed = true
				return nil
			}
			report.Stats(b.PublisherID).SizeBefore = parsed.SizeBefore
			if len(parsed.Entries) == 0 {
				logger.Debug("feed is empty", slog.String("publisher_id", b.PublisherID))
				return nil
			}
			feeds = append(feeds, parsed)
			return nil
		})
	}
	_ = eg.Wait()

	logger.Info("feed parse complete",
		slog.Int("bodies", len(bodies)),
		slog.Int("parsed", len(feeds)))
	return feeds
}

// parseOne parses a single body and applies the entry cap.
func (p *Parser) parseOne(body FeedBody, pub *entity.Publisher) (ParsedFeed, error) {
	fp := gofeed.NewParser()
	feed, err := fp.Parse(bytes.NewReader(body.Raw))
	if err != nil {
		return ParsedFeed{}, err
	}

	maxEntries := entity.DefaultMaxEntries
	if pub != nil {
		maxEntries = pub.EntryCap()
	}

	items := feed.Items
	if len(items) > maxEntries {
		// Order a copy newest first so the cap keeps the most recent entries.
		itemTime := func(it *gofeed.Item) time.Time {
			if it.UpdatedParsed != nil {
				return *it.UpdatedParsed
			}
			if it.PublishedParsed != nil {
				return *it.PublishedParsed
			}
			return time.Time{}
		}
		items = append([]*gofeed.Item(nil), items...)
		sort.SliceStable(items, func(i, j int) bool { return itemTime(items[i]).After(itemTime(items[j])) })
	}

	entries := make([]entity.RawEntry, 0, len(items))
	for _, item := range items {
		if len(entries) >= maxEntries {
			break
		}
		entries = append(entries, entity.RawEntry{
			PublisherID: body.PublisherID,
			Title:       item.Title,
			Link:        item.Link,
			Updated:     itemTimestamp(item),
			Description: item.Description,
			Content:     itemContent(item),
			Img:         itemImage(item),
		})
	}

	return ParsedFeed{
		PublisherID: body.PublisherID,
		Title:       feed.Title,
		Entries:     entries,
		SizeBefore:  len(feed.Items),
	}, nil
}

// itemTimestamp picks the entry timestamp string, preferring the update time
// over the publish time.
func itemTimestamp(item *gofeed.Item) string {
	if item.Updated != "" {
		return item.Updated
	}
	return item.Published
}

// itemContent prefers the full content body over the description.
func itemContent(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}

// itemImage extracts the feed-level image: an image enclosure, the item
// image, or a media:content/media:thumbnail extension, in that order.
func itemImage(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	if media, ok := item.Extensions["media"]; ok {
		for _, key := range []string{"content", "thumbnail"} {
			for _, ext := range media[key] {
				if url := ext.Attrs["url"]; url != "" {
					return url
				}
			}
		}
	}
	return ""
}
