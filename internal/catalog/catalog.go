// Package catalog loads the publisher catalog for a run. Every string field
// is trimmed and HTML-sanitized on the way in, so nothing downstream has to
// trust catalog content.
package catalog

import (
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"os"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"today-feed/internal/domain/entity"
)

var strict = bluemonday.StrictPolicy()

// Load reads the publisher catalog JSON at path, returning only enabled,
// valid publishers keyed ready for the run. A missing or unreadable catalog
// is a fatal configuration error.
func Load(path string) ([]*entity.Publisher, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Load catalog: %w", err)
	}

	var publishers []*entity.Publisher
	if err := json.Unmarshal(raw, &publishers); err != nil {
		return nil, fmt.Errorf("Load catalog: decode: %w", err)
	}

	result := make([]*entity.Publisher, 0, len(publishers))
	for _, pub := range publishers {
		sanitize(pub)
		pub.Normalize()
		if err := pub.Validate(); err != nil {
			slog.Warn("skipping invalid publisher",
				slog.String("feed_url", pub.FeedURL),
				slog.Any("error", err))
			continue
		}
		if !pub.Enabled {
			continue
		}
		result = append(result, pub)
	}

	return result, nil
}

// ByID indexes publishers by publisher id.
func ByID(publishers []*entity.Publisher) map[string]*entity.Publisher {
	index := make(map[string]*entity.Publisher, len(publishers))
	for _, pub := range publishers {
		index[pub.PublisherID] = pub
	}
	return index
}

// sanitize strips markup from every string field. The unescape pass restores
// literal ampersands the sanitizer entity-encodes.
func sanitize(p *entity.Publisher) {
	clean := func(s string) string {
		return html.UnescapeString(strict.Sanitize(strings.TrimSpace(s)))
	}
	p.PublisherID = clean(p.PublisherID)
	p.PublisherName = clean(p.PublisherName)
	p.SiteURL = clean(p.SiteURL)
	p.FeedURL = clean(p.FeedURL)
	p.OriginalFeedURL = clean(p.OriginalFeedURL)
	p.Category = clean(p.Category)
	p.CreativeInstanceID = clean(p.CreativeInstanceID)
	p.ContentType = clean(p.ContentType)
	for i, ch := range p.Channels {
		p.Channels[i] = clean(ch)
	}
	for i, d := range p.DestinationDomains {
		p.DestinationDomains[i] = clean(d)
	}
}
