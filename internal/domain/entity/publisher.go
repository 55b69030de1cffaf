// Package entity defines the core domain entities for the aggregation
// pipeline: publishers from the catalog, articles as they move through the
// stages, and the per-run aggregation record.
package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Publisher is one record from the publisher catalog. It is immutable for
// the duration of a run.
type Publisher struct {
	PublisherID        string   `json:"publisher_id"`
	PublisherName      string   `json:"publisher_name"`
	SiteURL            string   `json:"site_url"`
	FeedURL            string   `json:"feed_url"`
	OriginalFeedURL    string   `json:"original_feed,omitempty"`
	Category           string   `json:"category"`
	Enabled            bool     `json:"enabled"`
	// MaxEntries distinguishes an absent cap (nil, defaulted) from an
	// explicit zero, which contributes no articles at all.
	MaxEntries         *int     `json:"max_entries,omitempty"`
	Channels           []string `json:"channels"`
	OGImages           bool     `json:"og_images"`
	CreativeInstanceID string   `json:"creative_instance_id"`
	ContentType        string   `json:"content_type"`
	Score              float64  `json:"score"`
	DestinationDomains []string `json:"destination_domains"`
}

// DefaultMaxEntries caps how many entries a single feed may contribute when
// the catalog does not say otherwise.
const DefaultMaxEntries = 20

// Normalize fills derived and defaulted fields. The publisher id is the
// SHA-256 of the original feed URL when one exists, otherwise of the current
// feed URL, so a publisher keeps its identity across feed migrations.
func (p *Publisher) Normalize() {
	if p.ContentType == "" {
		p.ContentType = "article"
	}
	if p.PublisherID == "" {
		src := p.FeedURL
		if p.OriginalFeedURL != "" {
			src = p.OriginalFeedURL
		}
		p.PublisherID = HashURL(src)
	}
}

// Validate checks the fields a publisher must carry to be usable in a run.
func (p *Publisher) Validate() error {
	if strings.TrimSpace(p.PublisherName) == "" {
		return &ValidationError{Field: "publisher_name", Message: "must contain a value"}
	}
	if strings.TrimSpace(p.FeedURL) == "" {
		return &ValidationError{Field: "feed_url", Message: "must contain a value"}
	}
	return nil
}

// EntryCap returns the effective per-feed entry cap.
func (p *Publisher) EntryCap() int {
	if p.MaxEntries == nil {
		return DefaultMaxEntries
	}
	return *p.MaxEntries
}

// HashURL returns the SHA-256 hex digest of a URL. It is the identity
// function for both publishers (feed URL) and articles (canonical URL).
func HashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// String implements fmt.Stringer for log output.
func (p *Publisher) String() string {
	return fmt.Sprintf("Publisher(%s, %s)", p.PublisherID, p.PublisherName)
}
