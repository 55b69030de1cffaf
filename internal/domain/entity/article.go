package entity

import (
	"time"
)

// Timestamp is a UTC instant that marshals as ISO-8601, the format the feed
// artifact carries.
type Timestamp struct {
	time.Time
}

// NewTimestamp converts t to UTC and wraps it.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC()}
}

// MarshalJSON renders the timestamp as a quoted RFC 3339 string in UTC.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(time.RFC3339) + `"`), nil
}

// UnmarshalJSON accepts an RFC 3339 string.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	t.Time = parsed.UTC()
	return nil
}

// RawEntry is a feed entry after parsing, before per-article processing.
type RawEntry struct {
	PublisherID string
	Title       string
	Link        string
	Updated     string
	Description string
	Content     string
	Img         string
}

// Article is an entry as it moves through the enrichment stages and, fully
// enriched, into the emitted feed artifact. URLHash is the global article
// identity once the canonical URL is known.
type Article struct {
	Title              string    `json:"title"`
	PublishTime        Timestamp `json:"publish_time"`
	Img                string    `json:"img"`
	Category           string    `json:"category"`
	Description        string    `json:"description"`
	ContentType        string    `json:"content_type"`
	PublisherID        string    `json:"publisher_id"`
	PublisherName      string    `json:"publisher_name"`
	Channels           []string  `json:"channels"`
	CreativeInstanceID string    `json:"creative_instance_id"`
	URL                string    `json:"url"`
	URLHash            string    `json:"url_hash"`
	PopScore           float64   `json:"pop_score"`
	PaddedImg          string    `json:"padded_img"`
	Score              float64   `json:"score"`
	PredictedChannels  []string  `json:"predicted_channels,omitempty"`

	// Link is the pre-canonicalization URL from the feed. It is consumed by
	// the unshortener and never emitted.
	Link string `json:"-"`
	// Content carries the entry body between parse and scrub; the artifact
	// does not include it.
	Content string `json:"-"`
	// Cached marks articles restored from the store rather than enriched in
	// this run.
	Cached bool `json:"-"`
}

// ChannelConfidence is one entry of the external classification response.
type ChannelConfidence struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

