// Package config loads the aggregator configuration from the environment.
// The configuration is loaded once in main and injected into constructors;
// nothing mutates it after start.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	pkgconfig "today-feed/internal/pkg/config"
)

// PredictedChannelsLocale is the only locale for which the channel
// classification services are called.
const PredictedChannelsLocale = "en_US"

// Config holds every knob of an aggregation run.
type Config struct {
	// SourcesFile names the catalog, e.g. "sources.en_US". The locale name
	// is the part after "sources.".
	SourcesFile string

	// FeedSourcesPath is the catalog JSON file name under OutputPath.
	FeedSourcesPath string

	// ThreadPoolSize bounds in-flight network requests (I/O pool).
	ThreadPoolSize int

	// Concurrency bounds CPU-bound workers; defaults to the CPU count.
	Concurrency int

	// RequestTimeout is the per-request deadline for every outbound HTTP call.
	RequestTimeout time.Duration

	// PopScoreRange is the upper bound of the normalized popularity score.
	PopScoreRange float64

	// Object store and CDN settings.
	PrivateS3Bucket string
	PubS3Bucket     string
	PCDNURLBase     string
	NoUpload        bool

	// Output locations.
	OutputPath     string
	OutputFeedPath string
	FeedPath       string
	ChannelFile    string

	// DefaultHeaders are added to every outbound HTTP request.
	DefaultHeaders map[string]string

	// External service endpoints.
	PopularityURL      string
	ChannelsURL        string
	ExternalChannelURL string

	// Optional scheduled mode. Empty means run once and exit.
	CronSchedule string
	Timezone     string
}

// Load reads the configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		SourcesFile:        pkgconfig.GetEnvString("SOURCES_FILE", "sources.en_US"),
		FeedSourcesPath:    pkgconfig.GetEnvString("FEED_SOURCES_PATH", "feed_sources.json"),
		ThreadPoolSize:     pkgconfig.GetEnvInt("THREAD_POOL_SIZE", 64),
		Concurrency:        pkgconfig.GetEnvInt("CONCURRENCY", runtime.NumCPU()),
		RequestTimeout:     pkgconfig.GetEnvDuration("REQUEST_TIMEOUT", 15*time.Second),
		PopScoreRange:      pkgconfig.GetEnvFloat("POP_SCORE_RANGE", 100),
		PrivateS3Bucket:    pkgconfig.GetEnvString("PRIVATE_S3_BUCKET", ""),
		PubS3Bucket:        pkgconfig.GetEnvString("PUB_S3_BUCKET", ""),
		PCDNURLBase:        pkgconfig.GetEnvString("PCDN_URL_BASE", ""),
		NoUpload:           pkgconfig.GetEnvBool("NO_UPLOAD", false),
		OutputPath:         pkgconfig.GetEnvString("OUTPUT_PATH", "output"),
		OutputFeedPath:     pkgconfig.GetEnvString("OUTPUT_FEED_PATH", "output/feed"),
		FeedPath:           pkgconfig.GetEnvString("FEED_PATH", "feed"),
		ChannelFile:        pkgconfig.GetEnvString("CHANNEL_FILE", "channels.json"),
		DefaultHeaders:     pkgconfig.GetEnvStringMap("DEFAULT_HEADERS", nil),
		PopularityURL:      pkgconfig.GetEnvString("POPULARITY_URL", ""),
		ChannelsURL:        pkgconfig.GetEnvString("CHANNELS_URL", ""),
		ExternalChannelURL: pkgconfig.GetEnvString("EXTERNAL_CHANNEL_URL", ""),
		CronSchedule:       pkgconfig.GetEnvString("AGGREGATE_CRON", ""),
		Timezone:           pkgconfig.GetEnvString("AGGREGATE_TZ", "UTC"),
	}
}

// Validate checks the settings the run cannot proceed without. A failure here
// aborts before any run row is created.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.SourcesFile, "sources.") {
		return fmt.Errorf("sources_file must look like sources.<locale>, got %q", c.SourcesFile)
	}
	if c.LocaleName() == "" {
		return fmt.Errorf("sources_file must name a locale, got %q", c.SourcesFile)
	}
	if err := pkgconfig.ValidatePositiveInt(c.ThreadPoolSize); err != nil {
		return fmt.Errorf("thread_pool_size: %w", err)
	}
	if err := pkgconfig.ValidatePositiveInt(c.Concurrency); err != nil {
		return fmt.Errorf("concurrency: %w", err)
	}
	if err := pkgconfig.ValidatePositiveDuration(c.RequestTimeout); err != nil {
		return fmt.Errorf("request_timeout: %w", err)
	}
	if c.PopScoreRange < 1 {
		return fmt.Errorf("pop_score_range must be >= 1, got %g", c.PopScoreRange)
	}
	return nil
}

// LocaleName derives the locale from the sources file name:
// "sources.en_US" -> "en_US".
func (c *Config) LocaleName() string {
	return strings.TrimPrefix(c.SourcesFile, "sources.")
}

// SourcesPath is the location of the publisher catalog under OutputPath.
func (c *Config) SourcesPath() string {
	return filepath.Join(c.OutputPath, c.FeedSourcesPath)
}

// FeedArtifactPath is the final feed JSON location.
func (c *Config) FeedArtifactPath() string {
	return filepath.Join(c.OutputFeedPath, c.FeedPath+".json")
}

// ChannelFilePath is the channel list artifact location.
func (c *Config) ChannelFilePath() string {
	return filepath.Join(c.OutputPath, c.ChannelFile)
}

// ReportPath is the run report location.
func (c *Config) ReportPath() string {
	return filepath.Join(c.OutputPath, "report.json")
}

// PredictedChannelsEnabled reports whether the classification services run
// for this locale.
func (c *Config) PredictedChannelsEnabled() bool {
	return c.LocaleName() == PredictedChannelsLocale
}
