package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "sources.en_US", cfg.SourcesFile)
	assert.Equal(t, 64, cfg.ThreadPoolSize)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, float64(100), cfg.PopScoreRange)
	assert.False(t, cfg.NoUpload)
	assert.Empty(t, cfg.CronSchedule)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SOURCES_FILE", "sources.ja_JP")
	t.Setenv("THREAD_POOL_SIZE", "8")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("NO_UPLOAD", "true")
	t.Setenv("DEFAULT_HEADERS", "Accept=application/rss+xml,X-Client=today-feed")

	cfg := Load()

	assert.Equal(t, "sources.ja_JP", cfg.SourcesFile)
	assert.Equal(t, 8, cfg.ThreadPoolSize)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.NoUpload)
	assert.Equal(t, "application/rss+xml", cfg.DefaultHeaders["Accept"])
	assert.Equal(t, "today-feed", cfg.DefaultHeaders["X-Client"])
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"bad sources file", func(c *Config) { c.SourcesFile = "en_US" }, true},
		{"zero pool", func(c *Config) { c.ThreadPoolSize = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, true},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"pop range below one", func(c *Config) { c.PopScoreRange = 0.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLocaleName(t *testing.T) {
	cfg := &Config{SourcesFile: "sources.en_GB"}
	assert.Equal(t, "en_GB", cfg.LocaleName())
}

func TestPaths(t *testing.T) {
	cfg := &Config{
		SourcesFile:     "sources.en_US",
		FeedSourcesPath: "feed_sources.json",
		OutputPath:      "out",
		OutputFeedPath:  filepath.Join("out", "feed"),
		FeedPath:        "feed",
		ChannelFile:     "channels.json",
	}

	assert.Equal(t, filepath.Join("out", "feed_sources.json"), cfg.SourcesPath())
	assert.Equal(t, filepath.Join("out", "feed", "feed.json"), cfg.FeedArtifactPath())
	assert.Equal(t, filepath.Join("out", "channels.json"), cfg.ChannelFilePath())
	assert.Equal(t, filepath.Join("out", "report.json"), cfg.ReportPath())
}

func TestPredictedChannelsEnabled(t *testing.T) {
	assert.True(t, (&Config{SourcesFile: "sources.en_US"}).PredictedChannelsEnabled())
	assert.False(t, (&Config{SourcesFile: "sources.en_GB"}).PredictedChannelsEnabled())
}
