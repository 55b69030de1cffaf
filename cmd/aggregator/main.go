package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"today-feed/internal/catalog"
	"today-feed/internal/config"
	"today-feed/internal/domain/entity"
	pgRepo "today-feed/internal/infra/adapter/persistence/postgres"
	"today-feed/internal/infra/db"
	"today-feed/internal/infra/fetcher"
	"today-feed/internal/infra/imageproc"
	"today-feed/internal/infra/objectstore"
	"today-feed/internal/infra/scraper"
	"today-feed/internal/infra/services"
	"today-feed/internal/infra/unshorten"
	"today-feed/internal/observability/logging"
	"today-feed/internal/observability/tracing"
	"today-feed/internal/usecase/aggregate"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	shutdownTracing := tracing.Init()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// An unreachable database or missing catalog aborts before any run row
	// is created.
	database, err := db.Open()
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	publishers, err := catalog.Load(cfg.SourcesPath())
	if err != nil {
		logger.Error("failed to load publisher catalog",
			slog.String("path", cfg.SourcesPath()),
			slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("publisher catalog loaded",
		slog.String("locale", cfg.LocaleName()),
		slog.Int("publishers", len(publishers)))

	svc := setupService(logger, cfg, database)

	if cfg.CronSchedule == "" {
		if err := runOnce(logger, cfg, svc, publishers); err != nil {
			os.Exit(1)
		}
		return
	}
	startCron(logger, cfg, svc, publishers)
}

// runOnce drives a single aggregation. Dropped articles never fail the run;
// only an unrecoverable pipeline error (e.g. artifact write) does.
func runOnce(logger *slog.Logger, cfg *config.Config, svc *aggregate.Service, publishers []*entity.Publisher) error {
	ctx := context.Background()
	result, err := svc.Run(ctx, publishers)
	if err != nil {
		logger.Error("aggregation failed", slog.Any("error", err))
		return err
	}
	logger.Info("feed artifact written",
		slog.String("path", cfg.FeedArtifactPath()),
		slog.Int("articles", len(result.Articles)))
	return nil
}

// startCron runs the aggregation on a schedule. A failed run logs and waits
// for the next tick.
func startCron(logger *slog.Logger, cfg *config.Config, svc *aggregate.Service, publishers []*entity.Publisher) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone, using UTC",
			slog.String("timezone", cfg.Timezone),
			slog.Any("error", err))
		loc = time.UTC
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(cfg.CronSchedule, func() {
		_ = runOnce(logger, cfg, svc, publishers)
	})
	if err != nil {
		logger.Error("failed to add cron job", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()

	logger.Info("aggregator scheduled",
		slog.String("schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone))
	select {}
}

// setupService builds the pipeline service and its collaborators.
func setupService(logger *slog.Logger, cfg *config.Config, database *sql.DB) *aggregate.Service {
	httpClient := newHTTPClient(cfg.RequestTimeout)

	fetchPrimitive := fetcher.New(httpClient, fetcher.Config{
		Timeout:        cfg.RequestTimeout,
		DefaultHeaders: cfg.DefaultHeaders,
	})

	downloader := scraper.NewDownloader(fetchPrimitive, cfg.ThreadPoolSize)
	parser := scraper.NewParser(cfg.Concurrency)
	resolver := unshorten.New(newHTTPClient(cfg.RequestTimeout), cfg.RequestTimeout)

	popularity := services.NewPopularityClient(httpClient, cfg.PopularityURL)

	var channelPredictor aggregate.ChannelPredictor
	var externalClassifier aggregate.ExternalClassifier
	if cfg.PredictedChannelsEnabled() {
		if cfg.ChannelsURL != "" {
			channelPredictor = services.NewChannelsClient(httpClient, cfg.ChannelsURL)
		}
		if cfg.ExternalChannelURL != "" {
			externalClassifier = services.NewExternalChannelsClient(httpClient, cfg.ExternalChannelURL)
		}
	}

	uploader := newUploader(logger, cfg)
	imageDownloader := imageproc.NewDownloader(fetchPrimitive, 256)
	imageProcessor := imageproc.NewArticleProcessor(uploader, cfg.PrivateS3Bucket, cfg.PCDNURLBase)

	articleRepo := pgRepo.NewArticleRepo(database)
	aggRepo := pgRepo.NewAggregationRepo(database)

	return aggregate.NewService(
		cfg,
		downloader,
		parser,
		resolver,
		popularity,
		channelPredictor,
		externalClassifier,
		imageDownloader,
		imageProcessor,
		fetchPrimitive,
		articleRepo,
		aggRepo,
		uploader,
	)
}

// newUploader returns the S3 uploader, or the noop sink when uploads are
// disabled or the AWS configuration is unavailable.
func newUploader(logger *slog.Logger, cfg *config.Config) objectstore.Uploader {
	if cfg.NoUpload {
		logger.Info("uploads disabled")
		return objectstore.NoopUploader{}
	}

	uploader, err := objectstore.NewS3Uploader(context.Background())
	if err != nil {
		logger.Warn("S3 unavailable, uploads disabled", slog.Any("error", err))
		return objectstore.NoopUploader{}
	}
	return uploader
}

// newHTTPClient creates an HTTP client with connection pooling sized for the
// feed fan-out. TLS 1.2+ is enforced.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}
