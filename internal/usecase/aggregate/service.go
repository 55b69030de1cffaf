// Package aggregate implements the aggregation pipeline: it drives the
// download, parse, enrichment, image, and persistence stages for one locale
// and emits the final feed artifact. Each stage is a fan-out/fan-in barrier;
// the next stage starts only after all in-flight work of the prior stage has
// finished.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"today-feed/internal/config"
	"today-feed/internal/domain/entity"
	"today-feed/internal/infra/imageproc"
	"today-feed/internal/infra/objectstore"
	"today-feed/internal/infra/scraper"
	"today-feed/internal/observability/metrics"
	"today-feed/internal/observability/tracing"
	"today-feed/internal/repository"
)

// Downloader fetches raw feed bodies for a publisher set.
type Downloader interface {
	Download(ctx context.Context, publishers []*entity.Publisher, report *entity.Report) []scraper.FeedBody
}

// FeedParser turns feed bodies into entry lists.
type FeedParser interface {
	Parse(ctx context.Context, bodies []scraper.FeedBody, publishers map[string]*entity.Publisher, report *entity.Report) []scraper.ParsedFeed
}

// URLResolver resolves a feed link through redirects to its canonical URL.
type URLResolver interface {
	Resolve(ctx context.Context, link string) (string, error)
}

// PopularityScorer returns the raw popularity score for a canonical URL.
type PopularityScorer interface {
	Score(ctx context.Context, url string) (float64, error)
}

// ChannelPredictor returns predicted channel names for a canonical URL.
type ChannelPredictor interface {
	Predict(ctx context.Context, url string) ([]string, error)
}

// ExternalClassifier returns external channels plus raw confidences.
type ExternalClassifier interface {
	Classify(ctx context.Context, url string) ([]string, []entity.ChannelConfidence, error)
}

// ImageDownloader performs the capped image fetch.
type ImageDownloader interface {
	Download(ctx context.Context, imgURL string) (imageproc.Downloaded, error)
}

// ImageProcessor pads, recompresses, and uploads one image, returning the
// CDN URL.
type ImageProcessor interface {
	Process(ctx context.Context, data []byte) (string, error)
}

// PageFetcher fetches article pages for the og:image probe.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, maxBytes int64) ([]byte, error)
}

// Service wires the pipeline stages together. Construct it once per process
// with NewService; Run may be called once per aggregation.
type Service struct {
	cfg         *config.Config
	downloader  Downloader
	parser      FeedParser
	resolver    URLResolver
	popularity  PopularityScorer
	channels    ChannelPredictor
	external    ExternalClassifier
	images      ImageDownloader
	imgProc     ImageProcessor
	pages       PageFetcher
	articleRepo repository.ArticleRepository
	aggRepo     repository.AggregationRepository
	uploader    objectstore.Uploader
}

// NewService creates the pipeline service. channels and external may be nil
// when the locale is not classification-gated or no endpoint is configured.
func NewService(
	cfg *config.Config,
	downloader Downloader,
	parser FeedParser,
	resolver URLResolver,
	popularity PopularityScorer,
	channels ChannelPredictor,
	external ExternalClassifier,
	images ImageDownloader,
	imgProc ImageProcessor,
	pages PageFetcher,
	articleRepo repository.ArticleRepository,
	aggRepo repository.AggregationRepository,
	uploader objectstore.Uploader,
) *Service {
	return &Service{
		cfg:         cfg,
		downloader:  downloader,
		parser:      parser,
		resolver:    resolver,
		popularity:  popularity,
		channels:    channels,
		external:    external,
		images:      images,
		imgProc:     imgProc,
		pages:       pages,
		articleRepo: articleRepo,
		aggRepo:     aggRepo,
		uploader:    uploader,
	}
}

// RunResult is what a completed run produced.
type RunResult struct {
	AggregationID uuid.UUID
	Articles      []*entity.Article
	Report        *entity.Report
}

// Run executes one aggregation for the configured locale. Per-item failures
// are absorbed inside their stages; an error here means the run itself could
// not complete (e.g. the artifact could not be written).
func (s *Service) Run(ctx context.Context, publishers []*entity.Publisher) (*RunResult, error) {
	logger := slog.Default()
	startTime := time.Now()
	locale := s.cfg.LocaleName()

	run := &entity.AggregationRun{
		ID:         uuid.New(),
		StartTime:  startTime.UTC(),
		LocaleName: locale,
	}
	logger.Info("starting aggregation",
		slog.String("aggregation_id", run.ID.String()),
		slog.String("locale", locale),
		slog.Int("publishers", len(publishers)))

	if err := s.aggRepo.Insert(ctx, run); err != nil {
		// The run proceeds; the audit row is best-effort like every other
		// persistence call.
		logger.Error("failed to insert aggregation stats", slog.Any("error", err))
		metrics.RecordPersistenceError("insert_aggregation_stats")
	}

	report := entity.NewReport()
	pubIndex := make(map[string]*entity.Publisher, len(publishers))
	for _, pub := range publishers {
		pubIndex[pub.PublisherID] = pub
	}

	// Stage 1-2: download and parse feeds.
	var bodies []scraper.FeedBody
	s.stage(ctx, "download-feeds", len(publishers), func(ctx context.Context) int {
		bodies = s.downloader.Download(ctx, publishers, report)
		return len(bodies)
	})
	s.updateRun(ctx, run.ID, entity.AggregationUpdate{FeedCount: entity.Int64Ptr(int64(len(bodies)))})

	var feeds []scraper.ParsedFeed
	s.stage(ctx, "parse-feeds", len(bodies), func(ctx context.Context) int {
		feeds = s.parser.Parse(ctx, bodies, pubIndex, report)
		return len(feeds)
	})
	bodies = nil

	// Stage 3: per-entry processing.
	var rawArticles []*entity.Article
	s.stage(ctx, "process-entries", entryCount(feeds), func(ctx context.Context) int {
		rawArticles = s.processEntries(ctx, feeds, pubIndex, report)
		return len(rawArticles)
	})
	s.updateRun(ctx, run.ID, entity.AggregationUpdate{StartArticleCount: entity.Int64Ptr(int64(len(rawArticles)))})

	// Stage 4: canonicalize URLs and split against the article cache.
	var newArticles, cachedArticles []*entity.Article
	s.stage(ctx, "unshorten-split", len(rawArticles), func(ctx context.Context) int {
		newArticles, cachedArticles = s.splitByCache(ctx, rawArticles, locale)
		return len(newArticles) + len(cachedArticles)
	})
	rawArticles = nil
	s.updateRun(ctx, run.ID, entity.AggregationUpdate{CacheHitCount: entity.Int64Ptr(int64(len(cachedArticles)))})

	// Stage 5: popularity. New articles that fail are dropped; cached ones
	// keep their prior score. Normalization is per-stream.
	s.stage(ctx, "popularity", len(newArticles)+len(cachedArticles), func(ctx context.Context) int {
		newArticles = s.scorePopularity(ctx, newArticles, true)
		cachedArticles = s.scorePopularity(ctx, cachedArticles, false)
		return len(newArticles) + len(cachedArticles)
	})

	// Stage 6: predicted channels, only for the gated locale.
	if s.cfg.PredictedChannelsEnabled() && s.channels != nil {
		s.stage(ctx, "predict-channels", len(newArticles), func(ctx context.Context) int {
			s.predictChannels(ctx, newArticles)
			return len(newArticles)
		})
	}

	// Stage 7: image pipeline on new articles only; cached articles reuse
	// their stored images.
	s.stage(ctx, "images", len(newArticles), func(ctx context.Context) int {
		newArticles = s.processImages(ctx, newArticles, pubIndex)
		return len(newArticles)
	})

	// Stage 8: scrub new articles.
	s.stage(ctx, "scrub", len(newArticles), func(ctx context.Context) int {
		s.scrubArticles(ctx, newArticles)
		return len(newArticles)
	})

	// Stage 9: merge, dedupe, rank.
	var ranked []*entity.Article
	s.stage(ctx, "rank", len(newArticles)+len(cachedArticles), func(ctx context.Context) int {
		ranked = rankArticles(append(newArticles, cachedArticles...), pubIndex, time.Now())
		return len(ranked)
	})

	// Stage 10: persist.
	s.stage(ctx, "persist", len(ranked), func(ctx context.Context) int {
		s.persistArticles(ctx, ranked, locale, run.ID)
		return len(ranked)
	})

	// Stage 11: external classification, gated like stage 6.
	if s.cfg.PredictedChannelsEnabled() && s.external != nil {
		s.stage(ctx, "external-channels", len(newArticles), func(ctx context.Context) int {
			s.classifyExternal(ctx, newArticles)
			return len(newArticles)
		})
	}

	// Stage 12: artifacts.
	if err := s.writeArtifacts(ctx, ranked, report); err != nil {
		metrics.RecordRun(false, 0)
		return nil, fmt.Errorf("Run: %w", err)
	}

	s.updateRun(ctx, run.ID, entity.AggregationUpdate{
		RunTimeSecs:     entity.Int64Ptr(int64(time.Since(startTime).Seconds())),
		Success:         entity.BoolPtr(true),
		EndArticleCount: entity.Int64Ptr(int64(len(ranked))),
	})
	metrics.RecordRun(true, len(ranked))

	logger.Info("aggregation complete",
		slog.String("aggregation_id", run.ID.String()),
		slog.Int("articles", len(ranked)),
		slog.Duration("duration", time.Since(startTime)))

	return &RunResult{AggregationID: run.ID, Articles: ranked, Report: report}, nil
}

// stage runs fn under a span, times it, and records in/out item counts.
func (s *Service) stage(ctx context.Context, name string, in int, fn func(ctx context.Context) int) {
	ctx, span := tracing.StartStage(ctx, name)
	defer span.End()

	start := time.Now()
	out := fn(ctx)
	duration := time.Since(start)

	metrics.RecordStage(name, duration, in, out)
	slog.Info("stage complete",
		slog.String("stage", name),
		slog.Int("in", in),
		slog.Int("out", out),
		slog.Duration("duration", duration))
}

// updateRun applies a partial run update, logging instead of failing.
func (s *Service) updateRun(ctx context.Context, id uuid.UUID, update entity.AggregationUpdate) {
	if err := s.aggRepo.Update(ctx, id, update); err != nil {
		slog.Error("failed to update aggregation stats",
			slog.String("aggregation_id", id.String()),
			slog.Any("error", err))
		metrics.RecordPersistenceError("update_aggregation_stats")
	}
}

// entryCount sums the entries across parsed feeds.
func entryCount(feeds []scraper.ParsedFeed) int {
	var n int
	for _, f := range feeds {
		n += len(f.Entries)
	}
	return n
}
