package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"today-feed/internal/config"
	"today-feed/internal/domain/entity"
	"today-feed/internal/infra/fetcher"
	"today-feed/internal/infra/imageproc"
	"today-feed/internal/infra/objectstore"
	"today-feed/internal/infra/scraper"
	"today-feed/internal/infra/unshorten"
)

// fakeArticleRepo is an in-memory article store.
type fakeArticleRepo struct {
	mu        sync.Mutex
	cached    map[string]*entity.Article
	upserts   map[string]*entity.Article
	cacheHits map[string]int
	channels  []string
}

func newFakeArticleRepo() *fakeArticleRepo {
	return &fakeArticleRepo{
		cached:    make(map[string]*entity.Article),
		upserts:   make(map[string]*entity.Article),
		cacheHits: make(map[string]int),
	}
}

func (r *fakeArticleRepo) GetCached(_ context.Context, urlHash, _ string) (*entity.Article, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	article, ok := r.cached[urlHash]
	if !ok {
		return nil, false, nil
	}
	r.cacheHits[urlHash]++
	copied := *article
	copied.Cached = true
	return &copied, true, nil
}

func (r *fakeArticleRepo) Upsert(_ context.Context, article *entity.Article, _ string, _ uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts[article.URLHash] = article
	return nil
}

func (r *fakeArticleRepo) InsertExternalChannels(_ context.Context, _ string, _ []string, _ []entity.ChannelConfidence) error {
	return nil
}

func (r *fakeArticleRepo) ListChannels(_ context.Context) ([]string, error) {
	return r.channels, nil
}

// fakeAggRepo merges partial run updates into one visible state.
type fakeAggRepo struct {
	mu       sync.Mutex
	inserted int
	state    entity.AggregationRun
}

func (r *fakeAggRepo) Insert(_ context.Context, run *entity.AggregationRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted++
	r.state = *run
	return nil
}

func (r *fakeAggRepo) Update(_ context.Context, _ uuid.UUID, update entity.AggregationUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if update.RunTimeSecs != nil {
		r.state.RunTimeSecs = *update.RunTimeSecs
	}
	if update.Success != nil {
		r.state.Success = *update.Success
	}
	if update.FeedCount != nil {
		r.state.FeedCount = *update.FeedCount
	}
	if update.StartArticleCount != nil {
		r.state.StartArticleCount = *update.StartArticleCount
	}
	if update.EndArticleCount != nil {
		r.state.EndArticleCount = *update.EndArticleCount
	}
	if update.CacheHitCount != nil {
		r.state.CacheHitCount = *update.CacheHitCount
	}
	return nil
}

// fakeScorer serves canned popularity scores.
type fakeScorer struct {
	mu     sync.Mutex
	scores map[string]float64
	fail   map[string]bool
	calls  []string
}

func (s *fakeScorer) Score(_ context.Context, url string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, url)
	if s.fail[url] {
		return 0, fmt.Errorf("popularity service unavailable")
	}
	if score, ok := s.scores[url]; ok {
		return score, nil
	}
	return 10, nil
}

// testWorld is one httptest server hosting feeds, articles, and images.
type testWorld struct {
	server *httptest.Server
	mux    *http.ServeMux
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &testWorld{server: server, mux: mux}
}

func (w *testWorld) url(path string) string { return w.server.URL + path }

func (w *testWorld) addFeed(path, rss string) {
	w.mux.HandleFunc(path, func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/rss+xml")
		_, _ = rw.Write([]byte(rss))
	})
}

func (w *testWorld) addArticle(path string) {
	w.mux.HandleFunc(path, func(rw http.ResponseWriter, r *http.Request) {
		_, _ = rw.Write([]byte("<html><body>article</body></html>"))
	})
}

func (w *testWorld) addImage(path string, width, height int) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 90, B: 180, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	data := buf.Bytes()
	w.mux.HandleFunc(path, func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "image/png")
		_, _ = rw.Write(data)
	})
}

func feedXML(items ...string) string {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Feed</title>`)
	for _, item := range items {
		b.WriteString(item)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func feedItem(title, link, img string) string {
	enclosure := ""
	if img != "" {
		enclosure = fmt.Sprintf(`<enclosure url="%s" type="image/png" length="1"/>`, img)
	}
	return fmt.Sprintf(
		`<item><title>%s</title><link>%s</link><description>Desc</description><pubDate>Tue, 02 Jan 2024 00:00:00 +0000</pubDate>%s</item>`,
		title, link, enclosure)
}

// harness wires a Service around the fakes and the test world.
type harness struct {
	cfg     *config.Config
	svc     *Service
	artRepo *fakeArticleRepo
	aggRepo *fakeAggRepo
	scorer  *fakeScorer
}

func newHarness(t *testing.T, world *testWorld) *harness {
	t.Helper()

	outputPath := t.TempDir()
	cfg := &config.Config{
		SourcesFile:     "sources.en_GB",
		FeedSourcesPath: "feed_sources.json",
		ThreadPoolSize:  4,
		Concurrency:     2,
		RequestTimeout:  5 * time.Second,
		PopScoreRange:   100,
		PubS3Bucket:     "pub-bucket",
		PCDNURLBase:     "https://pcdn.test",
		NoUpload:        true,
		OutputPath:      outputPath,
		OutputFeedPath:  filepath.Join(outputPath, "feed"),
		FeedPath:        "feed",
		ChannelFile:     "channels.json",
	}

	fetch := fetcher.New(world.server.Client(), fetcher.Config{Timeout: cfg.RequestTimeout})
	artRepo := newFakeArticleRepo()
	aggRepo := &fakeAggRepo{}
	scorer := &fakeScorer{scores: map[string]float64{}, fail: map[string]bool{}}

	svc := NewService(
		cfg,
		scraper.NewDownloader(fetch, cfg.ThreadPoolSize),
		scraper.NewParser(cfg.Concurrency),
		unshorten.New(&http.Client{}, cfg.RequestTimeout),
		scorer,
		nil,
		nil,
		imageproc.NewDownloader(fetch, 256),
		imageproc.NewArticleProcessor(objectstore.NoopUploader{}, "private-bucket", cfg.PCDNURLBase),
		fetch,
		artRepo,
		aggRepo,
		objectstore.NoopUploader{},
	)

	return &harness{cfg: cfg, svc: svc, artRepo: artRepo, aggRepo: aggRepo, scorer: scorer}
}

func publisher(id, name, feedURL string) *entity.Publisher {
	return &entity.Publisher{
		PublisherID:   id,
		PublisherName: name,
		FeedURL:       feedURL,
		Category:      "Tech",
		Enabled:       true,
		ContentType:   "article",
		Channels:      []string{"Top News"},
	}
}

func readArtifact(t *testing.T, path string) []map[string]any {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return decoded
}

func TestRun_HappyPathSingleArticle(t *testing.T) {
	world := newTestWorld(t)
	world.addArticle("/a/1")
	world.addImage("/i/1.png", 300, 220)
	world.addFeed("/f/1", feedXML(feedItem("Hello", world.url("/a/1"), world.url("/i/1.png"))))

	h := newHarness(t, world)
	publishers := []*entity.Publisher{publisher("p1", "Pub One", world.url("/f/1"))}

	result, err := h.svc.Run(context.Background(), publishers)
	require.NoError(t, err)
	require.Len(t, result.Articles, 1)

	article := result.Articles[0]
	wantHash := entity.HashURL(world.url("/a/1"))
	assert.Equal(t, "Hello", article.Title)
	assert.Equal(t, wantHash, article.URLHash)
	assert.Equal(t, 1.0, article.PopScore, "single-item normalization floors to 1.0")
	assert.Contains(t, article.PaddedImg, "https://pcdn.test/brave-today/article_images/")
	assert.Greater(t, article.Score, 0.0)

	// Artifact on disk matches the returned feed.
	emitted := readArtifact(t, h.cfg.FeedArtifactPath())
	require.Len(t, emitted, 1)
	assert.Equal(t, wantHash, emitted[0]["url_hash"])
	assert.Equal(t, "Pub One", emitted[0]["publisher_name"])

	// One ArticleRecord upserted; the run row reflects the counts.
	assert.Len(t, h.artRepo.upserts, 1)
	assert.Contains(t, h.artRepo.upserts, wantHash)
	assert.Equal(t, 1, h.aggRepo.inserted)
	assert.True(t, h.aggRepo.state.Success)
	assert.EqualValues(t, 1, h.aggRepo.state.FeedCount)
	assert.EqualValues(t, 1, h.aggRepo.state.StartArticleCount)
	assert.EqualValues(t, 1, h.aggRepo.state.EndArticleCount)
	assert.EqualValues(t, 0, h.aggRepo.state.CacheHitCount)

	// Report artifact carries the per-feed stats.
	rawReport, err := os.ReadFile(h.cfg.ReportPath())
	require.NoError(t, err)
	var report entity.Report
	require.NoError(t, json.Unmarshal(rawReport, &report))
	require.Contains(t, report.FeedStats, "p1")
	assert.Equal(t, 1, report.FeedStats["p1"].SizeBefore)
	assert.Equal(t, 1, report.FeedStats["p1"].SizeAfterInsert)
}

func TestRun_EmptyPublisherSet(t *testing.T) {
	world := newTestWorld(t)
	h := newHarness(t, world)

	result, err := h.svc.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Articles)

	raw, err := os.ReadFile(h.cfg.FeedArtifactPath())
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(raw))

	assert.True(t, h.aggRepo.state.Success)
	assert.EqualValues(t, 0, h.aggRepo.state.FeedCount)
	assert.EqualValues(t, 0, h.aggRepo.state.EndArticleCount)
}

func TestRun_ProfaneTitleRejected(t *testing.T) {
	world := newTestWorld(t)
	world.addArticle("/a/1")
	world.addImage("/i/1.png", 300, 220)
	world.addFeed("/f/1", feedXML(feedItem("This fucking headline", world.url("/a/1"), world.url("/i/1.png"))))

	h := newHarness(t, world)
	publishers := []*entity.Publisher{publisher("p1", "Pub One", world.url("/f/1"))}

	result, err := h.svc.Run(context.Background(), publishers)
	require.NoError(t, err)
	assert.Empty(t, result.Articles)
	assert.Empty(t, h.artRepo.upserts)
	assert.Equal(t, 0, result.Report.FeedStats["p1"].SizeAfterInsert)
}

func TestRun_PartialPopularityFailure(t *testing.T) {
	world := newTestWorld(t)
	world.addArticle("/a/1")
	world.addArticle("/a/2")
	world.addImage("/i/1.png", 300, 220)
	world.addFeed("/f/1", feedXML(
		feedItem("First", world.url("/a/1"), world.url("/i/1.png")),
		feedItem("Second", world.url("/a/2"), world.url("/i/1.png")),
	))

	h := newHarness(t, world)
	h.scorer.scores[world.url("/a/1")] = 5
	h.scorer.fail[world.url("/a/2")] = true
	publishers := []*entity.Publisher{publisher("p1", "Pub One", world.url("/f/1"))}

	result, err := h.svc.Run(context.Background(), publishers)
	require.NoError(t, err)
	require.Len(t, result.Articles, 1)
	assert.Equal(t, "First", result.Articles[0].Title)
	assert.Equal(t, 1.0, result.Articles[0].PopScore)
}

func TestRun_TooSmallImageDropped(t *testing.T) {
	world := newTestWorld(t)
	world.addArticle("/a/1")
	world.addImage("/i/tiny.png", 20, 20)
	world.addFeed("/f/1", feedXML(feedItem("Tiny", world.url("/a/1"), world.url("/i/tiny.png"))))

	h := newHarness(t, world)
	publishers := []*entity.Publisher{publisher("p1", "Pub One", world.url("/f/1"))}

	result, err := h.svc.Run(context.Background(), publishers)
	require.NoError(t, err)
	assert.Empty(t, result.Articles)
	assert.Empty(t, h.artRepo.upserts)
	assert.EqualValues(t, 0, h.aggRepo.state.EndArticleCount)
}

func TestRun_CachedArticleReused(t *testing.T) {
	world := newTestWorld(t)
	world.addArticle("/a/1")
	world.addImage("/i/1.png", 300, 220)
	world.addFeed("/f/1", feedXML(feedItem("Hello", world.url("/a/1"), world.url("/i/1.png"))))

	h := newHarness(t, world)
	wantHash := entity.HashURL(world.url("/a/1"))
	h.artRepo.cached[wantHash] = &entity.Article{
		Title:         "Hello",
		PublishTime:   entity.NewTimestamp(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)),
		Img:           world.url("/i/1.png"),
		PaddedImg:     "https://pcdn.test/brave-today/article_images/cached.jpeg",
		PublisherID:   "p1",
		PublisherName: "Pub One",
		URL:           world.url("/a/1"),
		URLHash:       wantHash,
		PopScore:      42,
	}
	publishers := []*entity.Publisher{publisher("p1", "Pub One", world.url("/f/1"))}

	result, err := h.svc.Run(context.Background(), publishers)
	require.NoError(t, err)
	require.Len(t, result.Articles, 1)

	article := result.Articles[0]
	assert.True(t, article.Cached)
	// The stored image pair is reused; the image pipeline never ran.
	assert.Equal(t, "https://pcdn.test/brave-today/article_images/cached.jpeg", article.PaddedImg)
	assert.Equal(t, 1, h.artRepo.cacheHits[wantHash])
	assert.EqualValues(t, 1, h.aggRepo.state.CacheHitCount)
	// The cached article is still upserted so its mutable fields refresh.
	assert.Contains(t, h.artRepo.upserts, wantHash)
	// Popularity was consulted for the cached URL.
	assert.Contains(t, h.scorer.calls, world.url("/a/1"))
}

func TestRun_DedupeAcrossFeeds(t *testing.T) {
	world := newTestWorld(t)
	world.addArticle("/a/shared")
	world.addImage("/i/1.png", 300, 220)

	// Two feeds carry the same canonical article with different timestamps.
	item1 := `<item><title>Shared Old</title><link>` + world.url("/a/shared") + `</link><pubDate>Mon, 01 Jan 2024 00:00:00 +0000</pubDate><enclosure url="` + world.url("/i/1.png") + `" type="image/png" length="1"/></item>`
	item2 := `<item><title>Shared New</title><link>` + world.url("/a/shared") + `</link><pubDate>Tue, 02 Jan 2024 00:00:00 +0000</pubDate><enclosure url="` + world.url("/i/1.png") + `" type="image/png" length="1"/></item>`
	world.addFeed("/f/1", feedXML(item1))
	world.addFeed("/f/2", feedXML(item2))

	h := newHarness(t, world)
	publishers := []*entity.Publisher{
		publisher("p1", "Pub One", world.url("/f/1")),
		publisher("p2", "Pub Two", world.url("/f/2")),
	}

	result, err := h.svc.Run(context.Background(), publishers)
	require.NoError(t, err)
	require.Len(t, result.Articles, 1, "same url_hash must collapse to one article")
	assert.Equal(t, "Shared New", result.Articles[0].Title, "the later publish_time wins")
}

func TestRun_SortedByPublishTimeDesc(t *testing.T) {
	world := newTestWorld(t)
	world.addArticle("/a/1")
	world.addArticle("/a/2")
	world.addImage("/i/1.png", 300, 220)

	item1 := `<item><title>Older</title><link>` + world.url("/a/1") + `</link><pubDate>Mon, 01 Jan 2024 00:00:00 +0000</pubDate><enclosure url="` + world.url("/i/1.png") + `" type="image/png" length="1"/></item>`
	item2 := `<item><title>Newer</title><link>` + world.url("/a/2") + `</link><pubDate>Tue, 02 Jan 2024 00:00:00 +0000</pubDate><enclosure url="` + world.url("/i/1.png") + `" type="image/png" length="1"/></item>`
	world.addFeed("/f/1", feedXML(item1, item2))

	h := newHarness(t, world)
	publishers := []*entity.Publisher{publisher("p1", "Pub One", world.url("/f/1"))}

	result, err := h.svc.Run(context.Background(), publishers)
	require.NoError(t, err)
	require.Len(t, result.Articles, 2)
	assert.Equal(t, "Newer", result.Articles[0].Title)
	assert.Equal(t, "Older", result.Articles[1].Title)
}
