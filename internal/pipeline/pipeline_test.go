package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebrief/briefbot/internal/brief"
)

type fakeStore struct {
	articles map[string]brief.Article // keyed by URL
	tags     []brief.Tag
	links    []brief.ArticleTag

	tagsErr  error
	linksErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{articles: map[string]brief.Article{}}
}

func (s *fakeStore) Article(_ context.Context, id string) (brief.Article, error) {
	for _, a := range s.articles {
		if a.ID == id {
			return a, nil
		}
	}
	return brief.Article{}, brief.ErrNotFound
}

func (s *fakeStore) ArticleByURL(_ context.Context, url string) (brief.Article, error) {
	a, ok := s.articles[url]
	if !ok {
		return brief.Article{}, brief.ErrNotFound
	}
	return a, nil
}

func (s *fakeStore) InsertArticle(_ context.Context, a brief.Article) (brief.Article, error) {
	if existing, ok := s.articles[a.URL]; ok {
		return brief.Article{}, &brief.DuplicateError{URL: a.URL, ExistingID: existing.ID}
	}

	a.ID = fmt.Sprintf("id-%d-art", len(s.articles)+1)
	s.articles[a.URL] = a
	return a, nil
}

func (s *fakeStore) InsertArticleTags(_ context.Context, links []brief.ArticleTag) error {
	if s.linksErr != nil {
		return s.linksErr
	}
	s.links = append(s.links, links...)
	return nil
}

func (s *fakeStore) AllTags(_ context.Context) ([]brief.Tag, error) {
	if s.tagsErr != nil {
		return nil, s.tagsErr
	}
	return s.tags, nil
}

// fakeScraper pops one response per call from a script.
type fakeScraper struct {
	calls   int
	results []scrapeResult
}

type scrapeResult struct {
	article brief.ScrapedArticle
	err     error
}

func (f *fakeScraper) Scrape(_ context.Context, url string) (brief.ScrapedArticle, error) {
	res := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	f.calls++

	if res.err != nil {
		return brief.ScrapedArticle{}, res.err
	}

	article := res.article
	article.URL = url
	return article, nil
}

func scrapedOK(title string) scrapeResult {
	return scrapeResult{article: brief.ScrapedArticle{
		Title:      title,
		RawContent: strings.Repeat("content ", 50),
	}}
}

type fakeEnricher struct {
	result brief.EnrichmentResult
	err    error

	gotTaxonomy []string
}

func (f *fakeEnricher) Enrich(_ context.Context, _ brief.ScrapedArticle, taxonomy []string) (brief.EnrichmentResult, error) {
	f.gotTaxonomy = taxonomy
	return f.result, f.err
}

type noopWaiter struct{}

func (noopWaiter) Wait(context.Context) error { return nil }

func testPipeline(store Store, scraper Scraper, enricher Enricher) *Pipeline {
	p := New(store, scraper, enricher, noopWaiter{})
	p.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(scrapeAttempts-1, retry.NewConstant(time.Millisecond))
	}
	return p
}

func TestIngestURL(t *testing.T) {
	store := newFakeStore()
	store.tags = []brief.Tag{
		{ID: "t1", Name: "sponsorship"},
		{ID: "t2", Name: "Media Rights"},
	}
	scraper := &fakeScraper{results: []scrapeResult{scrapedOK("A Page")}}
	enricher := &fakeEnricher{result: brief.EnrichmentResult{
		Headline: "Punchy Headline",
		Summary:  "Why it matters.",
		Tags:     []string{"sponsorship", "media rights", "unknown-made-up-tag"},
	}}

	got, err := testPipeline(store, scraper, enricher).IngestURL(context.Background(), "https://example.com/a", Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "A Page", got.Title)
	require.NotNil(t, got.Headline)
	assert.Equal(t, "Punchy Headline", *got.Headline)
	assert.Equal(t, brief.IngestedByAuto, got.IngestedBy)
	assert.Equal(t, brief.ArticleStatusActive, got.Status)

	// The model saw the full taxonomy and the unknown tag was dropped, not
	// created.
	assert.Equal(t, []string{"sponsorship", "Media Rights"}, enricher.gotTaxonomy)
	assert.Equal(t, []string{"sponsorship", "Media Rights"}, got.Tags)
	require.Len(t, store.links, 2)
	assert.Equal(t, brief.TagSourceAI, store.links[0].Source)
	assert.Equal(t, "t1", store.links[0].TagID)
	assert.Equal(t, "t2", store.links[1].TagID)
}

func TestIngestURL_Duplicate(t *testing.T) {
	store := newFakeStore()
	store.articles["https://example.com/a"] = brief.Article{ID: "existing-art", URL: "https://example.com/a"}
	scraper := &fakeScraper{results: []scrapeResult{scrapedOK("A Page")}}

	_, err := testPipeline(store, scraper, nil).IngestURL(context.Background(), "https://example.com/a", Options{})

	dup := &brief.DuplicateError{}
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "existing-art", dup.ExistingID)
	assert.Zero(t, scraper.calls, "no scrape should be paid for a known duplicate")
}

func TestIngestURL_EnrichmentFailureDoesNotBlock(t *testing.T) {
	store := newFakeStore()
	store.tags = []brief.Tag{{ID: "t1", Name: "sponsorship"}}
	scraper := &fakeScraper{results: []scrapeResult{scrapedOK("A Page")}}
	enricher := &fakeEnricher{err: errors.New("model unavailable")}

	got, err := testPipeline(store, scraper, enricher).IngestURL(context.Background(), "https://example.com/a", Options{})
	require.NoError(t, err)

	assert.Nil(t, got.Headline)
	assert.Nil(t, got.Summary)
	assert.Empty(t, got.Tags)
	assert.Equal(t, "A Page", store.articles["https://example.com/a"].Title)
}

func TestIngestURL_SkipEnrichment(t *testing.T) {
	store := newFakeStore()
	scraper := &fakeScraper{results: []scrapeResult{scrapedOK("A Page")}}
	enricher := &fakeEnricher{result: brief.EnrichmentResult{Headline: "nope"}}

	got, err := testPipeline(store, scraper, enricher).IngestURL(context.Background(), "https://example.com/a", Options{SkipEnrichment: true})
	require.NoError(t, err)

	assert.Nil(t, got.Headline)
	assert.Nil(t, enricher.gotTaxonomy, "enricher must not be called")
}

func TestIngestURL_ScrapeRetries(t *testing.T) {
	store := newFakeStore()
	scraper := &fakeScraper{results: []scrapeResult{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		scrapedOK("Eventually"),
	}}

	got, err := testPipeline(store, scraper, nil).IngestURL(context.Background(), "https://example.com/a", Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, scraper.calls)
	assert.Equal(t, "Eventually", got.Title)
}

func TestIngestURL_ScrapeExhausted(t *testing.T) {
	store := newFakeStore()
	scraper := &fakeScraper{results: []scrapeResult{{err: errors.New("connection reset")}}}

	_, err := testPipeline(store, scraper, nil).IngestURL(context.Background(), "https://example.com/a", Options{})

	require.ErrorIs(t, err, ErrScrapeFailed)
	assert.Equal(t, scrapeAttempts, scraper.calls)
	assert.Empty(t, store.articles, "nothing should be persisted on scrape failure")
}

func TestIngestURL_ManualContent(t *testing.T) {
	store := newFakeStore()
	// The metadata scrape fails; the manual submission still goes through.
	scraper := &fakeScraper{results: []scrapeResult{{err: errors.New("403 forbidden")}}}

	got, err := testPipeline(store, scraper, nil).IngestURL(context.Background(), "https://www.example.com/paywalled", Options{
		ManualContent: "Pasted article text.",
		IngestedBy:    "user-42",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, scraper.calls, "metadata scrape is attempted exactly once, no retries")
	assert.Equal(t, "Manual Submission", got.Title)
	assert.Equal(t, "Pasted article text.", got.RawContent)
	assert.Equal(t, "user-42", got.IngestedBy)
	require.NotNil(t, got.SourceName)
	assert.Equal(t, "example.com", *got.SourceName)
	require.NotNil(t, got.SourceFavicon)
	assert.Equal(t, "https://www.example.com/favicon.ico", *got.SourceFavicon)
}

func TestIngestURL_ManualContentWithMetadata(t *testing.T) {
	store := newFakeStore()
	thumb := "https://example.com/hero.jpg"
	scraper := &fakeScraper{results: []scrapeResult{{article: brief.ScrapedArticle{
		Title:        "Real Title",
		ThumbnailURL: &thumb,
		RawContent:   "scraped body that should be ignored",
	}}}}

	got, err := testPipeline(store, scraper, nil).IngestURL(context.Background(), "https://example.com/a", Options{
		ManualContent: "Pasted article text.",
	})
	require.NoError(t, err)

	// Scraped metadata overlays the manual shell, but the manual body wins.
	assert.Equal(t, "Real Title", got.Title)
	require.NotNil(t, got.ThumbnailURL)
	assert.Equal(t, thumb, *got.ThumbnailURL)
	assert.Equal(t, "Pasted article text.", got.RawContent)
}

func TestIngestBatch_PartialFailure(t *testing.T) {
	store := newFakeStore()
	scraper := &fakeScraper{results: []scrapeResult{
		scrapedOK("One"),
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		scrapedOK("Three"),
	}}

	got, err := testPipeline(store, scraper, nil).IngestBatch(context.Background(), []string{
		"https://example.com/1",
		"https://example.com/2",
		"https://example.com/3",
	}, Options{})
	require.NoError(t, err)

	require.Len(t, got.Success, 2)
	assert.Equal(t, "One", got.Success[0].Title)
	assert.Equal(t, "Three", got.Success[1].Title)

	require.Len(t, got.Failures, 1)
	assert.Equal(t, "https://example.com/2", got.Failures[0].URL)
	assert.Contains(t, got.Failures[0].Error, "connection reset")
}

func TestIngestBatch_DuplicateWithinBatch(t *testing.T) {
	store := newFakeStore()
	scraper := &fakeScraper{results: []scrapeResult{
		scrapedOK("One"),
		scrapedOK("One Again"),
	}}

	got, err := testPipeline(store, scraper, nil).IngestBatch(context.Background(), []string{
		"https://example.com/1",
		"https://example.com/1",
	}, Options{})
	require.NoError(t, err)

	require.Len(t, got.Success, 1)
	require.Len(t, got.Failures, 1)
	assert.Contains(t, got.Failures[0].Error, "already exists")
}

func TestLinkTags_InsertFailureSwallowed(t *testing.T) {
	store := newFakeStore()
	store.tags = []brief.Tag{{ID: "t1", Name: "sponsorship"}}
	store.linksErr = errors.New("disk full")
	scraper := &fakeScraper{results: []scrapeResult{scrapedOK("A Page")}}
	enricher := &fakeEnricher{result: brief.EnrichmentResult{
		Headline: "H",
		Summary:  "S",
		Tags:     []string{"sponsorship"},
	}}

	got, err := testPipeline(store, scraper, enricher).IngestURL(context.Background(), "https://example.com/a", Options{})
	require.NoError(t, err, "the article still lands even when tag linking fails")

	assert.Empty(t, got.Tags)
	require.NotNil(t, got.Headline)
}
