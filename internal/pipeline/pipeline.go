// Package pipeline coordinates a single article's journey: dedup check,
// scrape, enrichment, persistence, and tag linking.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/thebrief/briefbot/internal/brief"
)

// ErrScrapeFailed marks a URL whose scrape attempts, including the render
// fallback, were all exhausted.
var ErrScrapeFailed = errors.New("all scrape attempts failed")

// scrapeAttempts counts the first try plus retries.
const scrapeAttempts = 3

type (
	// Scraper fetches a URL and extracts an article from it. One call is one
	// attempt; retrying is the pipeline's job.
	Scraper interface {
		Scrape(ctx context.Context, url string) (brief.ScrapedArticle, error)
	}

	// Enricher produces a headline, summary, and tag selection for a scraped
	// article, given the allowed tag vocabulary.
	Enricher interface {
		Enrich(ctx context.Context, article brief.ScrapedArticle, taxonomy []string) (brief.EnrichmentResult, error)
	}

	// Store is the persistence surface the pipeline writes through.
	Store interface {
		brief.ArticleStore
		brief.TagStore
	}

	// Waiter paces requests to third-party origins. Satisfied by
	// [golang.org/x/time/rate.Limiter].
	Waiter interface {
		Wait(ctx context.Context) error
	}

	// Options tweak a single ingestion.
	Options struct {
		// SkipEnrichment stores the raw article without calling the model.
		SkipEnrichment bool
		// ManualContent is user-supplied body text for pages that cannot be
		// scraped (paywalls). Metadata is still best-effort scraped.
		ManualContent string
		// IngestedBy records who initiated this: "auto" or a user id.
		IngestedBy string
	}

	BatchFailure struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	}

	// BatchResult reports the per-URL breakdown of a batch run. Partial
	// success is the expected steady state.
	BatchResult struct {
		Success  []brief.Article `json:"success"`
		Failures []BatchFailure  `json:"failures"`
	}

	Pipeline struct {
		store    Store
		scraper  Scraper
		enricher Enricher
		limiter  Waiter

		// Retry schedule for scrape attempts; swapped out in tests.
		backoff func() retry.Backoff
	}
)

// New builds a pipeline. A nil enricher disables enrichment entirely, which
// keeps ingestion usable when no model credentials are configured.
func New(store Store, scraper Scraper, enricher Enricher, limiter Waiter) *Pipeline {
	return &Pipeline{
		store:    store,
		scraper:  scraper,
		enricher: enricher,
		limiter:  limiter,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(scrapeAttempts-1, retry.NewExponential(time.Second))
		},
	}
}

// IngestURL runs the full pipeline for one URL.
//
// Enrichment failures never fail the ingestion: the article is stored with
// nil headline and summary. Duplicates surface as [brief.DuplicateError]
// from both the pre-flight check and the insert itself.
func (p *Pipeline) IngestURL(ctx context.Context, articleURL string, opts Options) (brief.Article, error) {
	// Cheap dedup first, before any scrape or model cost is paid.
	if existing, err := p.store.ArticleByURL(ctx, articleURL); err == nil {
		return brief.Article{}, &brief.DuplicateError{URL: articleURL, ExistingID: existing.ID}
	} else if !errors.Is(err, brief.ErrNotFound) {
		return brief.Article{}, fmt.Errorf("error checking for existing article: %w", err)
	}

	scraped, err := p.acquireContent(ctx, articleURL, opts)
	if err != nil {
		return brief.Article{}, err
	}

	var (
		headline *string
		summary  *string
		tagNames []string
		taxonomy []brief.Tag
	)
	if !opts.SkipEnrichment && p.enricher != nil && scraped.RawContent != "" {
		taxonomy, err = p.store.AllTags(ctx)
		if err != nil {
			slog.Warn("error fetching tag taxonomy, storing without enrichment", "url", articleURL, "error", err)
		} else {
			names := make([]string, 0, len(taxonomy))
			for _, tag := range taxonomy {
				names = append(names, tag.Name)
			}

			enrichment, err := p.enricher.Enrich(ctx, scraped, names)
			if err != nil {
				slog.Warn("enrichment failed, storing without it", "url", articleURL, "error", err)
			} else {
				headline = &enrichment.Headline
				summary = &enrichment.Summary
				tagNames = enrichment.Tags
			}
		}
	}

	ingestedBy := opts.IngestedBy
	if ingestedBy == "" {
		ingestedBy = brief.IngestedByAuto
	}

	article, err := p.store.InsertArticle(ctx, brief.Article{
		URL:           scraped.URL,
		Title:         scraped.Title,
		Headline:      headline,
		Summary:       summary,
		ThumbnailURL:  scraped.ThumbnailURL,
		SourceName:    scraped.SourceName,
		SourceFavicon: scraped.SourceFavicon,
		Author:        scraped.Author,
		PublishedAt:   scraped.PublishedAt,
		RawContent:    scraped.RawContent,
		IngestedBy:    ingestedBy,
		Status:        brief.ArticleStatusActive,
	})
	if err != nil {
		// A racing ingester may have beaten us past the pre-check; the
		// insert's unique constraint reports that as a DuplicateError and it
		// passes through untouched.
		dup := &brief.DuplicateError{}
		if errors.As(err, &dup) {
			return brief.Article{}, err
		}
		return brief.Article{}, fmt.Errorf("error persisting article: %w", err)
	}

	article.Tags = p.linkTags(ctx, article.ID, tagNames, taxonomy)

	return article, nil
}

// IngestBatch processes URLs strictly in order with a politeness delay
// between each, collecting per-URL outcomes. One URL's failure never stops
// its siblings.
func (p *Pipeline) IngestBatch(ctx context.Context, urls []string, opts Options) (BatchResult, error) {
	result := BatchResult{
		Success:  []brief.Article{},
		Failures: []BatchFailure{},
	}

	for _, u := range urls {
		article, err := p.IngestURL(ctx, u, opts)
		if err != nil {
			slog.Warn("batch item failed", "url", u, "error", err)
			result.Failures = append(result.Failures, BatchFailure{URL: u, Error: err.Error()})
		} else {
			result.Success = append(result.Success, article)
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return result, err
		}
	}

	return result, nil
}

// acquireContent either wraps manual content with best-effort scraped
// metadata, or scrapes with retries.
func (p *Pipeline) acquireContent(ctx context.Context, articleURL string, opts Options) (brief.ScrapedArticle, error) {
	if opts.ManualContent == "" {
		return p.scrapeWithRetry(ctx, articleURL)
	}

	scraped := manualArticle(articleURL, opts.ManualContent)

	// A metadata scrape is a bonus here, not a requirement: the manual path
	// exists precisely because the page may not be scrapable.
	if meta, err := p.scraper.Scrape(ctx, articleURL); err == nil {
		scraped.Title = meta.Title
		scraped.ThumbnailURL = meta.ThumbnailURL
		scraped.SourceName = meta.SourceName
		scraped.SourceFavicon = meta.SourceFavicon
		scraped.Author = meta.Author
		scraped.PublishedAt = meta.PublishedAt
	} else {
		slog.Warn("metadata scrape failed for manual submission", "url", articleURL, "error", err)
	}

	return scraped, nil
}

func (p *Pipeline) scrapeWithRetry(ctx context.Context, articleURL string) (brief.ScrapedArticle, error) {
	var (
		scraped brief.ScrapedArticle
		lastErr error
	)
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		var err error
		scraped, err = p.scraper.Scrape(ctx, articleURL)
		if err != nil {
			lastErr = err
			return retry.RetryableError(err)
		}

		return nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return brief.ScrapedArticle{}, fmt.Errorf("%w: %s (%d attempts): %s", ErrScrapeFailed, articleURL, scrapeAttempts, lastErr)
	}

	return scraped, nil
}

// linkTags resolves model-returned tag names against the taxonomy with an
// exact case-insensitive match and links the survivors. Unknown names are
// dropped: the taxonomy is closed, never auto-extended. Failures here are
// logged and swallowed; the article exists with fewer tags rather than not
// existing.
func (p *Pipeline) linkTags(ctx context.Context, articleID string, tagNames []string, taxonomy []brief.Tag) []string {
	if len(tagNames) == 0 {
		return []string{}
	}

	byName := make(map[string]brief.Tag, len(taxonomy))
	for _, tag := range taxonomy {
		byName[strings.ToLower(tag.Name)] = tag
	}

	var (
		links   []brief.ArticleTag
		matched []string
	)
	for _, name := range tagNames {
		tag, ok := byName[strings.ToLower(name)]
		if !ok {
			continue
		}

		links = append(links, brief.ArticleTag{
			ArticleID: articleID,
			TagID:     tag.ID,
			Source:    brief.TagSourceAI,
		})
		matched = append(matched, tag.Name)
	}

	if err := p.store.InsertArticleTags(ctx, links); err != nil {
		slog.Error("error linking article tags", "article_id", articleID, "error", err)
		return []string{}
	}

	if matched == nil {
		matched = []string{}
	}
	return matched
}

func manualArticle(articleURL, content string) brief.ScrapedArticle {
	scraped := brief.ScrapedArticle{
		URL:        articleURL,
		Title:      "Manual Submission",
		RawContent: content,
	}

	parsed, err := url.Parse(articleURL)
	if err != nil {
		return scraped
	}

	host := strings.TrimPrefix(parsed.Hostname(), "www.")
	origin := parsed.Scheme + "://" + parsed.Host
	favicon := origin + "/favicon.ico"
	scraped.SourceName = &host
	scraped.SourceFavicon = &favicon

	return scraped
}
