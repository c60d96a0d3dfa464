// Package poll discovers new articles from RSS and Atom feeds and hands them
// to the ingestion pipeline.
package poll

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/thebrief/briefbot/internal/brief"
	"github.com/thebrief/briefbot/internal/logger"
	"github.com/thebrief/briefbot/internal/pipeline"
)

const userAgent = "TheBriefBot/1.0 (+https://thebrief.agency; content aggregation)"

// feedTimeout bounds a single feed document fetch.
const feedTimeout = 15 * time.Second

type (
	// Ingester runs the article pipeline for one URL.
	Ingester interface {
		IngestURL(ctx context.Context, url string, opts pipeline.Options) (brief.Article, error)
	}

	// Store is what the poller needs from persistence: feed bookkeeping and
	// the dedup oracle.
	Store interface {
		brief.FeedStore
		ArticleByURL(ctx context.Context, url string) (brief.Article, error)
	}

	// Entry is one candidate article pulled out of a feed document.
	Entry struct {
		URL         string
		Title       string
		PublishedAt *time.Time
		Description string
	}

	// Result counts what happened to a feed's entries during one poll.
	Result struct {
		Ingested int `json:"ingested"`
		Skipped  int `json:"skipped"`
		Failed   int `json:"failed"`
	}

	Poller struct {
		store    Store
		ingester Ingester
		limiter  pipeline.Waiter
		client   *http.Client

		// Overridable clock for the interval-gate tests.
		now func() time.Time
	}
)

func New(store Store, ingester Ingester, limiter pipeline.Waiter) *Poller {
	return &Poller{
		store:    store,
		ingester: ingester,
		limiter:  limiter,
		client:   &http.Client{Timeout: feedTimeout},
		now:      time.Now,
	}
}

// PollFeed fetches one feed and ingests its new entries in document order.
//
// An inactive feed, or one still inside its fetch interval, is a no-op poll
// returning zero counts rather than an error. The interval gate is re-armed
// unconditionally after a real poll attempt, so a feed full of broken
// entries is retried on its schedule instead of being hammered.
func (p *Poller) PollFeed(ctx context.Context, feedSourceID string) (Result, error) {
	src, err := p.store.FeedSource(ctx, feedSourceID)
	if err != nil {
		return Result{}, fmt.Errorf("error loading feed source %s: %w", feedSourceID, err)
	}

	ctx = logger.Ctx(ctx, slog.String("feed", src.Name))

	if !src.Active {
		slog.DebugContext(ctx, "feed inactive, skipping poll")
		return Result{}, nil
	}
	if !src.Eligible(p.now()) {
		slog.DebugContext(ctx, "feed inside fetch interval, skipping poll", "last_fetched_at", src.LastFetchedAt)
		return Result{}, nil
	}

	entries, err := p.fetchEntries(ctx, src.URL)
	if err != nil {
		return Result{}, fmt.Errorf("error fetching feed %s: %w", src.Name, err)
	}

	var result Result
	for _, entry := range entries {
		if _, err := p.store.ArticleByURL(ctx, entry.URL); err == nil {
			result.Skipped++
			continue
		} else if !errors.Is(err, brief.ErrNotFound) {
			// The insert's unique constraint is authoritative anyway; carry on.
			slog.WarnContext(ctx, "dedup lookup failed, attempting ingest", "url", entry.URL, "error", err)
		}

		if _, err := p.ingester.IngestURL(ctx, entry.URL, pipeline.Options{IngestedBy: brief.IngestedByAuto}); err != nil {
			slog.WarnContext(ctx, "feed entry failed to ingest", "url", entry.URL, "error", err)
			result.Failed++
		} else {
			result.Ingested++
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return result, err
		}
	}

	if err := p.store.TouchFeedSource(ctx, src.ID, p.now()); err != nil {
		slog.ErrorContext(ctx, "error updating last_fetched_at", "error", err)
	}

	slog.InfoContext(ctx, "feed polled",
		"ingested", result.Ingested,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)

	return result, nil
}

// PollAll polls every active feed in turn. One feed's failure is recorded as
// zero counts and never aborts the rest.
func (p *Poller) PollAll(ctx context.Context) (map[string]Result, error) {
	feeds, err := p.store.ActiveFeedSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing active feed sources: %w", err)
	}

	results := make(map[string]Result, len(feeds))
	for _, feed := range feeds {
		result, err := p.PollFeed(ctx, feed.ID)
		if err != nil {
			slog.Warn("feed poll failed", "feed", feed.Name, "error", err)
			results[feed.Name] = Result{}
			continue
		}

		results[feed.Name] = result
	}

	return results, nil
}

var stripPolicy = bluemonday.StrictPolicy()

// fetchEntries downloads and parses the feed document. gofeed tolerates both
// RSS 2.0 items and Atom entries.
func (p *Poller) fetchEntries(ctx context.Context, feedURL string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating feed request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error getting feed url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading feed body: %w", err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("error parsing feed: %w", err)
	}

	entries := make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" {
			continue
		}

		title := item.Title
		if title == "" {
			title = "Untitled"
		}

		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}

		description := item.Description
		if description == "" {
			description = item.Content
		}

		entries = append(entries, Entry{
			URL:         item.Link,
			Title:       sanitize(title),
			PublishedAt: published,
			Description: sanitize(description),
		})
	}

	return entries, nil
}

// Removes all html tags from the string, usually a description.
//
// Also limits the length of the string so there's not a massive chunk of text being carried around.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = stripPolicy.Sanitize(s)
	if len(s) > 2048 {
		s = s[:2048]
	}

	return s
}
