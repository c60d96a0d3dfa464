// Package brief holds the domain types and store contracts for the
// ingestion pipeline.
package brief

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("resource not found")
)

// DuplicateError is returned when a URL has already been ingested.
//
// It is raised both by the pre-flight lookup and by the insert itself when a
// concurrent ingestion races past the check; callers treat the two cases
// identically.
type DuplicateError struct {
	URL        string
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("article already exists for %s (id %s)", e.URL, e.ExistingID)
}

// Article statuses. The pipeline only ever writes "active"; archival is an
// editorial concern downstream.
const (
	ArticleStatusActive   = "active"
	ArticleStatusArchived = "archived"
)

// Sources for an article-tag link.
const (
	TagSourceAI     = "ai"
	TagSourceManual = "manual"
)

// IngestedByAuto marks rows created by the feed poller rather than a user.
const IngestedByAuto = "auto"

type (
	// Article is a deduplicated unit of ingested content. The URL is the
	// natural key; a URL maps to at most one row.
	Article struct {
		ID            string     `db:"id"`
		URL           string     `db:"url"`
		Title         string     `db:"title"`
		Headline      *string    `db:"headline"`
		Summary       *string    `db:"summary"`
		ThumbnailURL  *string    `db:"thumbnail_url"`
		SourceName    *string    `db:"source_name"`
		SourceFavicon *string    `db:"source_favicon"`
		Author        *string    `db:"author"`
		PublishedAt   *time.Time `db:"published_at"`
		RawContent    string     `db:"raw_content"`
		IngestedBy    string     `db:"ingested_by"`
		IngestedAt    time.Time  `db:"ingested_at"`
		Status        string     `db:"status"`

		// Names of the tags linked to this article. Populated by the
		// pipeline on ingest, not hydrated by every store read.
		Tags []string `db:"-"`
	}

	// Tag is an entry in the closed taxonomy. The pipeline only reads these;
	// the taxonomy is never extended by ingestion.
	Tag struct {
		ID        string    `db:"id"`
		Name      string    `db:"name"`
		Category  *string   `db:"category"`
		CreatedAt time.Time `db:"created_at"`
	}

	// ArticleTag links an article to a taxonomy tag.
	ArticleTag struct {
		ArticleID string `db:"article_id"`
		TagID     string `db:"tag_id"`
		Source    string `db:"source"`
	}

	// FeedSource is a polling target.
	FeedSource struct {
		ID                   string     `db:"id"`
		Name                 string     `db:"name"`
		URL                  string     `db:"url"`
		FeedType             string     `db:"feed_type"`
		Active               bool       `db:"active"`
		FetchIntervalMinutes int        `db:"fetch_interval_minutes"`
		LastFetchedAt        *time.Time `db:"last_fetched_at"`
		CreatedAt            time.Time  `db:"created_at"`
	}

	// ScrapedArticle is the scraper's best-effort view of a page. Everything
	// except Title and RawContent may be absent.
	ScrapedArticle struct {
		URL           string
		Title         string
		ThumbnailURL  *string
		SourceName    *string
		SourceFavicon *string
		Author        *string
		PublishedAt   *time.Time
		RawContent    string
	}

	// EnrichmentResult is the validated output of the LLM enrichment step.
	EnrichmentResult struct {
		Headline string   `json:"headline"`
		Summary  string   `json:"summary"`
		Tags     []string `json:"tags"`
	}

	ArticleStore interface {
		Article(ctx context.Context, id string) (Article, error)
		// ArticleByURL returns ErrNotFound when the URL has not been ingested.
		ArticleByURL(ctx context.Context, url string) (Article, error)
		// InsertArticle returns a *DuplicateError if the URL already has a row.
		InsertArticle(ctx context.Context, article Article) (Article, error)
		InsertArticleTags(ctx context.Context, links []ArticleTag) error
	}

	TagStore interface {
		AllTags(ctx context.Context) ([]Tag, error)
	}

	FeedStore interface {
		FeedSource(ctx context.Context, id string) (FeedSource, error)
		FeedSourceByURL(ctx context.Context, url string) (FeedSource, error)
		ActiveFeedSources(ctx context.Context) ([]FeedSource, error)
		InsertFeedSource(ctx context.Context, src FeedSource) (FeedSource, error)
		// TouchFeedSource sets last_fetched_at, establishing the next
		// interval gate.
		TouchFeedSource(ctx context.Context, id string, at time.Time) error
	}

	// Store is the full persistence surface the pipeline needs.
	Store interface {
		ArticleStore
		TagStore
		FeedStore
	}
)

// Eligible reports whether the feed may be polled right now: it must be
// active and either never fetched or past its configured interval.
func (f FeedSource) Eligible(now time.Time) bool {
	if !f.Active {
		return false
	}
	if f.LastFetchedAt == nil {
		return true
	}

	return now.Sub(*f.LastFetchedAt) >= time.Duration(f.FetchIntervalMinutes)*time.Minute
}
