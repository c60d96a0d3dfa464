package v1

import (
	"time"

	"github.com/thebrief/briefbot/api"
)

type IngestRequest struct {
	URL string `json:"url"`
	// ManualContent is pasted article text for pages the scraper cannot
	// reach, like hard paywalls.
	ManualContent  string `json:"manual_content,omitempty"`
	SkipEnrichment bool   `json:"skip_enrichment,omitempty"`
	IngestedBy     string `json:"ingested_by,omitempty"`
}

// Validate checks that the body (minus logic checks) is valid.
//
// Returns an api.Error if the request is invalid.
func (r IngestRequest) Validate() error {
	errs := []api.ErrorDetail{}
	if r.URL == "" {
		errs = append(errs, api.ErrorDetail{
			Field: "url",
			Error: "url is required",
		})
	}
	if len(errs) > 0 {
		return api.Error{
			Reason:  "invalid_request",
			Message: "request was invalid",
			Details: errs,
		}
	}

	return nil
}

type BatchRequest struct {
	URLs           []string `json:"urls"`
	SkipEnrichment bool     `json:"skip_enrichment,omitempty"`
	IngestedBy     string   `json:"ingested_by,omitempty"`
}

const maxBatchSize = 50

// Validate checks that the body (minus logic checks) is valid.
//
// Returns an api.Error if the request is invalid.
func (r BatchRequest) Validate() error {
	errs := []api.ErrorDetail{}
	if len(r.URLs) == 0 {
		errs = append(errs, api.ErrorDetail{
			Field: "urls",
			Error: "at least one url is required",
		})
	}
	if len(r.URLs) > maxBatchSize {
		errs = append(errs, api.ErrorDetail{
			Field: "urls",
			Error: "too many urls in one batch",
		})
	}
	for _, u := range r.URLs {
		if u == "" {
			errs = append(errs, api.ErrorDetail{
				Field: "urls",
				Error: "urls must not be empty",
			})
			break
		}
	}
	if len(errs) > 0 {
		return api.Error{
			Reason:  "invalid_request",
			Message: "request was invalid",
			Details: errs,
		}
	}

	return nil
}

type Article struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	Title         string     `json:"title"`
	Headline      *string    `json:"headline"`
	Summary       *string    `json:"summary"`
	ThumbnailURL  *string    `json:"thumbnail_url"`
	SourceName    *string    `json:"source_name"`
	SourceFavicon *string    `json:"source_favicon"`
	Author        *string    `json:"author"`
	PublishedAt   *time.Time `json:"published_at"`
	IngestedBy    string     `json:"ingested_by"`
	IngestedAt    time.Time  `json:"ingested_at"`
	Status        string     `json:"status"`
	Tags          []string   `json:"tags"`
}

type BatchFailure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

type BatchResponse struct {
	Success  []Article      `json:"success"`
	Failures []BatchFailure `json:"failures"`
}

// ReaderResponse carries the sanitized reader-view HTML for an article.
type ReaderResponse struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}
