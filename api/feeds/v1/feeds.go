package v1

import (
	"time"

	"github.com/thebrief/briefbot/api"
)

type CreateFeedRequest struct {
	Name                 string `json:"name"`
	URL                  string `json:"url"`
	FeedType             string `json:"feed_type,omitempty"`
	FetchIntervalMinutes int    `json:"fetch_interval_minutes,omitempty"`
}

type FeedSource struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	URL                  string     `json:"url"`
	FeedType             string     `json:"feed_type"`
	Active               bool       `json:"active"`
	FetchIntervalMinutes int        `json:"fetch_interval_minutes"`
	LastFetchedAt        *time.Time `json:"last_fetched_at"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Validate checks that the body (minus logic checks) is valid.
//
// Returns an api.Error if the request is invalid.
func (r CreateFeedRequest) Validate() error {
	errs := []api.ErrorDetail{}
	if r.Name == "" {
		errs = append(errs, api.ErrorDetail{
			Field: "name",
			Error: "name is required",
		})
	}
	if r.URL == "" {
		errs = append(errs, api.ErrorDetail{
			Field: "url",
			Error: "url is required",
		})
	}
	if r.FeedType != "" && r.FeedType != "rss" && r.FeedType != "atom" {
		errs = append(errs, api.ErrorDetail{
			Field: "feed_type",
			Error: "feed_type must be rss or atom",
		})
	}
	if r.FetchIntervalMinutes < 0 {
		errs = append(errs, api.ErrorDetail{
			Field: "fetch_interval_minutes",
			Error: "fetch_interval_minutes must not be negative",
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

// PollResult counts what happened to one feed's entries during a poll.
type PollResult struct {
	Ingested int `json:"ingested"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// PollAllResponse maps feed name to its poll outcome.
type PollAllResponse struct {
	Feeds map[string]PollResult `json:"feeds"`
}
