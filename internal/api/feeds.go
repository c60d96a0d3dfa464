package api

import (
	"net/http"

	"github.com/gorilla/mux"

	feedsv1 "github.com/thebrief/briefbot/api/feeds/v1"
	"github.com/thebrief/briefbot/internal/brief"
	"github.com/thebrief/briefbot/internal/serverutil"
)

func apiFeedSource(f brief.FeedSource) feedsv1.FeedSource {
	return feedsv1.FeedSource{
		ID:                   f.ID,
		Name:                 f.Name,
		URL:                  f.URL,
		FeedType:             f.FeedType,
		Active:               f.Active,
		FetchIntervalMinutes: f.FetchIntervalMinutes,
		LastFetchedAt:        f.LastFetchedAt,
		CreatedAt:            f.CreatedAt,
	}
}

func (s Server) postFeed(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	body, err := serverutil.DecodeValid[feedsv1.CreateFeedRequest](r.Body)
	if err != nil {
		return err
	}

	src, err := s.store.InsertFeedSource(ctx, brief.FeedSource{
		Name:                 body.Name,
		URL:                  body.URL,
		FeedType:             body.FeedType,
		Active:               true,
		FetchIntervalMinutes: body.FetchIntervalMinutes,
	})
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusCreated, apiFeedSource(src))
}

func (s Server) postPollFeed(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx    = r.Context()
		feedID = mux.Vars(r)["feedID"]
	)

	result, err := s.poller.PollFeed(ctx, feedID)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, feedsv1.PollResult{
		Ingested: result.Ingested,
		Skipped:  result.Skipped,
		Failed:   result.Failed,
	})
}

func (s Server) postPollAll(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	results, err := s.poller.PollAll(ctx)
	if err != nil {
		return err
	}

	resp := feedsv1.PollAllResponse{
		Feeds: make(map[string]feedsv1.PollResult, len(results)),
	}
	for name, result := range results {
		resp.Feeds[name] = feedsv1.PollResult{
			Ingested: result.Ingested,
			Skipped:  result.Skipped,
			Failed:   result.Failed,
		}
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}
