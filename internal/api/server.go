// Package api exposes the ingestion pipeline over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"

	ingestv1 "github.com/thebrief/briefbot/api/ingest/v1"
	"github.com/thebrief/briefbot/internal/brief"
	"github.com/thebrief/briefbot/internal/pipeline"
	"github.com/thebrief/briefbot/internal/poll"
	"github.com/thebrief/briefbot/internal/serverutil"
)

type (
	// Ingester is the slice of the pipeline the server drives.
	Ingester interface {
		IngestURL(ctx context.Context, url string, opts pipeline.Options) (brief.Article, error)
		IngestBatch(ctx context.Context, urls []string, opts pipeline.Options) (pipeline.BatchResult, error)
	}

	// Poller triggers feed polls on demand.
	Poller interface {
		PollFeed(ctx context.Context, feedSourceID string) (poll.Result, error)
		PollAll(ctx context.Context) (map[string]poll.Result, error)
	}

	// Store is the read surface the handlers need beyond the pipeline.
	Store interface {
		Article(ctx context.Context, id string) (brief.Article, error)
		ArticleTags(ctx context.Context, articleID string) ([]string, error)
		FeedSource(ctx context.Context, id string) (brief.FeedSource, error)
		InsertFeedSource(ctx context.Context, src brief.FeedSource) (brief.FeedSource, error)
	}

	// Server handles ingestion requests: one-off articles, batches, feed
	// management, and manual poll triggers.
	Server struct {
		*http.Server

		store    Store
		ingester Ingester
		poller   Poller

		fetchClient *http.Client
		readerCache *lru.Cache[string, ingestv1.ReaderResponse]
	}

	ServerConfig struct {
		Port       int
		CorsOrigin string
	}
)

func NewServer(config ServerConfig, store Store, ingester Ingester, poller Poller) *Server {
	var (
		r        = serverutil.ErrRouter{Router: mux.NewRouter()}
		cache, _ = lru.New[string, ingestv1.ReaderResponse](1024)
	)

	srvr := Server{
		store:    store,
		ingester: ingester,
		poller:   poller,
		fetchClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		readerCache: cache,
		Server: &http.Server{
			Addr:        fmt.Sprintf(":%d", config.Port),
			ReadTimeout: 5 * time.Second,
			// Writes wait on scrapes and model calls, so the ceiling is high.
			WriteTimeout: 120 * time.Second,
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{config.CorsOrigin}),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type"}),
			)(r),
		},
	}

	r.Use(serverutil.AccessLogMiddleware) // Log everything

	r.HandleFuncE("/v1/articles", srvr.postArticle).Methods(http.MethodPost)
	r.HandleFuncE("/v1/articles/batch", srvr.postArticlesBatch).Methods(http.MethodPost)
	r.HandleFuncE("/v1/articles/{articleID}", srvr.getArticle).Methods(http.MethodGet)
	r.HandleFuncE("/v1/articles/{articleID}/reader", srvr.getArticleReader).Methods(http.MethodGet)

	r.HandleFuncE("/v1/feeds", srvr.postFeed).Methods(http.MethodPost)
	r.HandleFuncE("/v1/feeds/poll", srvr.postPollAll).Methods(http.MethodPost)
	r.HandleFuncE("/v1/feeds/{feedID}/poll", srvr.postPollFeed).Methods(http.MethodPost)

	return &srvr
}
