package api

import (
	"errors"
	"net/http"
	"net/url"

	readability "github.com/go-shiori/go-readability"
	"github.com/gorilla/mux"
	"github.com/sym01/htmlsanitizer"

	ingestv1 "github.com/thebrief/briefbot/api/ingest/v1"
	"github.com/thebrief/briefbot/internal/brief"
	bberrs "github.com/thebrief/briefbot/internal/errors"
	"github.com/thebrief/briefbot/internal/pipeline"
	"github.com/thebrief/briefbot/internal/serverutil"
)

func apiArticle(a brief.Article) ingestv1.Article {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}

	return ingestv1.Article{
		ID:            a.ID,
		URL:           a.URL,
		Title:         a.Title,
		Headline:      a.Headline,
		Summary:       a.Summary,
		ThumbnailURL:  a.ThumbnailURL,
		SourceName:    a.SourceName,
		SourceFavicon: a.SourceFavicon,
		Author:        a.Author,
		PublishedAt:   a.PublishedAt,
		IngestedBy:    a.IngestedBy,
		IngestedAt:    a.IngestedAt,
		Status:        a.Status,
		Tags:          tags,
	}
}

func (s Server) postArticle(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	body, err := serverutil.DecodeValid[ingestv1.IngestRequest](r.Body)
	if err != nil {
		return err
	}

	article, err := s.ingester.IngestURL(ctx, body.URL, pipeline.Options{
		SkipEnrichment: body.SkipEnrichment,
		ManualContent:  body.ManualContent,
		IngestedBy:     body.IngestedBy,
	})
	if errors.Is(err, pipeline.ErrScrapeFailed) {
		return bberrs.E(err, http.StatusUnprocessableEntity)
	}
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusCreated, apiArticle(article))
}

func (s Server) postArticlesBatch(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	body, err := serverutil.DecodeValid[ingestv1.BatchRequest](r.Body)
	if err != nil {
		return err
	}

	result, err := s.ingester.IngestBatch(ctx, body.URLs, pipeline.Options{
		SkipEnrichment: body.SkipEnrichment,
		IngestedBy:     body.IngestedBy,
	})
	if err != nil {
		return err
	}

	resp := ingestv1.BatchResponse{
		Success:  make([]ingestv1.Article, 0, len(result.Success)),
		Failures: make([]ingestv1.BatchFailure, 0, len(result.Failures)),
	}
	for _, a := range result.Success {
		resp.Success = append(resp.Success, apiArticle(a))
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, ingestv1.BatchFailure{URL: f.URL, Error: f.Error})
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

func (s Server) getArticle(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx       = r.Context()
		articleID = mux.Vars(r)["articleID"]
	)

	article, err := s.store.Article(ctx, articleID)
	if err != nil {
		return err
	}

	tags, err := s.store.ArticleTags(ctx, articleID)
	if err != nil {
		return err
	}
	article.Tags = tags

	return serverutil.WriteJSON(w, http.StatusOK, apiArticle(article))
}

// getArticleReader refetches the live page and strips it down to readable,
// sanitized HTML. Results are cached since the upstream page rarely changes.
func (s Server) getArticleReader(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx       = r.Context()
		articleID = mux.Vars(r)["articleID"]
	)

	article, err := s.store.Article(ctx, articleID)
	if err != nil {
		return err
	}

	if resp, ok := s.readerCache.Get(articleID); ok {
		return serverutil.WriteJSON(w, http.StatusOK, resp)
	}

	u, err := url.Parse(article.URL)
	if err != nil {
		return bberrs.E(err, http.StatusUnprocessableEntity)
	}

	resp, err := s.fetchClient.Get(article.URL)
	if err != nil {
		return bberrs.E(err, http.StatusBadGateway)
	}
	defer resp.Body.Close()

	// Strip it for readability and sanitize
	parser := readability.NewParser()
	parsed, err := parser.Parse(resp.Body, u)
	if err != nil {
		return err
	}

	sanitizer := htmlsanitizer.NewHTMLSanitizer()
	contents, err := sanitizer.SanitizeString(parsed.Content)
	if err != nil {
		return err
	}

	ret := ingestv1.ReaderResponse{
		ID:      article.ID,
		URL:     article.URL,
		Title:   article.Title,
		Content: contents,
	}
	s.readerCache.Add(article.ID, ret)

	return serverutil.WriteJSON(w, http.StatusOK, ret)
}
