// Package scrape fetches web pages and extracts article metadata and body
// text from them.
//
// The cheap path parses static HTML. Pages that render their content with
// JavaScript come back nearly empty from that, so a headless-browser
// [Renderer] can be attached as a fallback; it is strictly more expensive
// and only runs when static extraction yields too little text.
package scrape

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/thebrief/briefbot/internal/brief"
)

const userAgent = "TheBriefBot/1.0 (+https://thebrief.agency; content aggregation)"

// renderThreshold is the body length under which a page is assumed to be
// JS-rendered and worth re-fetching through the renderer.
const renderThreshold = 200

// Renderer produces fully-rendered HTML for a URL, typically via a headless
// browser.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// LightScraper fetches a URL and extracts an article from the static HTML.
type LightScraper struct {
	client *http.Client
}

func NewLight(client *http.Client) *LightScraper {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return &LightScraper{client: client}
}

func (s *LightScraper) Scrape(ctx context.Context, url string) (brief.ScrapedArticle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return brief.ScrapedArticle{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return brief.ScrapedArticle{}, fmt.Errorf("error fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return brief.ScrapedArticle{}, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	return extract(resp.Body, url)
}

// FallbackScraper runs the light scraper first and escalates to the renderer
// when the extracted body is too short to be real content. Whichever attempt
// produced the longer body wins. It never retries; retrying is the caller's
// concern.
type FallbackScraper struct {
	light    *LightScraper
	renderer Renderer
}

func NewFallback(light *LightScraper, renderer Renderer) *FallbackScraper {
	return &FallbackScraper{light: light, renderer: renderer}
}

func (s *FallbackScraper) Scrape(ctx context.Context, url string) (brief.ScrapedArticle, error) {
	article, lightErr := s.light.Scrape(ctx, url)
	if lightErr == nil && len(article.RawContent) >= renderThreshold {
		return article, nil
	}

	if s.renderer == nil {
		return article, lightErr
	}

	html, err := s.renderer.Render(ctx, url)
	if err != nil {
		if lightErr != nil {
			return brief.ScrapedArticle{}, fmt.Errorf("light scrape failed (%s) and render fallback failed: %w", lightErr, err)
		}

		// Keep the thin static result rather than failing outright.
		slog.Warn("render fallback failed, keeping static result", "url", url, "error", err)
		return article, nil
	}

	rendered, err := ExtractHTML(html, url)
	if err != nil {
		if lightErr != nil {
			return brief.ScrapedArticle{}, fmt.Errorf("error extracting rendered page: %w", err)
		}
		return article, nil
	}

	if lightErr != nil || len(rendered.RawContent) > len(article.RawContent) {
		return rendered, nil
	}

	return article, nil
}

// ExtractHTML runs the full extraction pipeline over an HTML document that
// has already been fetched or rendered.
func ExtractHTML(html, pageURL string) (brief.ScrapedArticle, error) {
	return extract(strings.NewReader(html), pageURL)
}

func extract(r io.Reader, pageURL string) (brief.ScrapedArticle, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return brief.ScrapedArticle{}, fmt.Errorf("error parsing html: %w", err)
	}

	return extractArticle(doc, pageURL)
}
