package scrape

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"github.com/thebrief/briefbot/internal/brief"
)

// Elements that never carry article content. Dropped before any text
// extraction so boilerplate doesn't end up in the body.
const strippedSelectors = "script, style, nav, header, footer, aside, " +
	".ad, .advertisement, .sidebar, .nav, .menu, .social-share, .comments, " +
	"[role='navigation'], [role='banner'], [role='complementary']"

// bodyCandidate is one step in the body-extraction cascade: a container
// selector and the minimum normalized text length that makes it acceptable.
type bodyCandidate struct {
	selector string
	minLen   int
}

// Evaluated in order, first acceptable candidate wins.
var bodyCandidates = []bodyCandidate{
	{"article", 200},
	{"[role='main']", 200},
	{".article-body", 200},
	{".article-content", 200},
	{".post-content", 200},
	{".entry-content", 200},
	{".story-body", 200},
	{"main", 200},
}

// minParagraphLen filters out nav crumbs and button labels when falling back
// to paragraph concatenation.
const minParagraphLen = 20

func extractArticle(doc *goquery.Document, pageURL string) (brief.ScrapedArticle, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return brief.ScrapedArticle{}, err
	}

	// Dates come out of the DOM before stripping; body text after.
	published := extractPublishedAt(doc)
	article := brief.ScrapedArticle{
		URL:           pageURL,
		Title:         extractTitle(doc),
		ThumbnailURL:  extractThumbnail(doc, pageURL),
		SourceName:    extractSourceName(doc, parsed),
		SourceFavicon: extractFavicon(doc, parsed),
		Author:        extractAuthor(doc),
		PublishedAt:   published,
	}

	doc.Find(strippedSelectors).Remove()
	article.RawContent = extractBody(doc)

	return article, nil
}

func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && og != "" {
		return og
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}

	return "Untitled"
}

func extractThumbnail(doc *goquery.Document, pageURL string) *string {
	if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && og != "" {
		return ptr(resolveURL(og, pageURL))
	}
	if tw, ok := doc.Find(`meta[name="twitter:image"]`).Attr("content"); ok && tw != "" {
		return ptr(resolveURL(tw, pageURL))
	}

	return nil
}

func extractSourceName(doc *goquery.Document, parsed *url.URL) *string {
	if site, ok := doc.Find(`meta[property="og:site_name"]`).Attr("content"); ok && site != "" {
		return ptr(site)
	}
	if host := strings.TrimPrefix(parsed.Hostname(), "www."); host != "" {
		return ptr(host)
	}

	return nil
}

func extractFavicon(doc *goquery.Document, parsed *url.URL) *string {
	origin := parsed.Scheme + "://" + parsed.Host

	if href, ok := doc.Find(`link[rel="icon"]`).Attr("href"); ok && href != "" {
		return ptr(resolveURL(href, origin))
	}
	if href, ok := doc.Find(`link[rel="shortcut icon"]`).Attr("href"); ok && href != "" {
		return ptr(resolveURL(href, origin))
	}

	return ptr(origin + "/favicon.ico")
}

func extractAuthor(doc *goquery.Document) *string {
	if a, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok && a != "" {
		return ptr(a)
	}
	if a, ok := doc.Find(`meta[property="article:author"]`).Attr("content"); ok && a != "" {
		return ptr(a)
	}
	if a := strings.TrimSpace(doc.Find(`[rel="author"]`).First().Text()); a != "" {
		return ptr(a)
	}
	if a := strings.TrimSpace(doc.Find(`.author, .byline, [class*='author']`).First().Text()); a != "" {
		return ptr(a)
	}

	return nil
}

func extractPublishedAt(doc *goquery.Document) *time.Time {
	for _, sel := range []string{
		`meta[property="article:published_time"]`,
		`meta[name="date"]`,
		`meta[name="publish-date"]`,
	} {
		if raw, ok := doc.Find(sel).Attr("content"); ok && raw != "" {
			if t := parseDate(raw); t != nil {
				return t
			}
		}
	}

	if t := publishedFromJSONLD(doc); t != nil {
		return t
	}

	if raw, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok && raw != "" {
		return parseDate(raw)
	}

	return nil
}

func publishedFromJSONLD(doc *goquery.Document) *time.Time {
	var found *time.Time
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw any
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return true
		}

		// A script may hold one object or an array of them.
		obj, ok := raw.(map[string]any)
		if !ok {
			arr, isArr := raw.([]any)
			if !isArr || len(arr) == 0 {
				return true
			}
			obj, ok = arr[0].(map[string]any)
			if !ok {
				return true
			}
		}

		date, ok := obj["datePublished"].(string)
		if !ok || date == "" {
			return true
		}

		found = parseDate(date)
		return found == nil
	})

	return found
}

func parseDate(raw string) *time.Time {
	t, err := dateparse.ParseAny(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}

	return &t
}

// extractBody walks the cascade: known content containers, then paragraph
// concatenation, then the whole page as a last resort.
func extractBody(doc *goquery.Document) string {
	for _, candidate := range bodyCandidates {
		el := doc.Find(candidate.selector).First()
		if el.Length() == 0 {
			continue
		}
		if text := normalizeSpace(el.Text()); len(text) > candidate.minLen {
			return text
		}
	}

	var paragraphs []string
	doc.Find("body p").Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); len(text) > minParagraphLen {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) > 0 {
		return strings.Join(paragraphs, "\n\n")
	}

	return normalizeSpace(doc.Find("body").Text())
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolveURL(href, base string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	resolved, err := baseURL.Parse(href)
	if err != nil {
		return href
	}

	return resolved.String()
}

func ptr(s string) *string {
	return &s
}
