package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRenderer returns canned HTML and records whether it was invoked.
type fakeRenderer struct {
	html   string
	err    error
	called bool
}

func (f *fakeRenderer) Render(_ context.Context, _ string) (string, error) {
	f.called = true
	return f.html, f.err
}

func pageWithBody(body string) string {
	return `<html><head><title>Test Page</title></head><body><article>` + body + `</article></body></html>`
}

func TestLightScraper(t *testing.T) {
	body := strings.Repeat("static page content that is perfectly extractable. ", 10)

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(pageWithBody(body)))
	}))
	defer srv.Close()

	got, err := NewLight(srv.Client()).Scrape(context.Background(), srv.URL+"/post")
	require.NoError(t, err)

	assert.Equal(t, "Test Page", got.Title)
	assert.Equal(t, strings.TrimSpace(body), got.RawContent)
	assert.Equal(t, userAgent, gotUA)
}

func TestLightScraper_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewLight(srv.Client()).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestFallbackScraper_StaticSufficient(t *testing.T) {
	body := strings.Repeat("plenty of static content on this page already. ", 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pageWithBody(body)))
	}))
	defer srv.Close()

	renderer := &fakeRenderer{}
	got, err := NewFallback(NewLight(srv.Client()), renderer).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, strings.TrimSpace(body), got.RawContent)
	assert.False(t, renderer.called, "renderer must not run when static content suffices")
}

func TestFallbackScraper_EscalatesOnThinPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pageWithBody("thin shell, content arrives via js")))
	}))
	defer srv.Close()

	rendered := strings.Repeat("the real content only exists after rendering. ", 10)
	renderer := &fakeRenderer{html: pageWithBody(rendered)}

	got, err := NewFallback(NewLight(srv.Client()), renderer).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.True(t, renderer.called)
	assert.Equal(t, strings.TrimSpace(rendered), got.RawContent)
}

func TestFallbackScraper_KeepsStaticWhenRenderFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pageWithBody("thin shell, content arrives via js")))
	}))
	defer srv.Close()

	renderer := &fakeRenderer{err: errors.New("chrome exploded")}

	got, err := NewFallback(NewLight(srv.Client()), renderer).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "thin shell, content arrives via js", got.RawContent)
}

func TestFallbackScraper_KeepsLongerResult(t *testing.T) {
	// The rendered page comes back shorter than the static one; the static
	// result wins.
	static := "thin shell, content arrives via js but this static text is longer"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pageWithBody(static)))
	}))
	defer srv.Close()

	renderer := &fakeRenderer{html: pageWithBody("rendered but shorter")}

	got, err := NewFallback(NewLight(srv.Client()), renderer).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, static, got.RawContent)
}

func TestFallbackScraper_BothFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	renderer := &fakeRenderer{err: errors.New("chrome exploded")}

	_, err := NewFallback(NewLight(srv.Client()), renderer).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render fallback failed")
}

func TestFallbackScraper_NoRenderer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pageWithBody("thin shell, content arrives via js")))
	}))
	defer srv.Close()

	got, err := NewFallback(NewLight(srv.Client()), nil).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "thin shell, content arrives via js", got.RawContent)
}
