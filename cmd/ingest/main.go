// One-shot ingestion runner: poll every active feed once, or ingest the URLs
// given as arguments. Useful from cron or for backfills without the daemon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"

	"github.com/thebrief/briefbot/internal/enrich"
	"github.com/thebrief/briefbot/internal/logger"
	"github.com/thebrief/briefbot/internal/migrations"
	"github.com/thebrief/briefbot/internal/pipeline"
	"github.com/thebrief/briefbot/internal/poll"
	"github.com/thebrief/briefbot/internal/scrape"
	"github.com/thebrief/briefbot/internal/sqlite"
)

type config struct {
	Database  string `env:"DATABASE, required"`
	LogFormat string `env:"LOG_FORMAT, default=text"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`

	RenderFallback bool          `env:"RENDER_FALLBACK, default=false"`
	RenderTimeout  time.Duration `env:"RENDER_TIMEOUT, default=30s"`
	RequestDelay   time.Duration `env:"REQUEST_DELAY, default=1500ms"`

	SkipEnrichment bool `env:"SKIP_ENRICHMENT, default=false"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	logger.New(cfg.LogFormat)

	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_txlock=immediate&_journal_mode=WAL&_busy_timeout=5000", cfg.Database))
	if err != nil {
		log.Fatalf("error opening database: %s", err)
	}
	defer dbx.Close()

	if err := migrations.Run(dbx); err != nil {
		log.Fatalf("error running migrations: %s", err)
	}

	repo := sqlite.New(dbx)

	var renderer scrape.Renderer
	if cfg.RenderFallback {
		renderer = scrape.NewChromeRenderer(cfg.RenderTimeout)
	}
	scraper := scrape.NewFallback(scrape.NewLight(nil), renderer)

	var enricher pipeline.Enricher
	if cfg.AnthropicAPIKey != "" {
		enricher = enrich.New(anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey)))
	} else {
		slog.Warn("no anthropic api key configured, enrichment disabled")
	}

	limiter := rate.NewLimiter(rate.Every(cfg.RequestDelay), 1)
	pipe := pipeline.New(repo, scraper, enricher, limiter)

	var out any
	if urls := os.Args[1:]; len(urls) > 0 {
		result, err := pipe.IngestBatch(ctx, urls, pipeline.Options{SkipEnrichment: cfg.SkipEnrichment})
		if err != nil {
			log.Fatalf("error ingesting batch: %s", err)
		}
		out = result
	} else {
		results, err := poll.New(repo, pipe, limiter).PollAll(ctx)
		if err != nil {
			log.Fatalf("error polling feeds: %s", err)
		}
		out = results
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("error encoding results: %s", err)
	}
}
