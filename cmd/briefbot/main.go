package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jmoiron/sqlx"
	"github.com/oklog/run"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"

	"github.com/thebrief/briefbot/internal/api"
	"github.com/thebrief/briefbot/internal/enrich"
	"github.com/thebrief/briefbot/internal/logger"
	"github.com/thebrief/briefbot/internal/migrations"
	"github.com/thebrief/briefbot/internal/pipeline"
	"github.com/thebrief/briefbot/internal/poll"
	"github.com/thebrief/briefbot/internal/scrape"
	"github.com/thebrief/briefbot/internal/sqlite"
)

type config struct {
	Database string `env:"DATABASE, required"`

	Port       int    `env:"PORT, default=4444"`
	CorsOrigin string `env:"CORS_ORIGIN, default=*"`
	LogFormat  string `env:"LOG_FORMAT, default=text"`

	// AnthropicAPIKey enables enrichment; without it articles are stored raw.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`

	// RenderFallback turns on headless Chrome for JS-heavy pages. Requires a
	// Chrome binary on the host.
	RenderFallback bool          `env:"RENDER_FALLBACK, default=false"`
	RenderTimeout  time.Duration `env:"RENDER_TIMEOUT, default=30s"`

	// PollInterval is how often the background loop sweeps all active feeds.
	// Per-feed gating still applies on top of this.
	PollInterval time.Duration `env:"POLL_INTERVAL, default=15m"`

	// RequestDelay paces scrapes of third-party origins.
	RequestDelay time.Duration `env:"REQUEST_DELAY, default=1500ms"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	logger.New(cfg.LogFormat)

	// Connect to the sqlite db
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_txlock=immediate&_journal_mode=WAL&_busy_timeout=5000", cfg.Database))
	if err != nil {
		log.Fatalf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Run all migrations
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
	poller := poll.New(repo, pipe, limiter)

	srvr := api.NewServer(api.ServerConfig{
		Port:       cfg.Port,
		CorsOrigin: cfg.CorsOrigin,
	}, repo, pipe, poller)

	var g run.Group

	g.Add(func() error {
		slog.Info("starting server", "port", cfg.Port)
		if err := srvr.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srvr.Shutdown(shutdownCtx)
	})

	g.Add(func() error {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := poller.PollAll(ctx); err != nil {
					slog.Error("error polling feeds", "error", err)
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}, func(error) {
		cancel()
	})

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	if err := g.Run(); err != nil {
		var sig run.SignalError
		if errors.As(err, &sig) {
			slog.Info("shutting down", "signal", sig.Signal)
			return
		}
		log.Fatalf("error running: %s", err)
	}
}
