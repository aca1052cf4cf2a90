// Command scraper runs the worker pool (§4.6/§5): CONCURRENT_SCRAPERS
// consumers of scrape.requests sharing one headless Chrome instance,
// publishing Started/Result/Failure back onto the bus.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Harvey-AU/url-content-fetcher/internal/bus"
	"github.com/Harvey-AU/url-content-fetcher/internal/config"
	"github.com/Harvey-AU/url-content-fetcher/internal/observability"
	"github.com/Harvey-AU/url-content-fetcher/internal/render"
	"github.com/Harvey-AU/url-content-fetcher/internal/worker"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Env,
			TracesSampleRate: 0.2,
			EnableTracing:    true,
			Debug:            cfg.Env == "development",
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialise Sentry")
		}
		defer sentry.Flush(2 * time.Second)
	} else {
		log.Warn().Msg("Sentry not initialised: SENTRY_DSN not provided")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := observability.Init(ctx, observability.Config{
		Enabled:        cfg.OTLPEndpoint != "",
		ServiceName:    "url-content-fetcher-scraper",
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		MetricsAddress: cfg.MetricsAddress,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise observability")
	}
	if providers != nil {
		defer func() { _ = providers.Shutdown(context.Background()) }()
		go serveMetrics(cfg.MetricsAddress, providers.MetricsHandler)
	}

	queueBus, err := bus.Dial(ctx, cfg.RabbitMQURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer func() { _ = queueBus.Close() }()

	browser, err := render.Launch(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to launch headless Chrome")
	}
	defer browser.Close()

	pool := &worker.Pool{
		Bus:         queueBus,
		Browser:     browser,
		Config:      cfg.WorkerConfig(),
		Concurrency: cfg.ConcurrentScrapers,
	}

	log.Info().Int("concurrency", cfg.ConcurrentScrapers).Msg("Starting scraper pool")
	if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("Worker pool stopped with error")
	}

	log.Info().Msg("Scraper stopped")
}

// serveMetrics exposes the Prometheus registry on its own listener,
// independent of any request-serving path this binary has.
func serveMetrics(addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	log.Info().Str("address", addr).Msg("Starting metrics server")
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server stopped")
	}
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Str("service", "url-content-fetcher-scraper").
			Logger()
	}
}
