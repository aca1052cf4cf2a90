// Command api serves the submission and query HTTP surface (§6) backed by
// MongoDB, wiring the control plane's result consumers in the background
// so one process both answers requests and reconciles scrape outcomes.
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

	"github.com/Harvey-AU/url-content-fetcher/internal/api"
	"github.com/Harvey-AU/url-content-fetcher/internal/bus"
	"github.com/Harvey-AU/url-content-fetcher/internal/config"
	"github.com/Harvey-AU/url-content-fetcher/internal/controlplane"
	"github.com/Harvey-AU/url-content-fetcher/internal/observability"
	"github.com/Harvey-AU/url-content-fetcher/internal/store"
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
		ServiceName:    "url-content-fetcher-api",
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

	repo, closeRepo, err := store.Connect(ctx, cfg.MongoURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer func() { _ = closeRepo(context.Background()) }()

	if err := repo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure MongoDB indexes")
	}

	queueBus, err := bus.Dial(ctx, cfg.RabbitMQURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer func() { _ = queueBus.Close() }()

	cp := &controlplane.ControlPlane{
		Repo:                repo,
		Bus:                 queueBus,
		ScrapeInterval:      cfg.ScrapeInterval,
		MaxRetries:          cfg.MaxRetries,
		StaleRequestTimeout: cfg.StaleRequestTimeout,
	}

	go func() {
		if err := cp.RunResultConsumers(ctx); err != nil {
			log.Error().Err(err).Msg("Result consumers stopped")
		}
	}()
	go cp.RunStalePendingSweeper(ctx, tickEvery(5*time.Minute))

	mux := http.NewServeMux()
	api.NewHandler(cp).RegisterRoutes(mux)

	limiter := newRateLimiter(10, 20)

	var handler http.Handler = mux
	handler = api.LoggingMiddleware(handler)
	handler = api.RequestIDMiddleware(handler)
	handler = api.SecurityHeadersMiddleware(handler)
	handler = api.CORSMiddleware(handler)
	handler = limiter.Middleware(handler)
	handler = observability.WrapHandler(handler, providers)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server forced to shutdown")
		}
		close(done)
	}()

	log.Info().Str("port", cfg.Port).Msg("Starting API server")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("API server error")
	}

	<-done
	log.Info().Msg("API server stopped")
}

// serveMetrics exposes the Prometheus registry on its own listener so
// scrapers never compete with the API server's middleware chain.
func serveMetrics(addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	log.Info().Str("address", addr).Msg("Starting metrics server")
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server stopped")
	}
}

// tickEvery returns a channel factory RunStalePendingSweeper can call on
// each loop iteration without owning a ticker itself.
func tickEvery(d time.Duration) func() <-chan struct{} {
	ticker := time.NewTicker(d)
	ch := make(chan struct{})
	go func() {
		for range ticker.C {
			ch <- struct{}{}
		}
	}()
	return func() <-chan struct{} { return ch }
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
			Str("service", "url-content-fetcher-api").
			Logger()
	}
}
