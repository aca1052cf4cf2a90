// Package observability configures OpenTelemetry tracing and Prometheus
// metrics for the fetcher, grounded on the crawler's observability
// package but re-instrumented for the scrape pipeline instead of the
// crawl/job pipeline.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls observability initialisation.
type Config struct {
	Enabled        bool
	ServiceName    string
	Environment    string
	OTLPEndpoint   string
	OTLPHeaders    map[string]string
	OTLPInsecure   bool
	MetricsAddress string
}

// Providers exposes configured telemetry providers.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Propagator     propagation.TextMapPropagator
	MetricsHandler http.Handler
	Shutdown       func(ctx context.Context) error
	Config         Config
}

var (
	initOnce sync.Once

	scrapeTracer trace.Tracer

	scrapeAttemptDuration metric.Float64Histogram
	scrapeAttemptTotal    metric.Int64Counter
	scrapeRetryCounter    metric.Int64Counter
	scrapeFailureCounter  metric.Int64Counter

	submitBatchTotal   metric.Int64Counter
	submitSkippedTotal metric.Int64Counter
	submitQueuedTotal  metric.Int64Counter

	poolConcurrentAttempts metric.Int64UpDownCounter
	poolCapacityGauge      metric.Int64Gauge

	stalePendingSweptCounter    metric.Int64Counter
	inconsistenciesFixedCounter metric.Int64Counter
)

// Init configures tracing and metrics exporters. When cfg.Enabled is false
// the function is a no-op.
func Init(ctx context.Context, cfg Config) (*Providers, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "url-content-fetcher"
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	var spanExporter sdktrace.SpanExporter
	if cfg.OTLPEndpoint != "" {
		clientOpts := []otlptracehttp.Option{
			getOTLPEndpointOption(cfg.OTLPEndpoint),
		}
		if cfg.OTLPInsecure {
			clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
		}
		if len(cfg.OTLPHeaders) > 0 {
			clientOpts = append(clientOpts, otlptracehttp.WithHeaders(cfg.OTLPHeaders))
		}

		exp, err := otlptracehttp.New(ctx, clientOpts...)
		if err != nil {
			fmt.Printf("WARN: Failed to create OTLP trace exporter (traces disabled): %v\n", err)
			fmt.Printf("WARN: Endpoint: %s\n", cfg.OTLPEndpoint)
		} else {
			spanExporter = exp
			fmt.Printf("INFO: OTLP trace exporter initialised successfully for endpoint: %s\n", cfg.OTLPEndpoint)
		}
	}

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}
	if spanExporter != nil {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(spanExporter))
	}

	tracerProvider := sdktrace.NewTracerProvider(traceOpts...)
	otel.SetTracerProvider(tracerProvider)

	prop := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(prop)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	promExporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, fmt.Errorf("create Prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	)
	otel.SetMeterProvider(meterProvider)

	initOnce.Do(func() {
		scrapeTracer = tracerProvider.Tracer("url-content-fetcher/worker")
		_ = initScrapeInstruments(meterProvider)
		_ = initSubmitInstruments(meterProvider)
		_ = initPoolInstruments(meterProvider)
		_ = initMaintenanceInstruments(meterProvider)
	})

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		var allErr error
		if err := meterProvider.Shutdown(ctx); err != nil {
			allErr = errors.Join(allErr, fmt.Errorf("metric provider shutdown: %w", err))
		}
		if err := tracerProvider.Shutdown(ctx); err != nil {
			allErr = errors.Join(allErr, fmt.Errorf("trace provider shutdown: %w", err))
		}
		return allErr
	}

	return &Providers{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
		Propagator:     prop,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Shutdown:       shutdown,
		Config:         cfg,
	}, nil
}

func getOTLPEndpointOption(endpoint string) otlptracehttp.Option {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return otlptracehttp.WithEndpointURL(endpoint)
	}
	return otlptracehttp.WithEndpoint(endpoint)
}

// WrapHandler applies OpenTelemetry instrumentation to an http.Handler when
// the providers are active.
func WrapHandler(handler http.Handler, prov *Providers) http.Handler {
	if prov == nil || prov.TracerProvider == nil {
		return handler
	}

	options := []otelhttp.Option{
		otelhttp.WithTracerProvider(prov.TracerProvider),
		otelhttp.WithPropagators(prov.Propagator),
		otelhttp.WithMeterProvider(prov.MeterProvider),
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		}),
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	}

	return otelhttp.NewHandler(handler, "http.server", options...)
}

func initScrapeInstruments(meterProvider *sdkmetric.MeterProvider) error {
	if meterProvider == nil {
		return nil
	}
	meter := meterProvider.Meter("url-content-fetcher/worker")

	var err error
	scrapeAttemptDuration, err = meter.Float64Histogram(
		"fetcher.scrape.attempt.duration_ms",
		metric.WithUnit("ms"),
		metric.WithDescription("Time taken for one scrape attempt, success or failure"),
	)
	if err != nil {
		return err
	}

	scrapeAttemptTotal, err = meter.Int64Counter(
		"fetcher.scrape.attempt.total",
		metric.WithDescription("Scrape attempts processed by outcome"),
	)
	if err != nil {
		return err
	}

	scrapeRetryCounter, err = meter.Int64Counter(
		"fetcher.scrape.retries_total",
		metric.WithDescription("Number of scrape attempts that failed with a retryable classification"),
	)
	if err != nil {
		return err
	}

	scrapeFailureCounter, err = meter.Int64Counter(
		"fetcher.scrape.failures_total",
		metric.WithDescription("Number of scrape attempts that failed with a non-retryable classification"),
	)
	return err
}

func initSubmitInstruments(meterProvider *sdkmetric.MeterProvider) error {
	if meterProvider == nil {
		return nil
	}
	meter := meterProvider.Meter("url-content-fetcher/submit")

	var err error
	submitBatchTotal, err = meter.Int64Counter(
		"fetcher.submit.batch_total",
		metric.WithDescription("Number of submit batches received"),
	)
	if err != nil {
		return err
	}

	submitSkippedTotal, err = meter.Int64Counter(
		"fetcher.submit.skipped_total",
		metric.WithDescription("Number of submitted URLs skipped (dedup, already queued, error)"),
	)
	if err != nil {
		return err
	}

	submitQueuedTotal, err = meter.Int64Counter(
		"fetcher.submit.queued_total",
		metric.WithDescription("Number of submitted URLs that resulted in a new scrape request"),
	)
	return err
}

func initPoolInstruments(meterProvider *sdkmetric.MeterProvider) error {
	if meterProvider == nil {
		return nil
	}
	meter := meterProvider.Meter("url-content-fetcher/pool")

	var err error
	poolConcurrentAttempts, err = meter.Int64UpDownCounter(
		"fetcher.pool.concurrent_attempts",
		metric.WithDescription("Current number of scrape attempts in flight across workers"),
	)
	if err != nil {
		return err
	}

	poolCapacityGauge, err = meter.Int64Gauge(
		"fetcher.pool.capacity",
		metric.WithDescription("Configured CONCURRENT_SCRAPERS capacity"),
	)
	return err
}

func initMaintenanceInstruments(meterProvider *sdkmetric.MeterProvider) error {
	if meterProvider == nil {
		return nil
	}
	meter := meterProvider.Meter("url-content-fetcher/maintenance")

	var err error
	stalePendingSweptCounter, err = meter.Int64Counter(
		"fetcher.maintenance.stale_pending_swept_total",
		metric.WithDescription("Number of PENDING records marked FAILED by the stale-pending sweep"),
	)
	if err != nil {
		return err
	}

	inconsistenciesFixedCounter, err = meter.Int64Counter(
		"fetcher.maintenance.inconsistencies_fixed_total",
		metric.WithDescription("Number of records repaired by the invariant-consistency sweep"),
	)
	return err
}

// ScrapeSpanInfo describes the attributes used when starting a scrape
// attempt span.
type ScrapeSpanInfo struct {
	RecordID   string
	URL        string
	RetryCount int
}

// StartScrapeSpan starts a span for one scrape attempt.
func StartScrapeSpan(ctx context.Context, info ScrapeSpanInfo) (context.Context, trace.Span) {
	t := scrapeTracer
	if t == nil {
		t = otel.Tracer("url-content-fetcher/worker")
	}

	attrs := []attribute.KeyValue{
		attribute.String("record.id", info.RecordID),
		attribute.String("record.url", info.URL),
		attribute.Int("record.retry_count", info.RetryCount),
	}

	return t.Start(ctx, "worker.scrape_attempt", trace.WithAttributes(attrs...))
}

// ScrapeAttemptMetrics describes one completed scrape attempt, from the
// worker's point of view. The worker classifies a failure as retryable or
// not but never decides whether retries are exhausted; that call belongs
// to the control plane.
type ScrapeAttemptMetrics struct {
	Outcome  string // "success", "retryable", "non_retryable"
	Duration time.Duration
}

// RecordScrapeAttempt emits scrape attempt metrics.
func RecordScrapeAttempt(ctx context.Context, m ScrapeAttemptMetrics) {
	if scrapeAttemptDuration != nil {
		scrapeAttemptDuration.Record(ctx, float64(m.Duration.Milliseconds()),
			metric.WithAttributes(attribute.String("outcome", m.Outcome)))
	}
	if scrapeAttemptTotal != nil {
		scrapeAttemptTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", m.Outcome)))
	}
	switch m.Outcome {
	case "retryable":
		if scrapeRetryCounter != nil {
			scrapeRetryCounter.Add(ctx, 1)
		}
	case "non_retryable":
		if scrapeFailureCounter != nil {
			scrapeFailureCounter.Add(ctx, 1)
		}
	}
}

// RecordSubmitBatch emits submit-endpoint metrics for one batch.
func RecordSubmitBatch(ctx context.Context, queued, skipped int) {
	if submitBatchTotal != nil {
		submitBatchTotal.Add(ctx, 1)
	}
	if submitQueuedTotal != nil && queued > 0 {
		submitQueuedTotal.Add(ctx, int64(queued))
	}
	if submitSkippedTotal != nil && skipped > 0 {
		submitSkippedTotal.Add(ctx, int64(skipped))
	}
}

// RecordPoolConcurrency records a worker starting (+1) or finishing (-1) an
// attempt, and the pool's configured capacity.
func RecordPoolConcurrency(ctx context.Context, delta int64, capacity int64) {
	if poolConcurrentAttempts != nil {
		poolConcurrentAttempts.Add(ctx, delta)
	}
	if capacity > 0 && poolCapacityGauge != nil {
		poolCapacityGauge.Record(ctx, capacity)
	}
}

// RecordStalePendingSwept records the count of records the stale-pending
// sweep marked FAILED.
func RecordStalePendingSwept(ctx context.Context, count int) {
	if stalePendingSweptCounter != nil && count > 0 {
		stalePendingSweptCounter.Add(ctx, int64(count))
	}
}

// RecordInconsistenciesFixed records the count of records the
// invariant-repair sweep corrected.
func RecordInconsistenciesFixed(ctx context.Context, count int) {
	if inconsistenciesFixedCounter != nil && count > 0 {
		inconsistenciesFixedCounter.Add(ctx, int64(count))
	}
}
