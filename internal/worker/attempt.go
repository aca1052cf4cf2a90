// Package worker implements the scraper plane's single-attempt protocol
// and its scrape.requests consumer loop, grounded on the span/metrics
// instrumentation style of a pooled task worker's process loop but
// replacing the SQL crawler with a shared headless browser.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/Harvey-AU/url-content-fetcher/internal/bus"
	"github.com/Harvey-AU/url-content-fetcher/internal/classify"
	"github.com/Harvey-AU/url-content-fetcher/internal/observability"
	"github.com/Harvey-AU/url-content-fetcher/internal/render"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

// Config carries the environment-driven navigation settings from §6's
// worker table.
type Config struct {
	WaitStrategy  render.WaitStrategy
	NavTimeout    time.Duration
	DisableImages bool
	DisableCSS    bool
	DynamicWait   time.Duration
	UserAgent     string
}

// Navigator is the subset of *render.Browser the worker needs, split out
// so tests can substitute a fake instead of launching real Chrome.
type Navigator interface {
	Navigate(ctx context.Context, target string, opts render.Options) (render.Result, error)
}

// Attempt runs one execution of the worker attempt protocol (§4.6) for
// req against browser, publishing ScrapeStarted immediately and exactly
// one of ScrapeResult/ScrapeFailure on completion. It never touches the
// document store and never decides whether to retry.
func Attempt(ctx context.Context, b bus.QueueBus, browser Navigator, cfg Config, req bus.ScrapeRequest) error {
	span := sentry.StartSpan(ctx, "worker.attempt")
	span.SetTag("url", req.URL)
	defer span.Finish()

	ctx, otelSpan := observability.StartScrapeSpan(ctx, observability.ScrapeSpanInfo{
		RecordID:   req.ID,
		URL:        req.URL,
		RetryCount: req.RetryCount,
	})
	defer otelSpan.End()

	ua := cfg.UserAgent
	if ua == "" {
		ua = render.DefaultUserAgent
	}

	startedAt := time.Now().UTC()
	if err := b.PublishScrapeStarted(ctx, bus.ScrapeStarted{
		ID:        req.ID,
		URL:       req.URL,
		StartedAt: startedAt,
		UserAgent: ua,
	}); err != nil {
		log.Error().Err(err).Str("id", req.ID).Str("url", req.URL).Msg("Failed to publish ScrapeStarted")
		return fmt.Errorf("publish started: %w", err)
	}

	result, navErr := browser.Navigate(ctx, req.URL, render.Options{
		WaitStrategy:  cfg.WaitStrategy,
		Timeout:       cfg.NavTimeout,
		DisableImages: cfg.DisableImages,
		DisableCSS:    cfg.DisableCSS,
		DynamicWait:   cfg.DynamicWait,
		UserAgent:     ua,
	})

	elapsed := time.Since(startedAt)

	if navErr != nil {
		return publishFailure(ctx, b, span, req, classify.ClassifyError(navErr.Error(), ""), elapsed)
	}

	if !result.HasResponse {
		return publishFailure(ctx, b, span, req, classify.ClassifyError("No response received", ""), elapsed)
	}

	if result.HTTPStatus >= 400 {
		class := classify.ClassifyStatus(result.HTTPStatus)
		return publishFailure(ctx, b, span, req, class, elapsed)
	}

	span.SetTag("http.status", fmt.Sprintf("%d", result.HTTPStatus))
	span.Status = sentry.SpanStatusOK
	observability.RecordScrapeAttempt(ctx, observability.ScrapeAttemptMetrics{Outcome: "success", Duration: elapsed})

	log.Debug().
		Str("id", req.ID).
		Str("url", req.URL).
		Int("status", result.HTTPStatus).
		Dur("elapsed", elapsed).
		Msg("Scrape attempt succeeded")

	if err := b.PublishScrapeResult(ctx, bus.ScrapeResult{
		ID:            req.ID,
		URL:           req.URL,
		Success:       true,
		Content:       result.Content,
		ContentType:   result.ContentType,
		HTTPStatus:    result.HTTPStatus,
		FinalURL:      result.FinalURL,
		RedirectChain: result.RedirectChain,
		ContentHash:   result.ContentHash(),
		ContentLength: result.ContentLength(),
		ResponseTime:  elapsed.Milliseconds(),
		UserAgent:     ua,
	}); err != nil {
		log.Error().Err(err).Str("id", req.ID).Msg("Failed to publish ScrapeResult")
		sentry.CaptureException(err)
		return fmt.Errorf("publish result: %w", err)
	}

	return nil
}

func publishFailure(ctx context.Context, b bus.QueueBus, span *sentry.Span, req bus.ScrapeRequest, class classify.Classification, elapsed time.Duration) error {
	span.Status = sentry.SpanStatusUnknown
	span.SetTag("classification.reason", class.Reason)

	outcome := "non_retryable"
	if class.Retryable {
		outcome = "retryable"
	}
	observability.RecordScrapeAttempt(ctx, observability.ScrapeAttemptMetrics{Outcome: outcome, Duration: elapsed})

	log.Warn().
		Str("id", req.ID).
		Str("url", req.URL).
		Str("reason", class.Reason).
		Bool("retryable", class.Retryable).
		Dur("elapsed", elapsed).
		Msg("Scrape attempt failed")

	failure := bus.ScrapeFailure{
		ID:            req.ID,
		URL:           req.URL,
		RetryCount:    req.RetryCount,
		ErrorMessage:  class.Reason,
		Retryable:     class.Retryable,
		HasHTTPStatus: class.HasStatus,
	}
	if class.HasStatus {
		failure.HTTPStatus = class.Status
	}

	if err := b.PublishScrapeFailure(ctx, failure); err != nil {
		log.Error().Err(err).Str("id", req.ID).Msg("Failed to publish ScrapeFailure")
		sentry.CaptureException(err)
		return fmt.Errorf("publish failure: %w", err)
	}

	return nil
}

