package controlplane

import (
	"context"
	"fmt"
	"time"

	"github.com/Harvey-AU/url-content-fetcher/internal/bus"
	"github.com/Harvey-AU/url-content-fetcher/internal/store"
	"github.com/rs/zerolog/log"
)

// RunResultConsumers starts the three independent §4.8 consumers and
// blocks until ctx is cancelled or one returns a non-cancellation error.
func (cp *ControlPlane) RunResultConsumers(ctx context.Context) error {
	errCh := make(chan error, 3)

	go func() { errCh <- cp.Bus.ConsumeScrapeStarted(ctx, cp.OnStarted) }()
	go func() { errCh <- cp.Bus.ConsumeScrapeResults(ctx, cp.OnResult) }()
	go func() { errCh <- cp.Bus.ConsumeScrapeFailures(ctx, cp.OnFailure) }()

	for i := 0; i < 3; i++ {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			return err
		}
	}
	return nil
}

// OnStarted handles a ScrapeStarted message. Per §5, a late Started for
// a record already in a terminal state is rejected rather than silently
// reverting it to PROCESSING.
func (cp *ControlPlane) OnStarted(ctx context.Context, msg bus.ScrapeStarted) error {
	rec, err := cp.Repo.FindByID(ctx, msg.ID)
	if err != nil {
		return err
	}
	if rec.Status.IsTerminal() {
		log.Warn().Str("id", msg.ID).Str("status", string(rec.Status)).Msg("Ignoring late ScrapeStarted for terminal record")
		return nil
	}

	_, err = cp.Repo.Update(ctx, msg.ID, store.Fields{
		"status":       store.StatusProcessing,
		"userAgent":    msg.UserAgent,
		"errorMessage": store.Null,
	})
	return err
}

// OnResult handles a ScrapeResult message, writing every result field per
// §4.8's always-write list regardless of success.
func (cp *ControlPlane) OnResult(ctx context.Context, msg bus.ScrapeResult) error {
	now := time.Now().UTC()

	fields := store.Fields{
		"fetchedAt":     now,
		"finalUrl":      msg.FinalURL,
		"responseTime":  msg.ResponseTime,
		"contentLength": msg.ContentLength,
		"contentHash":   msg.ContentHash,
		"userAgent":     msg.UserAgent,
		"redirectChain": msg.RedirectChain,
		"httpStatus":    msg.HTTPStatus,
	}

	if msg.Success {
		fields["status"] = store.StatusSuccess
		fields["content"] = msg.Content
		fields["contentType"] = msg.ContentType
		fields["errorMessage"] = store.Null
	} else {
		fields["status"] = store.StatusFailed
		fields["content"] = store.Null
		fields["contentType"] = store.Null
		fields["contentHash"] = store.Null
	}

	_, err := cp.Repo.Update(ctx, msg.ID, fields)
	return err
}

// OnFailure handles a ScrapeFailure message, where the retry decision
// lives per §4.8: the worker is stateless, so the authoritative
// retryCount and the decision to retry both belong to the control plane.
func (cp *ControlPlane) OnFailure(ctx context.Context, msg bus.ScrapeFailure) error {
	maxRetries := cp.MaxRetries
	if maxRetries <= 0 {
		maxRetries = store.MaxRetries()
	}

	if msg.Retryable && msg.RetryCount < maxRetries {
		nextAttempt := msg.RetryCount + 1
		_, err := cp.Repo.Update(ctx, msg.ID, store.Fields{
			"status":       store.StatusPending,
			"retryCount":   nextAttempt,
			"errorMessage": fmt.Sprintf("Retry %d/%d: %s", nextAttempt, maxRetries, msg.ErrorMessage),
			"content":      store.Null,
			"contentType":  store.Null,
			"contentHash":  store.Null,
			"fetchedAt":    store.Null,
		})
		if err != nil {
			return err
		}

		return cp.Bus.PublishScrapeRequest(ctx, bus.ScrapeRequest{
			ID:         msg.ID,
			URL:        msg.URL,
			RetryCount: nextAttempt,
			Priority:   2,
		})
	}

	reason := "Error is not retryable"
	if msg.Retryable {
		reason = fmt.Sprintf("Maximum retries (%d) exceeded", maxRetries)
	}

	fields := store.Fields{
		"status":       store.StatusFailed,
		"errorMessage": fmt.Sprintf("%s: %s", reason, msg.ErrorMessage),
		"content":      store.Null,
		"contentType":  store.Null,
		"contentHash":  store.Null,
	}
	if msg.HasHTTPStatus {
		fields["httpStatus"] = msg.HTTPStatus
	}

	_, err := cp.Repo.Update(ctx, msg.ID, fields)
	return err
}
