// Package controlplane implements the URL-submission and result-consumer
// logic that owns the document store, grounded on the span/logging style
// of a job manager but driven by the queue bus instead of
// direct SQL, and the scrape lifecycle described by §4.5/§4.8/§4.9.
package controlplane

import (
	"context"
	"fmt"
	"time"

	"github.com/Harvey-AU/url-content-fetcher/internal/bus"
	"github.com/Harvey-AU/url-content-fetcher/internal/normalize"
	"github.com/Harvey-AU/url-content-fetcher/internal/observability"
	"github.com/Harvey-AU/url-content-fetcher/internal/store"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Skipped describes one URL that was not queued, with a human-readable
// reason per §4.5.
type Skipped struct {
	URL             string     `json:"url"`
	Reason          string     `json:"reason"`
	NextAvailableAt *time.Time `json:"nextAvailableAt,omitempty"`
}

// SubmitResult is the outcome of Submit, mirroring its §4.5 signature.
type SubmitResult struct {
	Submitted []string  `json:"submitted"`
	Skipped   []Skipped `json:"skipped"`
	Queued    []string  `json:"queued"`
}

// ControlPlane owns the document store and the outbound side of the
// queue bus.
type ControlPlane struct {
	Repo store.Repository
	Bus  bus.QueueBus

	// ScrapeInterval is SCRAPE_INTERVAL_MINUTES, the recent-fetch dedup
	// window used by Submit.
	ScrapeInterval time.Duration
	// MaxRetries is MAX_RETRIES, consulted by OnFailure.
	MaxRetries int
	// StaleRequestTimeout is STALE_REQUEST_TIMEOUT_MINUTES, consulted by
	// SweepStalePending.
	StaleRequestTimeout time.Duration

	// submitGroup collapses concurrent submitOne calls for the same
	// canonical URL into a single recent-check-then-create sequence,
	// closing the TOCTOU window that would otherwise let two in-flight
	// Submit calls both observe no recent record and create duplicate
	// active records for the same URL (invariant I4).
	submitGroup singleflight.Group
}

// Submit runs §4.5 for each raw URL: per-item errors are caught and
// reported in Skipped so one bad URL never fails the whole batch.
func (cp *ControlPlane) Submit(ctx context.Context, urls []string) SubmitResult {
	span := sentry.StartSpan(ctx, "controlplane.submit")
	span.SetTag("url_count", fmt.Sprintf("%d", len(urls)))
	defer span.Finish()

	result := SubmitResult{
		Submitted: []string{},
		Skipped:   []Skipped{},
		Queued:    []string{},
	}

	for _, raw := range urls {
		queuedID, skipped, err := cp.submitOne(ctx, raw)
		if err != nil {
			result.Skipped = append(result.Skipped, Skipped{URL: raw, Reason: fmt.Sprintf("Processing error: %s", err)})
			continue
		}
		if skipped != nil {
			result.Skipped = append(result.Skipped, *skipped)
			continue
		}
		result.Submitted = append(result.Submitted, raw)
		result.Queued = append(result.Queued, queuedID)
	}

	observability.RecordSubmitBatch(ctx, len(result.Queued), len(result.Skipped))
	return result
}

// submitOneResult is the shape smuggled through singleflight.Group, which
// only carries a single interface{} value per call.
type submitOneResult struct {
	queuedID string
	skipped  *Skipped
}

func (cp *ControlPlane) submitOne(ctx context.Context, raw string) (string, *Skipped, error) {
	canonical := normalize.Canonical(raw)

	if err := normalize.ValidateHost(canonical); err != nil {
		return "", &Skipped{URL: raw, Reason: err.Error()}, nil
	}

	ran := false
	v, err, _ := cp.submitGroup.Do(canonical, func() (interface{}, error) {
		ran = true
		return cp.doSubmitOne(ctx, raw, canonical)
	})
	if err != nil {
		return "", nil, err
	}
	res := v.(submitOneResult)
	if !ran && res.queuedID != "" {
		// This caller joined another caller's in-flight create; only that
		// caller reports the new record as queued.
		return "", &Skipped{URL: raw, Reason: fmt.Sprintf("Already queued (status=%s)", store.StatusPending)}, nil
	}
	return res.queuedID, res.skipped, nil
}

func (cp *ControlPlane) doSubmitOne(ctx context.Context, raw, canonical string) (submitOneResult, error) {
	recent, err := cp.Repo.GetRecentByURL(ctx, raw, cp.ScrapeInterval)
	if err == nil {
		return submitOneResult{skipped: cp.skipForExisting(raw, recent)}, nil
	}
	if err != store.ErrNotFound {
		return submitOneResult{}, err
	}

	rec, err := cp.Repo.Create(ctx, store.Fields{
		"url":        canonical,
		"status":     store.StatusPending,
		"retryCount": 0,
	})
	if err != nil {
		return submitOneResult{}, err
	}

	if err := cp.Bus.PublishScrapeRequest(ctx, bus.ScrapeRequest{
		ID:         rec.ID,
		URL:        canonical,
		RetryCount: 0,
		Priority:   1,
	}); err != nil {
		return submitOneResult{}, fmt.Errorf("publish scrape request: %w", err)
	}

	log.Info().Str("id", rec.ID).Str("url", canonical).Msg("Queued scrape request")
	return submitOneResult{queuedID: rec.ID}, nil
}

func (cp *ControlPlane) skipForExisting(raw string, rec *store.FetchRecord) *Skipped {
	switch {
	case rec.Status == store.StatusSuccess && rec.FetchedAt != nil:
		reason := "Successfully scraped within " + intervalLabel(cp.ScrapeInterval)
		if !normalize.Equivalent(rec.URL, raw) {
			reason = "Already scraped via redirect"
		}
		next := rec.FetchedAt.Add(cp.ScrapeInterval)
		return &Skipped{URL: raw, Reason: reason, NextAvailableAt: &next}
	case rec.Status == store.StatusPending || rec.Status == store.StatusProcessing:
		return &Skipped{URL: raw, Reason: fmt.Sprintf("Already queued (status=%s)", rec.Status)}
	default:
		return &Skipped{URL: raw, Reason: fmt.Sprintf("Recent request exists with status: %s", rec.Status)}
	}
}

func intervalLabel(d time.Duration) string {
	minutes := int(d.Minutes())
	return fmt.Sprintf("%d minutes", minutes)
}
