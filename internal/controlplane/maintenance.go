package controlplane

import (
	"context"

	"github.com/Harvey-AU/url-content-fetcher/internal/observability"
	"github.com/Harvey-AU/url-content-fetcher/internal/store"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

// SweepStalePending runs the §4.9 stale-pending sweep once: every record
// that has sat in PENDING longer than StaleRequestTimeout is marked
// FAILED, on the assumption that the scraper never picked it up.
func (cp *ControlPlane) SweepStalePending(ctx context.Context) (int, error) {
	span := sentry.StartSpan(ctx, "controlplane.sweep_stale_pending")
	defer span.Finish()

	stale, err := cp.Repo.FindStalePending(ctx, cp.StaleRequestTimeout)
	if err != nil {
		return 0, err
	}

	for _, rec := range stale {
		_, err := cp.Repo.Update(ctx, rec.ID, store.Fields{
			"status":       store.StatusFailed,
			"errorMessage": "Request timed out - no response from scraper",
		})
		if err != nil {
			log.Error().Err(err).Str("id", rec.ID).Msg("Failed to mark stale record as failed")
			continue
		}
	}

	if len(stale) > 0 {
		log.Info().Int("count", len(stale)).Msg("Stale-pending sweep marked records as failed")
	}
	observability.RecordStalePendingSwept(ctx, len(stale))
	return len(stale), nil
}

// RunStalePendingSweeper runs SweepStalePending on interval until ctx is
// cancelled, the same ticker-loop shape as a periodic cleanup monitor.
func (cp *ControlPlane) RunStalePendingSweeper(ctx context.Context, interval func() <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-interval():
			if _, err := cp.SweepStalePending(ctx); err != nil {
				log.Error().Err(err).Msg("Stale-pending sweep failed")
			}
		}
	}
}

// RepairInconsistencies scans every record for invariant violations
// (SUCCESS with errorMessage, FAILED with content) and clears the
// offending fields while preserving the authoritative status. Exposed as
// an admin operation per §4.9.
func (cp *ControlPlane) RepairInconsistencies(ctx context.Context) (int, error) {
	span := sentry.StartSpan(ctx, "controlplane.repair_inconsistencies")
	defer span.Finish()

	repaired := 0
	offset := 0
	const pageSize = 200

	for {
		records, err := cp.Repo.FindAll(ctx, store.ListFilter{}, pageSize, offset)
		if err != nil {
			return repaired, err
		}
		if len(records) == 0 {
			break
		}

		for _, rec := range records {
			violations := store.CheckInvariants(rec)
			if len(violations) == 0 {
				continue
			}

			fields := fieldsToRepair(rec)
			if len(fields) == 0 {
				continue
			}
			if _, err := cp.Repo.Update(ctx, rec.ID, fields); err != nil {
				log.Error().Err(err).Str("id", rec.ID).Msg("Failed to repair inconsistent record")
				continue
			}
			repaired++
		}

		offset += len(records)
		if len(records) < pageSize {
			break
		}
	}

	if repaired > 0 {
		log.Info().Int("count", repaired).Msg("Consistency repair cleared invariant violations")
	}
	observability.RecordInconsistenciesFixed(ctx, repaired)
	return repaired, nil
}

// fieldsToRepair builds the minimal update clearing rec's invariant
// violations without altering its status.
func fieldsToRepair(rec *store.FetchRecord) store.Fields {
	fields := store.Fields{}

	switch rec.Status {
	case store.StatusSuccess:
		if rec.ErrorMessage != nil {
			fields["errorMessage"] = store.Null
		}
	case store.StatusFailed:
		if rec.Content != nil {
			fields["content"] = store.Null
		}
		if rec.ContentType != nil {
			fields["contentType"] = store.Null
		}
		if rec.ContentHash != nil {
			fields["contentHash"] = store.Null
		}
	}

	return fields
}
