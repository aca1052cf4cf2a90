package controlplane

import (
	"context"
	"testing"
	"time"

	"github.com/Harvey-AU/url-content-fetcher/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepStalePendingSkipsFreshRecords(t *testing.T) {
	cp, repo, _ := newTestControlPlane()
	cp.StaleRequestTimeout = 120 * time.Minute
	ctx := context.Background()

	_, err := repo.Create(ctx, store.Fields{"url": "https://a.test", "status": store.StatusPending})
	require.NoError(t, err)

	count, err := cp.SweepStalePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRepairInconsistenciesClearsSuccessWithErrorMessage(t *testing.T) {
	cp, repo, _ := newTestControlPlane()
	ctx := context.Background()

	rec, err := repo.Create(ctx, store.Fields{
		"url": "https://a.test", "status": store.StatusSuccess, "content": "ok",
		"contentHash": "abc", "fetchedAt": time.Now().UTC(), "errorMessage": "stale error",
	})
	require.NoError(t, err)

	count, err := cp.RepairInconsistencies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	updated, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuccess, updated.Status)
	assert.Nil(t, updated.ErrorMessage)
}

func TestRepairInconsistenciesClearsFailedWithContent(t *testing.T) {
	cp, repo, _ := newTestControlPlane()
	ctx := context.Background()

	rec, err := repo.Create(ctx, store.Fields{
		"url": "https://a.test", "status": store.StatusFailed, "errorMessage": "boom",
		"content": "leftover", "contentType": "text/html", "contentHash": "abc",
	})
	require.NoError(t, err)

	count, err := cp.RepairInconsistencies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	updated, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, updated.Status)
	assert.Nil(t, updated.Content)
	assert.Nil(t, updated.ContentType)
	assert.Nil(t, updated.ContentHash)
}

func TestRepairInconsistenciesSkipsValidRecords(t *testing.T) {
	cp, repo, _ := newTestControlPlane()
	ctx := context.Background()

	_, err := repo.Create(ctx, store.Fields{
		"url": "https://a.test", "status": store.StatusSuccess, "content": "ok",
		"contentHash": "abc", "fetchedAt": time.Now().UTC(),
	})
	require.NoError(t, err)

	count, err := cp.RepairInconsistencies(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
