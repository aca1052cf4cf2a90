package controlplane

import (
	"context"
	"testing"
	"time"

	"github.com/Harvey-AU/url-content-fetcher/internal/bus"
	"github.com/Harvey-AU/url-content-fetcher/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnStartedTransitionsPendingToProcessing(t *testing.T) {
	cp, repo, _ := newTestControlPlane()
	ctx := context.Background()

	rec, err := repo.Create(ctx, store.Fields{"url": "https://a.test", "status": store.StatusPending})
	require.NoError(t, err)

	require.NoError(t, cp.OnStarted(ctx, bus.ScrapeStarted{ID: rec.ID, URL: "https://a.test", UserAgent: "ua/1.0"}))

	updated, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusProcessing, updated.Status)
	require.NotNil(t, updated.UserAgent)
	assert.Equal(t, "ua/1.0", *updated.UserAgent)
}

func TestOnStartedIgnoresLateEventForTerminalRecord(t *testing.T) {
	cp, repo, _ := newTestControlPlane()
	ctx := context.Background()

	rec, err := repo.Create(ctx, store.Fields{"url": "https://a.test", "status": store.StatusSuccess, "content": "ok", "fetchedAt": time.Now().UTC()})
	require.NoError(t, err)

	require.NoError(t, cp.OnStarted(ctx, bus.ScrapeStarted{ID: rec.ID, URL: "https://a.test"}))

	updated, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuccess, updated.Status)
}

func TestOnResultSuccessWritesContentAndClearsError(t *testing.T) {
	cp, repo, _ := newTestControlPlane()
	ctx := context.Background()

	rec, err := repo.Create(ctx, store.Fields{"url": "https://a.test", "status": store.StatusProcessing, "errorMessage": "prior"})
	require.NoError(t, err)

	require.NoError(t, cp.OnResult(ctx, bus.ScrapeResult{
		ID: rec.ID, URL: "https://a.test", Success: true, Content: "<html/>", ContentType: "text/html",
		HTTPStatus: 200, FinalURL: "https://a.test/", ContentHash: "abc", ContentLength: 7,
	}))

	updated, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuccess, updated.Status)
	require.NotNil(t, updated.Content)
	assert.Equal(t, "<html/>", *updated.Content)
	assert.Nil(t, updated.ErrorMessage)
}

func TestOnResultFailureClearsContentFields(t *testing.T) {
	cp, repo, _ := newTestControlPlane()
	ctx := context.Background()

	rec, err := repo.Create(ctx, store.Fields{"url": "https://a.test", "status": store.StatusProcessing})
	require.NoError(t, err)

	require.NoError(t, cp.OnResult(ctx, bus.ScrapeResult{ID: rec.ID, URL: "https://a.test", Success: false, HTTPStatus: 500}))

	updated, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, updated.Status)
	assert.Nil(t, updated.Content)
	assert.Nil(t, updated.ContentHash)
}

func TestOnFailureRetriesWhenUnderLimit(t *testing.T) {
	cp, repo, b := newTestControlPlane()
	ctx := context.Background()

	rec, err := repo.Create(ctx, store.Fields{"url": "https://a.test", "status": store.StatusProcessing, "retryCount": 0})
	require.NoError(t, err)

	require.NoError(t, cp.OnFailure(ctx, bus.ScrapeFailure{ID: rec.ID, URL: "https://a.test", RetryCount: 0, Retryable: true, ErrorMessage: "timeout"}))

	updated, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, updated.Status)
	assert.Equal(t, 1, updated.RetryCount)
	require.NotNil(t, updated.ErrorMessage)
	assert.Contains(t, *updated.ErrorMessage, "Retry 1/3")

	requests := b.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, 1, requests[0].RetryCount)
	assert.Equal(t, 2, requests[0].Priority)
}

func TestOnFailureStopsAtMaxRetries(t *testing.T) {
	cp, repo, b := newTestControlPlane()
	ctx := context.Background()

	rec, err := repo.Create(ctx, store.Fields{"url": "https://a.test", "status": store.StatusProcessing, "retryCount": 3})
	require.NoError(t, err)

	require.NoError(t, cp.OnFailure(ctx, bus.ScrapeFailure{ID: rec.ID, URL: "https://a.test", RetryCount: 3, Retryable: true, ErrorMessage: "timeout"}))

	updated, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, updated.Status)
	require.NotNil(t, updated.ErrorMessage)
	assert.Contains(t, *updated.ErrorMessage, "Maximum retries (3) exceeded")
	assert.Empty(t, b.Requests())
}

func TestOnFailureNonRetryableFailsImmediately(t *testing.T) {
	cp, repo, _ := newTestControlPlane()
	ctx := context.Background()

	rec, err := repo.Create(ctx, store.Fields{"url": "https://a.test", "status": store.StatusProcessing})
	require.NoError(t, err)

	require.NoError(t, cp.OnFailure(ctx, bus.ScrapeFailure{ID: rec.ID, URL: "https://a.test", Retryable: false, ErrorMessage: "Not found", HasHTTPStatus: true, HTTPStatus: 404}))

	updated, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, updated.Status)
	require.NotNil(t, updated.ErrorMessage)
	assert.Contains(t, *updated.ErrorMessage, "Error is not retryable")
	require.NotNil(t, updated.HTTPStatus)
	assert.Equal(t, 404, *updated.HTTPStatus)
}
