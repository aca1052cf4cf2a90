package bustest

import (
	"context"
	"testing"
	"time"

	"github.com/Harvey-AU/url-content-fetcher/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeBusPublishAndConsumeRequest(t *testing.T) {
	b := NewFakeBus()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, b.PublishScrapeRequest(ctx, bus.ScrapeRequest{ID: "1", URL: "https://a.test"}))

	received := make(chan bus.ScrapeRequest, 1)
	go func() {
		_ = b.ConsumeScrapeRequests(ctx, func(ctx context.Context, msg bus.ScrapeRequest) error {
			received <- msg
			return nil
		})
	}()

	select {
	case msg := <-received:
		assert.Equal(t, "1", msg.ID)
		assert.Equal(t, "https://a.test", msg.URL)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for consumed message")
	}
}

func TestFakeBusHandlerErrorDropsMessageWithoutRequeue(t *testing.T) {
	b := NewFakeBus()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, b.PublishScrapeFailure(ctx, bus.ScrapeFailure{ID: "1", ErrorMessage: "boom"}))

	calls := 0
	done := make(chan struct{})
	go func() {
		_ = b.ConsumeScrapeFailures(ctx, func(ctx context.Context, msg bus.ScrapeFailure) error {
			calls++
			close(done)
			return assert.AnError
		})
	}()

	<-done
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, calls)
}

func TestFakeBusCloseStopsConsumers(t *testing.T) {
	b := NewFakeBus()
	ctx := context.Background()

	stopped := make(chan error, 1)
	go func() {
		stopped <- b.ConsumeScrapeStarted(ctx, func(ctx context.Context, msg bus.ScrapeStarted) error {
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Close())

	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after Close")
	}
}

func TestFakeBusSnapshotAccessors(t *testing.T) {
	b := NewFakeBus()
	ctx := context.Background()

	require.NoError(t, b.PublishScrapeResult(ctx, bus.ScrapeResult{ID: "1"}))
	require.NoError(t, b.PublishScrapeResult(ctx, bus.ScrapeResult{ID: "2"}))

	results := b.Results()
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].ID)
	assert.Equal(t, "2", results[1].ID)
}
