// Package bustest provides an in-memory bus.QueueBus used by control-plane
// and worker tests in place of a real RabbitMQ broker. Like storetest, it
// implements actual queue semantics by hand since amqp091-go has no
// lightweight in-process fake in the example corpus.
package bustest

import (
	"context"
	"sync"
	"time"

	"github.com/Harvey-AU/url-content-fetcher/internal/bus"
)

const pollInterval = 5 * time.Millisecond

// FakeBus is a goroutine-safe in-memory bus.QueueBus. Each queue is an
// unbounded slice guarded by a mutex; Consume* polls its queue until a
// message appears, ctx is cancelled, or the bus is closed. There is no
// broker-side redelivery or TTL here, so tests that care about those
// semantics belong against the AMQP layer instead (untestable in-process
// without a running broker).
type FakeBus struct {
	mu       sync.Mutex
	requests []bus.ScrapeRequest
	started  []bus.ScrapeStarted
	results  []bus.ScrapeResult
	failures []bus.ScrapeFailure
	closed   bool
}

// NewFakeBus returns an empty fake bus.
func NewFakeBus() *FakeBus {
	return &FakeBus{}
}

func (b *FakeBus) PublishScrapeRequest(ctx context.Context, msg bus.ScrapeRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, msg)
	return nil
}

func (b *FakeBus) PublishScrapeStarted(ctx context.Context, msg bus.ScrapeStarted) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = append(b.started, msg)
	return nil
}

func (b *FakeBus) PublishScrapeResult(ctx context.Context, msg bus.ScrapeResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = append(b.results, msg)
	return nil
}

func (b *FakeBus) PublishScrapeFailure(ctx context.Context, msg bus.ScrapeFailure) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, msg)
	return nil
}

// ConsumeScrapeRequests dispatches queued requests to handler in publish
// order until ctx is cancelled or the bus is closed. A handler error
// drops the message, matching the AMQP implementation's
// reject-without-requeue policy.
func (b *FakeBus) ConsumeScrapeRequests(ctx context.Context, handler bus.Handler[bus.ScrapeRequest]) error {
	for {
		msg, ok, done := popRequest(b)
		if done {
			return nil
		}
		if ok {
			_ = handler(ctx, msg)
			continue
		}
		if stop := waitOrDone(ctx); stop {
			return ctx.Err()
		}
	}
}

func (b *FakeBus) ConsumeScrapeStarted(ctx context.Context, handler bus.Handler[bus.ScrapeStarted]) error {
	for {
		msg, ok, done := popStarted(b)
		if done {
			return nil
		}
		if ok {
			_ = handler(ctx, msg)
			continue
		}
		if stop := waitOrDone(ctx); stop {
			return ctx.Err()
		}
	}
}

func (b *FakeBus) ConsumeScrapeResults(ctx context.Context, handler bus.Handler[bus.ScrapeResult]) error {
	for {
		msg, ok, done := popResult(b)
		if done {
			return nil
		}
		if ok {
			_ = handler(ctx, msg)
			continue
		}
		if stop := waitOrDone(ctx); stop {
			return ctx.Err()
		}
	}
}

func (b *FakeBus) ConsumeScrapeFailures(ctx context.Context, handler bus.Handler[bus.ScrapeFailure]) error {
	for {
		msg, ok, done := popFailure(b)
		if done {
			return nil
		}
		if ok {
			_ = handler(ctx, msg)
			continue
		}
		if stop := waitOrDone(ctx); stop {
			return ctx.Err()
		}
	}
}

func popRequest(b *FakeBus) (bus.ScrapeRequest, bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return bus.ScrapeRequest{}, false, b.closed
	}
	msg := b.requests[0]
	b.requests = b.requests[1:]
	return msg, true, false
}

func popStarted(b *FakeBus) (bus.ScrapeStarted, bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.started) == 0 {
		return bus.ScrapeStarted{}, false, b.closed
	}
	msg := b.started[0]
	b.started = b.started[1:]
	return msg, true, false
}

func popResult(b *FakeBus) (bus.ScrapeResult, bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.results) == 0 {
		return bus.ScrapeResult{}, false, b.closed
	}
	msg := b.results[0]
	b.results = b.results[1:]
	return msg, true, false
}

func popFailure(b *FakeBus) (bus.ScrapeFailure, bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.failures) == 0 {
		return bus.ScrapeFailure{}, false, b.closed
	}
	msg := b.failures[0]
	b.failures = b.failures[1:]
	return msg, true, false
}

// waitOrDone sleeps one poll interval, returning true if ctx finished
// first so the caller can stop consuming.
func waitOrDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(pollInterval):
		return false
	}
}

// Close marks the bus closed; in-flight Consume* calls return nil once
// their queue next drains empty.
func (b *FakeBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// Snapshot accessors let tests assert on published messages without
// needing a live consumer.

func (b *FakeBus) Requests() []bus.ScrapeRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bus.ScrapeRequest(nil), b.requests...)
}

func (b *FakeBus) Started() []bus.ScrapeStarted {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bus.ScrapeStarted(nil), b.started...)
}

func (b *FakeBus) Results() []bus.ScrapeResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bus.ScrapeResult(nil), b.results...)
}

func (b *FakeBus) Failures() []bus.ScrapeFailure {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bus.ScrapeFailure(nil), b.failures...)
}
