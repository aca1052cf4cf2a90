package worker

import (
	"context"
	"sync"

	"github.com/Harvey-AU/url-content-fetcher/internal/bus"
	"github.com/Harvey-AU/url-content-fetcher/internal/observability"
	"github.com/rs/zerolog/log"
)

// Pool runs CONCURRENT_SCRAPERS independent scrape.requests consumers
// against one shared browser. Each consumer opens its own queue channel
// with prefetch=1 (enforced by the bus implementation), so the broker
// throttles in-flight work naturally and no in-process scheduler is
// needed, per §5's worker concurrency model.
type Pool struct {
	Bus         bus.QueueBus
	Browser     Navigator
	Config      Config
	Concurrency int
}

// Run starts Concurrency consumer goroutines and blocks until ctx is
// cancelled or every consumer has returned.
func (p *Pool) Run(ctx context.Context) error {
	n := p.Concurrency
	if n <= 0 {
		n = 1
	}

	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			errs[slot] = p.Bus.ConsumeScrapeRequests(ctx, p.handle)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil && ctx.Err() == nil {
			return err
		}
	}
	return nil
}

// handle runs one Attempt per delivered ScrapeRequest. Per §4.7, the
// inbound delivery is acked only after the outbound message publishes
// successfully; returning an error here causes bus to reject without
// requeue, leaving the record to be picked up by stale-pending sweep.
func (p *Pool) handle(ctx context.Context, req bus.ScrapeRequest) error {
	log.Debug().Str("id", req.ID).Str("url", req.URL).Int("retryCount", req.RetryCount).Msg("Dequeued scrape request")

	capacity := p.Concurrency
	if capacity <= 0 {
		capacity = 1
	}
	observability.RecordPoolConcurrency(ctx, 1, int64(capacity))
	defer observability.RecordPoolConcurrency(ctx, -1, 0)

	return Attempt(ctx, p.Bus, p.Browser, p.Config, req)
}
