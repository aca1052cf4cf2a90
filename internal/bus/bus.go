package bus

import "context"

// Handler processes one decoded message. Returning an error causes the
// delivery to be rejected without requeue (§4.4's poison-message policy);
// returning nil acks it.
type Handler[T any] func(ctx context.Context, msg T) error

// QueueBus is the durable message bus interface the core consumes. The
// concrete implementation (AMQPBus) talks to RabbitMQ; delivery is
// at-least-once with manual ack and a prefetch of 1 per consumer
// channel, so consumers must be idempotent.
type QueueBus interface {
	PublishScrapeRequest(ctx context.Context, msg ScrapeRequest) error
	PublishScrapeStarted(ctx context.Context, msg ScrapeStarted) error
	PublishScrapeResult(ctx context.Context, msg ScrapeResult) error
	PublishScrapeFailure(ctx context.Context, msg ScrapeFailure) error

	// ConsumeScrapeRequests runs handler for every scrape.requests
	// delivery until ctx is cancelled. It opens its own channel with
	// prefetch=1, so concurrent calls (one per worker slot) each bound
	// their own in-flight work to one message.
	ConsumeScrapeRequests(ctx context.Context, handler Handler[ScrapeRequest]) error
	ConsumeScrapeStarted(ctx context.Context, handler Handler[ScrapeStarted]) error
	ConsumeScrapeResults(ctx context.Context, handler Handler[ScrapeResult]) error
	ConsumeScrapeFailures(ctx context.Context, handler Handler[ScrapeFailure]) error

	Close() error
}
