package store

import (
	"context"
	"time"
)

// ListFilter narrows FindAll results. Zero values mean "no filter".
type ListFilter struct {
	Status     Status
	HTTPStatus int
}

// Repository is the persistence interface the control plane consumes.
// The concrete implementation (MongoRepository) is a stateful leaf per
// the component design; callers never see the underlying driver types.
type Repository interface {
	// Create inserts a new record with the supplied fields, a
	// server-generated ID, and managed timestamps.
	Create(ctx context.Context, fields Fields) (*FetchRecord, error)

	// FindByID returns the record with the given ID, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*FetchRecord, error)

	// FindByURL matches against the raw URL and its normalised variants,
	// to stay robust against legacy un-normalised rows. Returns the most
	// recently created match, or ErrNotFound.
	FindByURL(ctx context.Context, rawURL string) (*FetchRecord, error)

	// FindLatestSuccessByURL returns the most recent SUCCESS record for
	// rawURL (by fetchedAt desc), or ErrNotFound.
	FindLatestSuccessByURL(ctx context.Context, rawURL string) (*FetchRecord, error)

	// FindAll returns records sorted by createdAt desc, paginated.
	FindAll(ctx context.Context, filter ListFilter, limit, offset int) ([]*FetchRecord, error)

	// Update applies a partial update to the record with the given ID,
	// bumps updatedAt, and returns the updated record.
	Update(ctx context.Context, id string, fields Fields) (*FetchRecord, error)

	// GetRecentByURL returns a record for rawURL iff it or a redirect
	// target of it was fetched, or is in flight, within window of now.
	// See spec §4.3(a)-(c) for the exact match conditions.
	GetRecentByURL(ctx context.Context, rawURL string, window time.Duration) (*FetchRecord, error)

	// FindStalePending returns PENDING records created before
	// now-timeout.
	FindStalePending(ctx context.Context, timeout time.Duration) ([]*FetchRecord, error)

	// GetHistory returns every record for rawURL, fetchedAt desc.
	GetHistory(ctx context.Context, rawURL string) ([]*FetchRecord, error)

	// HasActiveRecord reports whether a record with the given canonical
	// URL is currently PENDING or PROCESSING (invariant 7 enforcement
	// point), optionally excluding one record ID.
	HasActiveRecord(ctx context.Context, canonicalURL string, excludeID string) (bool, error)

	// EnsureIndexes creates the indexes the query patterns above require.
	// Idempotent; safe to call on every process start.
	EnsureIndexes(ctx context.Context) error
}

// ErrNotFound is returned by lookup methods that find nothing.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "fetch record not found" }
