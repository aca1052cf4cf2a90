// Package store defines the FetchRecord data model and the Repository
// interface the control plane uses to persist and query it, plus a
// MongoDB-backed implementation.
package store

import "time"

// Status is the lifecycle state of a FetchRecord.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"

	// StatusArchived appears in the historical enum this was distilled
	// from but is not reachable from any transition here; it is reserved
	// and must never be written by this package.
	StatusArchived Status = "ARCHIVED"
)

// FetchRecord is one row per submission-attempt-chain; retries reuse the
// same record (only retryCount and the mutable result fields change).
type FetchRecord struct {
	ID            string     `bson:"_id,omitempty" json:"id"`
	URL           string     `bson:"url" json:"url"`
	Status        Status     `bson:"status" json:"status"`
	Content       *string    `bson:"content" json:"content,omitempty"`
	ContentType   *string    `bson:"contentType" json:"contentType,omitempty"`
	HTTPStatus    *int       `bson:"httpStatus" json:"httpStatus,omitempty"`
	ErrorMessage  *string    `bson:"errorMessage" json:"errorMessage,omitempty"`
	FinalURL      *string    `bson:"finalUrl" json:"finalUrl,omitempty"`
	RedirectChain []string   `bson:"redirectChain" json:"redirectChain"`
	ContentHash   *string    `bson:"contentHash" json:"contentHash,omitempty"`
	ContentLength *int       `bson:"contentLength" json:"contentLength,omitempty"`
	ResponseTime  *int64     `bson:"responseTime" json:"responseTime,omitempty"`
	UserAgent     *string    `bson:"userAgent" json:"userAgent,omitempty"`
	RetryCount    int        `bson:"retryCount" json:"retryCount"`
	FetchedAt     *time.Time `bson:"fetchedAt" json:"fetchedAt,omitempty"`
	CreatedAt     time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// Fields is a partial-update / partial-create document. A key mapped to
// the Null sentinel clears that field (writes an explicit BSON null);
// an absent key leaves the field untouched on update, or unset on create.
type Fields map[string]interface{}

// nullSentinel is the absent-field marker used throughout Fields values.
type nullSentinel struct{}

// Null is the sentinel value callers use in a Fields map to explicitly
// clear a field, as distinct from simply omitting the key. The repository
// always writes an explicit BSON null for it rather than unsetting the
// key, so every record keeps a stable key set (see SPEC_FULL.md §3's
// resolution of the undefined-vs-null open question).
var Null = nullSentinel{}

// IsTerminal reports whether s is a terminal status from which no further
// automatic transition occurs.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}
