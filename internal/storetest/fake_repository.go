// Package storetest provides an in-memory store.Repository used by
// control-plane and worker tests in place of a real MongoDB connection.
// There is no lightweight MongoDB mock in the example corpus (unlike
// DATA-DOG/go-sqlmock for database/sql), so this fake implements the
// actual query semantics by hand, matching the in-memory fakes style
// used elsewhere in this codebase but behaviour-driven rather than
// expectation-driven.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/Harvey-AU/url-content-fetcher/internal/normalize"
	"github.com/Harvey-AU/url-content-fetcher/internal/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FakeRepository is a goroutine-safe in-memory store.Repository.
type FakeRepository struct {
	mu      sync.Mutex
	records map[string]*store.FetchRecord
}

// NewFakeRepository returns an empty fake repository.
func NewFakeRepository() *FakeRepository {
	return &FakeRepository{records: make(map[string]*store.FetchRecord)}
}

func (f *FakeRepository) EnsureIndexes(ctx context.Context) error { return nil }

func (f *FakeRepository) Create(ctx context.Context, fields store.Fields) (*store.FetchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now().UTC()
	rec := &store.FetchRecord{
		ID:            primitive.NewObjectID().Hex(),
		RedirectChain: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	applyFields(rec, fields)
	f.records[rec.ID] = cloneRecord(rec)
	return cloneRecord(rec), nil
}

func (f *FakeRepository) FindByID(ctx context.Context, id string) (*store.FetchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (f *FakeRepository) FindByURL(ctx context.Context, rawURL string) (*store.FetchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	variants := variantSet(rawURL)
	var best *store.FetchRecord
	for _, rec := range f.records {
		if _, ok := variants[rec.URL]; !ok {
			continue
		}
		if best == nil || rec.CreatedAt.After(best.CreatedAt) {
			best = rec
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return cloneRecord(best), nil
}

func (f *FakeRepository) FindLatestSuccessByURL(ctx context.Context, rawURL string) (*store.FetchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	variants := variantSet(rawURL)
	var best *store.FetchRecord
	for _, rec := range f.records {
		if rec.Status != store.StatusSuccess {
			continue
		}
		if _, ok := variants[rec.URL]; !ok {
			continue
		}
		if rec.FetchedAt == nil {
			continue
		}
		if best == nil || rec.FetchedAt.After(*best.FetchedAt) {
			best = rec
		}
	}
	if best == nil {
		return nil, store.ErrNotFound
	}
	return cloneRecord(best), nil
}

func (f *FakeRepository) FindAll(ctx context.Context, filter store.ListFilter, limit, offset int) ([]*store.FetchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all []*store.FetchRecord
	for _, rec := range f.records {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.HTTPStatus != 0 && (rec.HTTPStatus == nil || *rec.HTTPStatus != filter.HTTPStatus) {
			continue
		}
		all = append(all, cloneRecord(rec))
	}

	sortByCreatedAtDesc(all)

	if offset >= len(all) {
		return []*store.FetchRecord{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *FakeRepository) Update(ctx context.Context, id string, fields store.Fields) (*store.FetchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	applyFields(rec, fields)
	rec.UpdatedAt = time.Now().UTC()
	f.records[id] = rec
	return cloneRecord(rec), nil
}

func (f *FakeRepository) GetRecentByURL(ctx context.Context, rawURL string, window time.Duration) (*store.FetchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	variants := variantSet(rawURL)
	cutoff := time.Now().UTC().Add(-window)

	var best *store.FetchRecord
	consider := func(rec *store.FetchRecord) {
		if best == nil || rec.CreatedAt.After(best.CreatedAt) {
			best = rec
		}
	}

	for _, rec := range f.records {
		if _, ok := variants[rec.URL]; ok {
			if rec.Status == store.StatusSuccess && rec.FetchedAt != nil && !rec.FetchedAt.Before(cutoff) {
				consider(rec)
				continue
			}
			if (rec.Status == store.StatusPending || rec.Status == store.StatusProcessing) && !rec.CreatedAt.Before(cutoff) {
				consider(rec)
				continue
			}
		}
		if rec.Status == store.StatusSuccess && rec.FetchedAt != nil && !rec.FetchedAt.Before(cutoff) {
			for _, rURL := range rec.RedirectChain {
				if _, ok := variants[rURL]; ok {
					consider(rec)
					break
				}
			}
		}
	}

	if best == nil {
		return nil, store.ErrNotFound
	}
	return cloneRecord(best), nil
}

func (f *FakeRepository) FindStalePending(ctx context.Context, timeout time.Duration) ([]*store.FetchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := time.Now().UTC().Add(-timeout)
	var stale []*store.FetchRecord
	for _, rec := range f.records {
		if rec.Status == store.StatusPending && rec.CreatedAt.Before(cutoff) {
			stale = append(stale, cloneRecord(rec))
		}
	}
	return stale, nil
}

func (f *FakeRepository) GetHistory(ctx context.Context, rawURL string) ([]*store.FetchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	variants := variantSet(rawURL)
	var history []*store.FetchRecord
	for _, rec := range f.records {
		if _, ok := variants[rec.URL]; ok {
			history = append(history, cloneRecord(rec))
		}
	}
	sortByFetchedAtDesc(history)
	return history, nil
}

func (f *FakeRepository) HasActiveRecord(ctx context.Context, canonicalURL string, excludeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rec := range f.records {
		if rec.ID == excludeID {
			continue
		}
		if rec.URL == canonicalURL && (rec.Status == store.StatusPending || rec.Status == store.StatusProcessing) {
			return true, nil
		}
	}
	return false, nil
}

// --- helpers ---

func applyFields(rec *store.FetchRecord, fields store.Fields) {
	for k, v := range fields {
		set(rec, k, v)
	}
}

func set(rec *store.FetchRecord, key string, value interface{}) {
	clear := value == store.Null

	switch key {
	case "url":
		if s, ok := value.(string); ok {
			rec.URL = s
		}
	case "status":
		if s, ok := value.(store.Status); ok {
			rec.Status = s
		}
	case "content":
		if clear {
			rec.Content = nil
		} else if s, ok := value.(string); ok {
			rec.Content = &s
		}
	case "contentType":
		if clear {
			rec.ContentType = nil
		} else if s, ok := value.(string); ok {
			rec.ContentType = &s
		}
	case "httpStatus":
		if clear {
			rec.HTTPStatus = nil
		} else if n, ok := value.(int); ok {
			rec.HTTPStatus = &n
		}
	case "errorMessage":
		if clear {
			rec.ErrorMessage = nil
		} else if s, ok := value.(string); ok {
			rec.ErrorMessage = &s
		}
	case "finalUrl":
		if clear {
			rec.FinalURL = nil
		} else if s, ok := value.(string); ok {
			rec.FinalURL = &s
		}
	case "redirectChain":
		if clear {
			rec.RedirectChain = nil
		} else if s, ok := value.([]string); ok {
			rec.RedirectChain = s
		}
	case "contentHash":
		if clear {
			rec.ContentHash = nil
		} else if s, ok := value.(string); ok {
			rec.ContentHash = &s
		}
	case "contentLength":
		if clear {
			rec.ContentLength = nil
		} else if n, ok := value.(int); ok {
			rec.ContentLength = &n
		}
	case "responseTime":
		if clear {
			rec.ResponseTime = nil
		} else if n, ok := value.(int64); ok {
			rec.ResponseTime = &n
		}
	case "userAgent":
		if clear {
			rec.UserAgent = nil
		} else if s, ok := value.(string); ok {
			rec.UserAgent = &s
		}
	case "retryCount":
		if n, ok := value.(int); ok {
			rec.RetryCount = n
		}
	case "fetchedAt":
		if clear {
			rec.FetchedAt = nil
		} else if t, ok := value.(time.Time); ok {
			rec.FetchedAt = &t
		}
	}
}

func cloneRecord(rec *store.FetchRecord) *store.FetchRecord {
	c := *rec
	if rec.RedirectChain != nil {
		c.RedirectChain = append([]string(nil), rec.RedirectChain...)
	}
	return &c
}

func variantSet(rawURL string) map[string]struct{} {
	canonical := normalize.Canonical(rawURL)
	bare := canonical
	for _, prefix := range []string{"https://", "http://"} {
		if len(bare) >= len(prefix) && bare[:len(prefix)] == prefix {
			bare = bare[len(prefix):]
			break
		}
	}
	set := map[string]struct{}{
		rawURL:             {},
		canonical:          {},
		bare:               {},
		"http://" + bare:   {},
		"https://" + bare:  {},
	}
	return set
}

func sortByCreatedAtDesc(records []*store.FetchRecord) {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j].CreatedAt.After(records[j-1].CreatedAt); j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
}

func sortByFetchedAtDesc(records []*store.FetchRecord) {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && later(records[j], records[j-1]); j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
}

func later(a, b *store.FetchRecord) bool {
	if a.FetchedAt == nil {
		return false
	}
	if b.FetchedAt == nil {
		return true
	}
	return a.FetchedAt.After(*b.FetchedAt)
}
