package store

// Violation describes a single invariant breach found on a record.
type Violation struct {
	RecordID string
	Rule     string
	Detail   string
}

// CheckInvariants evaluates invariants 1, 2, 3 and 5 from the FetchRecord
// spec (rules "I1", "I2", "I3", "I5") against a single record and returns
// every violation found (empty slice if none). Invariants 4 and 6 are not
// checked. Invariant 7 ("at most one active record per URL") is a
// cross-record property; it is not checked here, and the repository's
// Create and Update do not check it either.
func CheckInvariants(r *FetchRecord) []Violation {
	var violations []Violation
	add := func(rule, detail string) {
		violations = append(violations, Violation{RecordID: r.ID, Rule: rule, Detail: detail})
	}

	switch r.Status {
	case StatusSuccess:
		if r.Content == nil || *r.Content == "" {
			add("I1", "SUCCESS record missing content")
		}
		if r.ErrorMessage != nil {
			add("I1", "SUCCESS record carries an errorMessage")
		}
		if r.ContentHash == nil || *r.ContentHash == "" {
			add("I1", "SUCCESS record missing contentHash")
		}
	case StatusFailed:
		if r.ErrorMessage == nil || *r.ErrorMessage == "" {
			add("I2", "FAILED record missing errorMessage")
		}
		if r.Content != nil {
			add("I2", "FAILED record carries content")
		}
		if r.ContentType != nil {
			add("I2", "FAILED record carries contentType")
		}
		if r.ContentHash != nil {
			add("I2", "FAILED record carries contentHash")
		}
	case StatusPending:
		if r.Content != nil {
			add("I3", "PENDING record carries content")
		}
		if r.ContentHash != nil {
			add("I3", "PENDING record carries contentHash")
		}
	}

	if r.RetryCount > MaxRetries() {
		add("I5", "retryCount exceeds MAX_RETRIES")
	}

	return violations
}

// maxRetriesOverride lets tests and configuration override the default
// retry cap checked by CheckInvariants without threading config through
// every call site.
var maxRetriesOverride = -1

// SetMaxRetries configures the MAX_RETRIES value invariant I5 checks
// against. Call once at process start from configuration.
func SetMaxRetries(n int) {
	maxRetriesOverride = n
}

// MaxRetries returns the currently configured retry cap.
func MaxRetries() int {
	if maxRetriesOverride < 0 {
		return 3
	}
	return maxRetriesOverride
}
