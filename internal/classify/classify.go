// Package classify maps a raw HTTP status or scrape error into a retry
// decision. It is deliberately table-driven rather than an inheritance
// hierarchy: new error kinds are added as rows, not subclasses.
package classify

import "strings"

// Classification is the outcome of classifying a status or error.
type Classification struct {
	// Retryable reports whether a later attempt is likely to succeed.
	Retryable bool
	// Temporary reports whether the underlying condition is expected to
	// clear on its own (distinct from Retryable: a condition can be
	// retryable without being "temporary" in the sense of self-healing,
	// but in this classifier the two always agree).
	Temporary bool
	// Reason is a short human-readable explanation, suitable for
	// errorMessage on a FetchRecord.
	Reason string
	// Status is the observed or synthetic HTTP status, if any.
	Status int
	// HasStatus reports whether Status is meaningful.
	HasStatus bool
}

// ClassifyStatus classifies a completed HTTP response by status code.
func ClassifyStatus(status int) Classification {
	switch {
	case status >= 200 && status < 300:
		return Classification{Retryable: false, Reason: "Success", Status: status, HasStatus: true}
	case status == 408 || status == 429:
		return Classification{Retryable: true, Temporary: true, Reason: statusReason(status), Status: status, HasStatus: true}
	case status >= 400 && status < 500:
		return Classification{Retryable: false, Reason: statusReason(status), Status: status, HasStatus: true}
	case status >= 500 && status < 600:
		return Classification{Retryable: true, Temporary: true, Reason: statusReason(status), Status: status, HasStatus: true}
	default:
		return Classification{Retryable: true, Temporary: true, Reason: statusReason(status), Status: status, HasStatus: true}
	}
}

func statusReason(status int) string {
	switch status {
	case 400:
		return "Bad request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not found"
	case 408:
		return "Request timeout"
	case 429:
		return "Too many requests"
	case 500:
		return "Internal server error"
	case 502:
		return "Bad gateway"
	case 503:
		return "Service unavailable"
	case 504:
		return "Gateway timeout"
	default:
		switch {
		case status >= 500:
			return "Server error " + itoa(status)
		case status >= 400:
			return "Client error " + itoa(status)
		default:
			return "HTTP " + itoa(status)
		}
	}
}

// chromeErrRules lists, in priority order, the Chrome-style network error
// substrings the classifier recognises before falling back to the generic
// "other ERR_*" and "anything else" rules.
var chromeErrRules = []struct {
	substr    string
	retryable bool
	status    int
	hasStatus bool
	reason    string
}{
	{"ERR_CONNECTION_REFUSED", true, 503, true, "Connection refused"},
	{"ERR_CONNECTION_TIMED_OUT", true, 408, true, "Connection timed out"},
	{"ERR_TIMED_OUT", true, 408, true, "Timed out"},
	{"ERR_NAME_NOT_RESOLVED", false, 404, true, "DNS resolution failed"},
	{"ERR_CERT_", false, 502, true, "Certificate error"},
	{"ERR_NETWORK_CHANGED", true, 503, true, "Network changed"},
	{"ERR_INTERNET_DISCONNECTED", true, 503, true, "Internet disconnected"},
}

// posixRules maps POSIX/Node-style error codes to a classification.
var posixRules = map[string]Classification{
	"ENOTFOUND":    {Retryable: false, Reason: "Host not found"},
	"ECONNREFUSED": {Retryable: true, Temporary: true, Reason: "Connection refused"},
	"ECONNRESET":   {Retryable: true, Temporary: true, Reason: "Connection reset"},
	"ETIMEDOUT":    {Retryable: true, Temporary: true, Reason: "Timed out", Status: 408, HasStatus: true},
}

// ClassifyError classifies a raw error message and optional error code
// (e.g. a Node/libuv-style errno string) produced by a failed scrape
// attempt that never reached a complete HTTP response.
func ClassifyError(message string, code string) Classification {
	upperMsg := strings.ToUpper(message)
	upperCode := strings.ToUpper(strings.TrimSpace(code))

	for _, r := range chromeErrRules {
		if strings.Contains(upperMsg, r.substr) {
			return Classification{
				Retryable: r.retryable,
				Temporary: r.retryable,
				Reason:    r.reason,
				Status:    r.status,
				HasStatus: r.hasStatus,
			}
		}
	}

	if strings.Contains(upperMsg, "ERR_") {
		return Classification{Retryable: true, Temporary: true, Reason: "Chrome network error: " + message, Status: 503, HasStatus: true}
	}

	if upperCode != "" {
		if c, ok := posixRules[upperCode]; ok {
			return c
		}
	}

	if isTimeoutNamed(upperMsg) {
		return Classification{Retryable: true, Temporary: true, Reason: "Timed out", Status: 408, HasStatus: true}
	}

	return Classification{Retryable: true, Temporary: true, Reason: message}
}

func isTimeoutNamed(upperMsg string) bool {
	return strings.Contains(upperMsg, "TIMEOUT") || strings.Contains(upperMsg, "TIMED OUT") || strings.Contains(upperMsg, "TIMED_OUT")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
