// Package normalize canonicalises user-supplied URLs into the single form
// used for storage, deduplication, and redirect-chain comparison.
package normalize

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Canonical converts any user-supplied URL into its canonical form:
// https://<host>[:port][path][?query][#frag], with the host lowercased,
// a single leading "www." stripped, and path/query/fragment preserved
// case-sensitively.
func Canonical(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	withScheme := ensureScheme(raw)

	u, err := url.Parse(withScheme)
	if err != nil || u.Host == "" {
		return fallbackCanonical(raw)
	}

	host := stripWWW(strings.ToLower(u.Host))

	path := u.Path
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	} else if path == "/" {
		path = ""
	}

	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(host)
	b.WriteString(path)
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}
	if u.Fragment != "" {
		b.WriteString("#")
		b.WriteString(u.EscapedFragment())
	}
	return b.String()
}

// Equivalent reports whether a and b canonicalise to the same URL.
func Equivalent(a, b string) bool {
	return Canonical(a) == Canonical(b)
}

// ValidateHost rejects hosts that are not a fetchable public domain:
// localhost and its variants, and anything without a valid public
// suffix. canonical must already be in Canonical form.
func ValidateHost(canonical string) error {
	u, err := url.Parse(canonical)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid URL")
	}

	host := u.Hostname()
	lower := strings.ToLower(host)
	for _, blocked := range []string{"localhost", "localhost.localdomain", "local", "internal"} {
		if lower == blocked || strings.HasSuffix(lower, "."+blocked) {
			return fmt.Errorf("host %q is not allowed", host)
		}
	}

	if _, err := publicsuffix.EffectiveTLDPlusOne(host); err != nil {
		if strings.Contains(err.Error(), "is a suffix") {
			return fmt.Errorf("cannot use a public suffix alone (e.g., .com, .co.uk)")
		}
		return fmt.Errorf("invalid domain: %s", err.Error())
	}

	return nil
}

// ensureScheme prepends https:// when no scheme is present. It recognises
// any "scheme://" prefix, not just http/https, so we don't mangle a
// deliberately-specified non-HTTP scheme before falling back below.
func ensureScheme(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}

// stripWWW removes a single leading "www." label from a host.
func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}

// fallbackCanonical handles URLs that fail to parse: a best-effort
// host-only lowercasing and www-strip, preserving the remainder verbatim.
func fallbackCanonical(raw string) string {
	s := raw
	if idx := strings.Index(s, "://"); idx != -1 {
		s = s[idx+3:]
	}

	splitAt := len(s)
	for _, sep := range []string{"/", "?", "#"} {
		if i := strings.Index(s, sep); i != -1 && i < splitAt {
			splitAt = i
		}
	}
	host := s[:splitAt]
	rest := s[splitAt:]

	host = stripWWW(strings.ToLower(host))

	return "https://" + host + rest
}
