package store

import "github.com/Harvey-AU/url-content-fetcher/internal/normalize"

// urlVariants returns the small set of URL forms a *byUrl query must
// match against to stay robust against legacy, un-normalised rows:
// the raw string as submitted, its canonical form, a bare host+path
// form with no scheme, and both http:// and https:// prefixed forms.
// New writes always store the canonical form, so over time this
// fan-out becomes unnecessary (see spec §9) but must be tolerated for
// data written before normalisation was consistently applied.
func urlVariants(rawURL string) []string {
	canonical := normalize.Canonical(rawURL)

	bare := canonical
	for _, prefix := range []string{"https://", "http://"} {
		if len(bare) >= len(prefix) && bare[:len(prefix)] == prefix {
			bare = bare[len(prefix):]
			break
		}
	}

	seen := make(map[string]struct{}, 5)
	variants := make([]string, 0, 5)
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		variants = append(variants, v)
	}

	add(rawURL)
	add(canonical)
	add(bare)
	add("http://" + bare)
	add("https://" + bare)

	return variants
}
