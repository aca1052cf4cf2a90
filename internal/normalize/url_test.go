package normalize

import "testing"

import "github.com/stretchr/testify/assert"

func TestCanonical(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare_domain", "ynet.co.il", "https://ynet.co.il"},
		{"https_www_trailing_slash", "https://www.ynet.co.il/", "https://ynet.co.il"},
		{"uppercase_scheme_host", "HTTP://ynet.co.il", "https://ynet.co.il"},
		{"preserves_path_case", "https://x.com/Foo?A=B", "https://x.com/Foo?A=B"},
		{"strips_single_www", "https://www.example.com", "https://example.com"},
		{"keeps_port", "https://example.com:8080/path", "https://example.com:8080/path"},
		{"root_path_dropped", "https://example.com/", "https://example.com"},
		{"non_root_trailing_slash_dropped", "https://example.com/a/b/", "https://example.com/a/b"},
		{"single_char_path_kept", "https://example.com/a", "https://example.com/a"},
		{"whitespace_trimmed", "  https://example.com  ", "https://example.com"},
		{"query_preserved_verbatim", "https://example.com/search?Q=Hello&x=1", "https://example.com/search?Q=Hello&x=1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Canonical(tc.input))
		})
	}
}

func TestCanonicalIdempotent(t *testing.T) {
	inputs := []string{
		"ynet.co.il",
		"https://www.ynet.co.il/",
		"HTTP://Example.COM/Path?Q=1#Frag",
		"https://example.com:443/a/b/",
	}
	for _, in := range inputs {
		c := Canonical(in)
		assert.Equal(t, c, Canonical(c), "canonical should be idempotent for %q", in)
	}
}

func TestEquivalent(t *testing.T) {
	assert.True(t, Equivalent("ynet.co.il", "https://www.ynet.co.il/"))
	assert.True(t, Equivalent("ynet.co.il", "HTTP://ynet.co.il"))
	assert.False(t, Equivalent("https://a.test/x", "https://a.test/X"))
}

func TestValidateHostAcceptsPublicDomain(t *testing.T) {
	assert.NoError(t, ValidateHost(Canonical("example.com")))
	assert.NoError(t, ValidateHost(Canonical("api.example.co.uk")))
}

func TestValidateHostRejectsLocalhost(t *testing.T) {
	assert.Error(t, ValidateHost(Canonical("localhost")))
	assert.Error(t, ValidateHost(Canonical("app.localhost")))
	assert.Error(t, ValidateHost(Canonical("internal")))
}

func TestValidateHostRejectsBarePublicSuffix(t *testing.T) {
	assert.Error(t, ValidateHost(Canonical("co.uk")))
}

func TestCanonicalFallbackOnParseFailure(t *testing.T) {
	// Invalid percent-encoding makes url.Parse fail; the fallback path
	// should still lowercase/strip-www the host portion, preserving the
	// unparseable remainder verbatim.
	got := Canonical("https://WWW.Example.com/%gg")
	assert.Equal(t, "https://example.com/%gg", got)
}
