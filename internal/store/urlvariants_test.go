package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLVariants(t *testing.T) {
	variants := urlVariants("www.ynet.co.il")

	assert.Contains(t, variants, "www.ynet.co.il")
	assert.Contains(t, variants, "https://ynet.co.il")
	assert.Contains(t, variants, "ynet.co.il")
	assert.Contains(t, variants, "http://ynet.co.il")
}

func TestURLVariantsNoDuplicates(t *testing.T) {
	variants := urlVariants("https://example.com")
	seen := map[string]int{}
	for _, v := range variants {
		seen[v]++
	}
	for v, count := range seen {
		assert.Equal(t, 1, count, "variant %q should appear once", v)
	}
}
