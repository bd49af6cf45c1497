package sid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_Length(t *testing.T) {
	id := Generate()
	assert.Len(t, id, Length)
}

func TestGenerate_Alphanumeric(t *testing.T) {
	for range 100 {
		id := Generate()
		for _, c := range id {
			assert.True(t, strings.ContainsRune(alphabet, c), "unexpected character %q in sid %q", c, id)
		}
	}
}

func TestGenerate_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for range 10000 {
		id := Generate()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate sid generated: %s", id)
		seen[id] = struct{}{}
	}
}
