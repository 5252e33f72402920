package referral

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode()
	require.NoError(t, err)
	assert.Len(t, code, CodeLength)

	for _, r := range code {
		assert.True(t, strings.ContainsRune(alphabet, r), "unexpected character %q", r)
	}
}

func TestGenerateCodeUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.False(t, seen[code], "duplicate code %q", code)
		seen[code] = true
	}
}
