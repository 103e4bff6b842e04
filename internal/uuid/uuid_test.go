package uuid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrefixed(t *testing.T) {
	id := NewPrefixed(PrefixOffline)
	require.True(t, strings.HasPrefix(id, "offline_"))

	prefix, u, err := SplitPrefixed(id)
	require.NoError(t, err)
	assert.Equal(t, PrefixOffline, prefix)
	assert.EqualValues(t, 4, u.Version())
}

func TestNewPrefixed_unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewPrefixed(PrefixSync)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestSplitPrefixed_invalid(t *testing.T) {
	for _, id := range []string{"", "nounderscore", "_" + New(), "offline_not-a-uuid"} {
		_, _, err := SplitPrefixed(id)
		assert.Error(t, err, "SplitPrefixed(%q)", id)
	}
}

func TestHasPrefix(t *testing.T) {
	id := NewPrefixed(PrefixWeather)
	assert.True(t, HasPrefix(id, PrefixWeather))
	assert.False(t, HasPrefix(id, PrefixOffline))
	assert.False(t, HasPrefix("weather_123", PrefixWeather))
}

func TestShortCode(t *testing.T) {
	for _, n := range []int{0, 6, 40} {
		code := ShortCode(n)
		assert.Len(t, code, n)
		for _, r := range code {
			assert.Contains(t, codeAlphabet, string(r))
		}
	}
	assert.NotEqual(t, ShortCode(12), ShortCode(12))
}
