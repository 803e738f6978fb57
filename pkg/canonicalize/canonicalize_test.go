package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeKeyOrdering(t *testing.T) {
	a, err := Canonicalize(map[string]any{"b": 2, "a": 1, "c": 3})
	require.NoError(t, err)
	b, err := Canonicalize(map[string]any{"c": 3, "a": 1, "b": 2})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.JSONEq(t, `{"a":1,"b":2,"c":3}`, string(a))
}

func TestCanonicalizeUnicodeNormalization(t *testing.T) {
	// Composed U+00E9 vs decomposed U+0065 U+0301 must canonicalize to
	// identical bytes.
	composed, err := Canonicalize(map[string]any{"name": "caf\u00e9"})
	require.NoError(t, err)
	decomposed, err := Canonicalize(map[string]any{"name": "cafe\u0301"})
	require.NoError(t, err)

	assert.Equal(t, composed, decomposed)
}

func TestCanonicalizeDeterministic(t *testing.T) {
	type payload struct {
		Z string  `json:"z"`
		A int     `json:"a"`
		F float64 `json:"f"`
	}
	in := payload{Z: "last", A: 1, F: 2.5}

	first, err := Canonicalize(in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		next, err := Canonicalize(in)
		require.NoError(t, err)
		assert.Equal(t, first, next)
	}
}

func TestHashStability(t *testing.T) {
	h1, err := Hash(map[string]any{"x": 1, "y": "two"})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"y": "two", "x": 1})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashDiffersOnContent(t *testing.T) {
	h1, err := Hash(map[string]any{"x": 1})
	require.NoError(t, err)
	h2, err := Hash(map[string]any{"x": 2})
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}
