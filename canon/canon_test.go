package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeys(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2}
	b := map[string]any{"a": 2, "b": 1}

	encA, err := Marshal(a)
	require.NoError(t, err)
	encB, err := Marshal(b)
	require.NoError(t, err)

	assert.Equal(t, string(encA), string(encB))
	assert.Equal(t, `{"a":2,"b":1}`, string(encA))
}

func TestMarshalIsCompact(t *testing.T) {
	enc, err := Marshal(map[string]any{"x": []any{1, 2, 3}})
	require.NoError(t, err)
	assert.NotContains(t, string(enc), " ")
	assert.NotContains(t, string(enc), "\n")
}

func TestHashStableUnderReorder(t *testing.T) {
	h := func(v any) string {
		enc, err := Marshal(v)
		require.NoError(t, err)
		sum := sha256.Sum256(enc)
		return hex.EncodeToString(sum[:])
	}

	h1 := h(map[string]any{"z": 1, "y": map[string]any{"b": 1, "a": 2}})
	h2 := h(map[string]any{"y": map[string]any{"a": 2, "b": 1}, "z": 1})
	assert.Equal(t, h1, h2)
}
