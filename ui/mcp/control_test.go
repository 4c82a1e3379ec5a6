package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBool(t *testing.T) {
	cases := []struct {
		in   any
		want bool
	}{
		{true, true},
		{"false", false},
		{"1", true},
		{float64(0), false},
		{2, true},
	}
	for _, c := range cases {
		got, err := toBool(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%v", c.in)
	}

	_, err := toBool("maybe")
	assert.Error(t, err)
	_, err = toBool([]int{1})
	assert.Error(t, err)
}

func TestToStrings(t *testing.T) {
	assert.Equal(t, []string{"09:00", "18:00"}, toStrings([]any{"09:00", "18:00"}))
	assert.Equal(t, []string{"09:00", "18:00"}, toStrings("09:00, 18:00"))
	assert.Equal(t, []string{"07:30"}, toStrings([]string{"07:30"}))
	assert.Nil(t, toStrings(nil))
}

func TestOptionalBool(t *testing.T) {
	v, err := optionalBool(map[string]any{}, "generate")
	require.NoError(t, err)
	assert.False(t, v)

	v, err = optionalBool(map[string]any{"generate": "true"}, "generate")
	require.NoError(t, err)
	assert.True(t, v)
}
