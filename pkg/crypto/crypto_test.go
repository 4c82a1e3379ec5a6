package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	c, err := NewTokenCipher("s3cret")
	require.NoError(t, err)

	sealed, err := c.Seal("EAAB-token")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "EAAB-token")

	again, err := c.Seal(sealed)
	require.NoError(t, err)
	assert.Equal(t, sealed, again, "sealing twice is a no-op")

	plain, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "EAAB-token", plain)
}

func TestOpenPlainTextPassesThrough(t *testing.T) {
	c, err := NewTokenCipher("s3cret")
	require.NoError(t, err)

	plain, err := c.Open("legacy-token")
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", plain)
}

func TestNilCipher(t *testing.T) {
	c, err := NewTokenCipher("")
	require.NoError(t, err)
	assert.Nil(t, c)

	v, err := c.Seal("token")
	require.NoError(t, err)
	assert.Equal(t, "token", v)

	other, _ := NewTokenCipher("k")
	sealed, _ := other.Seal("token")
	_, err = c.Open(sealed)
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestWrongKeyFails(t *testing.T) {
	a, _ := NewTokenCipher("one")
	b, _ := NewTokenCipher("two")
	sealed, err := a.Seal("token")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.Error(t, err)
}
