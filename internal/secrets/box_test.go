package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0000000000000000000000000000000000000000000000000000000000000001"

func TestBoxRoundTrip(t *testing.T) {
	box, err := NewBox(testKey)
	require.NoError(t, err)

	ct, err := box.Encrypt("whsec_super_secret")
	require.NoError(t, err)
	require.NotEqual(t, "whsec_super_secret", ct)

	plain, err := box.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "whsec_super_secret", plain)
}

func TestBoxWrongKey(t *testing.T) {
	box1, err := NewBox(testKey)
	require.NoError(t, err)
	box2, err := NewBox(strings.Repeat("ab", 32))
	require.NoError(t, err)

	ct, err := box1.Encrypt("whsec_super_secret")
	require.NoError(t, err)

	_, err = box2.Decrypt(ct)
	assert.Error(t, err)
}

func TestBoxNoKey(t *testing.T) {
	box, err := NewBox("")
	require.NoError(t, err)

	_, err = box.Decrypt("anything")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestBoxBadKey(t *testing.T) {
	_, err := NewBox("not-hex")
	assert.Error(t, err)

	_, err = NewBox("abcd") // too short
	assert.Error(t, err)
}
