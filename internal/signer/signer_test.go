package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignReproducible(t *testing.T) {
	a := Sign("whsec_test", 1700000000, []byte(`{"id":"1"}`))
	b := Sign("whsec_test", 1700000000, []byte(`{"id":"1"}`))

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "v1="))
	assert.Len(t, a, len("v1=")+64) // hex sha256
}

func TestSignInputSensitivity(t *testing.T) {
	base := Sign("whsec_test", 1700000000, []byte("payload"))

	assert.NotEqual(t, base, Sign("whsec_other", 1700000000, []byte("payload")))
	assert.NotEqual(t, base, Sign("whsec_test", 1700000001, []byte("payload")))
	assert.NotEqual(t, base, Sign("whsec_test", 1700000000, []byte("payload2")))
}

func TestSignMatchesVerifierSide(t *testing.T) {
	// what a subscriber computes over "{timestamp}.{raw body}"
	mac := hmac.New(sha256.New, []byte("whsec_test"))
	mac.Write([]byte("1700000000.payload"))
	want := "v1=" + hex.EncodeToString(mac.Sum(nil))

	require.Equal(t, want, Sign("whsec_test", 1700000000, []byte("payload")))
}

func TestSignEmptySecret(t *testing.T) {
	// signing always happens; an empty key still yields a well-formed value
	sig := Sign("", 1700000000, []byte("payload"))
	assert.True(t, strings.HasPrefix(sig, "v1="))
}
