// Package signer produces the verifiable HMAC signature sent with every
// outbound delivery. Subscribers verify it over "{timestamp}.{raw body}".
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Scheme is the version prefix of the signature format. It allows algorithm
// migration without breaking older verifiers.
const Scheme = "v1"

// Sign computes "v1=" + hex(HMAC-SHA256("{timestamp}.{payload}", secret)).
// An empty secret still yields a well-formed signature so the header shape is
// constant; subscribers that require a secret must reject empty-keyed traffic
// themselves.
func Sign(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)

	return Scheme + "=" + hex.EncodeToString(mac.Sum(nil))
}
