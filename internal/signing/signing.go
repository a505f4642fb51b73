// Package signing implements the HMAC-SHA256 envelope codec used by the
// progress and completion webhooks. Callers must sign the literal outgoing
// byte string and verify the literal incoming byte string; re-serialization
// before verification breaks signatures via whitespace and key-order drift.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Header is the HTTP header carrying the hex-encoded signature.
const Header = "x-signature"

// Sign computes the hex-encoded HMAC-SHA256 of payload under secret.
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sigHex is a valid signature for payload under secret.
// Comparison is constant-time; signatures of a different length never verify.
func Verify(secret, payload []byte, sigHex string) bool {
	expected := Sign(secret, payload)
	if len(expected) != len(sigHex) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(sigHex)) == 1
}
