package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex-encoded HMAC-SHA256 of the raw query string using the
// account secret. The signature must be computed over the exact byte sequence
// sent on the wire, so callers pass the already-encoded query.
func Sign(secret, rawQuery string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(rawQuery))
	return hex.EncodeToString(mac.Sum(nil))
}
