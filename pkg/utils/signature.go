package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignPayload computes the hex HMAC-SHA256 of body under secret. The
// signature travels in the X-Relay-Signature header and is recomputed by
// the receiver over the exact bytes received.
func SignPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches body under secret.
// The comparison is constant time.
func VerifySignature(body []byte, signature, secret string) bool {
	expected := SignPayload(body, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}
