// Package ingest is the webhook boundary: it authenticates, parses, and
// processes inbound bank transaction events through the detection pipeline.
package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Bank-Signature"

// ValidateSignature reports whether signature is the hex HMAC-SHA256 of
// payload under secret. Comparison is constant-time and the check fails
// closed: a missing secret, malformed hex, or length mismatch is false,
// never an error.
func ValidateSignature(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(provided, mac.Sum(nil))
}

// ComputeSignature returns the hex HMAC-SHA256 of payload under secret.
// Used by tests and by provider simulators.
func ComputeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
