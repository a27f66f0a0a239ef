package rest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Signature verification modes for inbound webhook callbacks.
const (
	// SignatureModeStrict rejects callbacks with a missing or wrong signature.
	SignatureModeStrict = "strict"
	// SignatureModeWarn logs signature failures but processes the callback.
	SignatureModeWarn = "warn"
	// SignatureModeSkip disables verification entirely.
	SignatureModeSkip = "skip"
)

// verifySignature checks the platform callback signature: base64 of the
// HMAC-SHA256 of the raw request body keyed with the bot secret.
func verifySignature(secret string, body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
