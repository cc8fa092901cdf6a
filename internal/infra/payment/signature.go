package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// verifySignature compares signature against HMAC-SHA256(data, secret) in hex.
// Empty signatures never verify; the comparison is constant-time.
func verifySignature(secret string, data []byte, signature string) bool {
	if signature == "" || secret == "" {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
