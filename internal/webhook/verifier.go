// Package webhook authenticates and parses payment processor notifications.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidSignature reports a notification whose signature does not match its body.
var ErrInvalidSignature = errors.New("invalid notification signature")

// Verifier checks HMAC-SHA256 signatures over raw notification bodies.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier for the shared webhook secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify compares the claimed hex signature against the HMAC of raw in constant time.
// raw must be the body exactly as received.
func (v *Verifier) Verify(raw []byte, signature string) error {
	if v == nil || len(v.secret) == 0 {
		return ErrInvalidSignature
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrInvalidSignature
	}
	expected := Sign(v.secret, raw)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the lowercase hex HMAC-SHA256 of payload under secret.
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
