// Package signature authenticates webhook payloads sent by the payment processor.
//
// The digest is HMAC-SHA256 over the exact request body bytes, encoded as
// lowercase hex and carried in the X-Webhook-Signature header. Callers must
// verify the bytes they read off the wire, never a re-encoded copy of the
// parsed JSON.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Header is the canonical request header carrying the signature.
const Header = "X-Webhook-Signature"

var (
	ErrMissingSignature    = errors.New("webhook signature missing")
	ErrInvalidSignature    = errors.New("webhook signature mismatch")
	ErrSecretNotConfigured = errors.New("webhook secret not configured")
)

// Sign returns the hex-encoded HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether presented is the signature of body under secret.
// An empty secret or an empty signature never verifies.
func Verify(secret, body []byte, presented string) bool {
	if len(secret) == 0 || presented == "" {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(presented))
}

// Verifier checks webhook signatures against a configured secret.
type Verifier struct {
	secret []byte
	strict bool
}

// NewVerifier creates a Verifier. In strict mode an empty secret rejects every
// request. With strict mode off and no secret, verification is bypassed; that
// is only meant for local development and callers should log it.
func NewVerifier(secret string, strict bool) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		strict: strict,
	}
}

// Enforcing reports whether Check actually verifies signatures.
func (v *Verifier) Enforcing() bool {
	return len(v.secret) > 0 || v.strict
}

// Check validates the signature presented for body.
func (v *Verifier) Check(body []byte, presented string) error {
	if len(v.secret) == 0 {
		if v.strict {
			return ErrSecretNotConfigured
		}
		return nil
	}
	if presented == "" {
		return ErrMissingSignature
	}
	if !Verify(v.secret, body, presented) {
		return ErrInvalidSignature
	}
	return nil
}
