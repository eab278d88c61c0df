package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// prefix is the only digest algorithm accepted in the X-Hub-Signature-256
// header.
const prefix = "sha256="

// Verifier checks the authenticity and integrity of webhook payloads using the
// secret mutually agreed upon by this gateway and the GitHub App.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier keyed by the provided shared secret. A
// Verifier with an empty secret rejects everything.
func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
	}
}

// Configured returns true if the Verifier has a secret to verify with.
func (v *Verifier) Configured() bool {
	return len(v.secret) > 0
}

// Verify returns true if header carries a valid HMAC-SHA256 of body. The header
// must have the form "sha256=<hex>". The hex digest is compared byte for byte
// in constant time, so it must be lowercase as GitHub sends it. An uppercase
// digest does not verify.
func (v *Verifier) Verify(body []byte, header string) bool {
	if !v.Configured() || !strings.HasPrefix(header, prefix) {
		return false
	}
	received := []byte(strings.TrimPrefix(header, prefix))
	expected := []byte(hex.EncodeToString(sum(body, v.secret)))
	return hmac.Equal(received, expected)
}

// Generate returns the value of the X-Hub-Signature-256 header GitHub would
// send for body when configured with secret. It is meant for tests and
// tooling; the verification path never calls it.
func Generate(body []byte, secret string) string {
	return prefix + hex.EncodeToString(sum(body, []byte(secret)))
}

func sum(body []byte, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body) // nolint: errcheck
	return mac.Sum(nil)
}
