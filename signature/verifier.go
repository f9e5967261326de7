package signature

import (
	"crypto/hmac"
	"encoding/hex"
	"strings"
)

// Verify checks a signature header value against payload and secret.
func (s *Signer) Verify(payload []byte, secret, header string) bool {
	return Verify(payload, secret, header)
}

// Verify checks a signature header value against payload and secret in
// constant time. Headers without the "sha256=" scheme never verify.
func Verify(payload []byte, secret, header string) bool {
	digest, ok := strings.CutPrefix(header, Scheme)
	if !ok {
		return false
	}
	got, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(strings.TrimPrefix(Sign(payload, secret), Scheme)) //nolint:errcheck // Sign always emits valid hex
	return hmac.Equal(got, want)
}
