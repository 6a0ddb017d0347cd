package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
)

// NonceBytes is the entropy of an OAuth state value.
const NonceBytes = 32

// GenerateNonce returns length random bytes, URL-safe base64 encoded without padding.
func GenerateNonce(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NonceEqual compares in constant time. Empty values never match.
func NonceEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
