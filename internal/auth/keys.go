// Package auth holds helpers for the controller's shared-secret credentials.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashToken returns a SHA-256 hash of the token, ignoring surrounding
// whitespace.
func HashToken(token string) string {
	token = strings.TrimSpace(token)

	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// TokenMatches compares a presented token against the hash of the expected
// one in constant time. An empty token never matches.
func TokenMatches(presented, expectedHash string) bool {
	if strings.TrimSpace(presented) == "" || expectedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(presented)), []byte(expectedHash)) == 1
}
