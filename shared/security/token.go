package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// TokenBytes is the amount of entropy in generated tokens (256 bits).
const TokenBytes = 32

// GenerateToken returns a hex-encoded random token of TokenBytes bytes.
func GenerateToken() (string, error) {
	bytes := make([]byte, TokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// HashToken returns the SHA-256 hex digest of a token. Only digests are persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
