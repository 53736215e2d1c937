package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 10

	// MinAPIKeyLength is the shortest API key accepted in configuration.
	MinAPIKeyLength = 16
)

// HashAPIKey hashes an API key using bcrypt so that only the hash needs to
// be stored in configuration.
func HashAPIKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// KeyChecker verifies presented API keys against a configured plain key or
// bcrypt hash.
type KeyChecker struct {
	plain string
	hash  string
}

// NewKeyChecker creates a checker. A configured hash takes precedence.
func NewKeyChecker(plain, hash string) *KeyChecker {
	return &KeyChecker{plain: plain, hash: strings.TrimSpace(hash)}
}

// Configured reports whether any key is set.
func (k *KeyChecker) Configured() bool {
	return k != nil && (k.plain != "" || k.hash != "")
}

// Check compares a presented key in constant time.
func (k *KeyChecker) Check(presented string) bool {
	if !k.Configured() || presented == "" {
		return false
	}
	if k.hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(k.hash), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(k.plain)) == 1
}

// GenerateAPIKey returns a random URL-safe key of n random bytes.
func GenerateAPIKey(n int) (string, error) {
	if n < MinAPIKeyLength {
		n = MinAPIKeyLength
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateSecret returns a random secret suitable for signing tokens.
func GenerateSecret() (string, error) {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
