// Package auth provides the credential primitives used by the ingestion API.
// Project tokens are high-entropy bearer secrets stored only as SHA-256 hashes;
// the admin key is a single operator secret stored as a bcrypt hash in configuration.
// See internal/middleware/auth.go for the request-time checks built on these primitives.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// TokenRandomBytes is the size of the random part of a project token (256 bits).
	TokenRandomBytes = 32

	// DefaultTokenPrefix identifies tokens issued by this service.
	DefaultTokenPrefix = "rl_live_"
)

// GenerateToken creates a new project token with the given prefix.
// Returns the raw token (shown once, never stored) and its hash (stored).
func GenerateToken(prefix string) (raw string, hash string, err error) {
	randomBytes := make([]byte, TokenRandomBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	raw = prefix + hex.EncodeToString(randomBytes)
	return raw, HashToken(raw), nil
}

// HashToken returns the lowercase hex SHA-256 digest of raw.
// The digest is deterministic so it can be used as a lookup key.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// WellFormedToken reports whether raw has the shape of a token issued with prefix.
// It lets callers reject garbage without a database round trip.
func WellFormedToken(prefix, raw string) bool {
	if !strings.HasPrefix(raw, prefix) {
		return false
	}
	body := raw[len(prefix):]
	if len(body) != TokenRandomBytes*2 {
		return false
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// ExtractBearerToken extracts the credential from an Authorization header.
// Expected format: "Bearer rl_live_abc123..."
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}
