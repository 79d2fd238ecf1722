package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the cost factor for hashing the admin key.
const BcryptCost = 12

// HashAdminKey returns the bcrypt hash to place in auth.admin.key_hash.
func HashAdminKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash admin key: %w", err)
	}
	return string(hash), nil
}

// ValidateAdminKey checks a presented admin key against the configured bcrypt hash.
func ValidateAdminKey(providedKey, storedHash string) bool {
	if providedKey == "" || storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedKey)) == nil
}
