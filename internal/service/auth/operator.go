package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// OperatorKeyVerifier checks the shared key that guards the cleanup and
// process triggers against a bcrypt hash.
type OperatorKeyVerifier struct {
	hash []byte
}

// NewOperatorKeyVerifier creates a verifier for hash. An empty hash rejects
// every key.
func NewOperatorKeyVerifier(hash string) *OperatorKeyVerifier {
	return &OperatorKeyVerifier{hash: []byte(hash)}
}

// Enabled reports whether an operator key is configured.
func (v *OperatorKeyVerifier) Enabled() bool {
	return v != nil && len(v.hash) > 0
}

// Verify returns nil when key matches the configured hash.
func (v *OperatorKeyVerifier) Verify(key string) error {
	if !v.Enabled() || key == "" {
		return ErrInvalidOperatorKey
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(key)); err != nil {
		return ErrInvalidOperatorKey
	}
	return nil
}

// HashOperatorKey produces the bcrypt hash to put in configuration.
func HashOperatorKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash operator key: %w", err)
	}
	return string(hash), nil
}
