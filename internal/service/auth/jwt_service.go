// Package auth verifies the identity provider's access tokens and the
// operator key that guards maintenance endpoints.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JWTService defines operations on the identity provider's access tokens.
type JWTService interface {
	// GenerateToken signs an access token for userID. The server never hands
	// these out; they are for local development and tests.
	GenerateToken(ctx context.Context, userID uuid.UUID) (string, error)

	// ValidateToken validates the provided access token string and extracts the claims.
	// Returns the claims containing user information if the token is valid,
	// or an error if validation fails (expired, invalid signature, etc.).
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims is the verified identity carried by an access token.
type Claims struct {
	// UserID is the token subject parsed as a user id.
	UserID uuid.UUID `json:"uid,omitempty"`

	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
