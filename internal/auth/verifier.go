// Package auth verifies credentials issued by the external identity system.
// Token issuance, user records and password flows all live elsewhere; this
// package only answers "who is this and what role do they act under".
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"bustrack/internal/domain"
)

var (
	// ErrInvalidToken is returned when a credential cannot be verified.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnknownRole is returned when a token carries a role outside the
	// driver/parent/admin set.
	ErrUnknownRole = errors.New("unknown role")
)

// Claims are the token claims this system consumes.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens signed by the identity system.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for HMAC-signed tokens.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token, returning the subject identity.
func (v *Verifier) Verify(tokenString string) (domain.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return domain.Identity{}, ErrInvalidToken
	}

	if claims.Subject == "" {
		return domain.Identity{}, ErrInvalidToken
	}

	role := domain.Role(claims.Role)
	switch role {
	case domain.RoleDriver, domain.RoleParent, domain.RoleAdmin:
	default:
		return domain.Identity{}, ErrUnknownRole
	}

	return domain.Identity{SubjectID: claims.Subject, Role: role}, nil
}
