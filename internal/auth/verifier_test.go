package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"bustrack/internal/domain"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerify_ValidToken(t *testing.T) {
	t.Parallel()

	v := NewVerifier(testSecret)
	token := signToken(t, testSecret, Claims{
		Role: "driver",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "D1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.SubjectID != "D1" {
		t.Errorf("expected subject D1, got %s", identity.SubjectID)
	}
	if identity.Role != domain.RoleDriver {
		t.Errorf("expected role driver, got %s", identity.Role)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	v := NewVerifier(testSecret)
	token := signToken(t, "other-secret", Claims{
		Role:             "driver",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "D1"},
	})

	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	t.Parallel()

	v := NewVerifier(testSecret)
	token := signToken(t, testSecret, Claims{
		Role: "parent",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "P1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_MissingSubject(t *testing.T) {
	t.Parallel()

	v := NewVerifier(testSecret)
	token := signToken(t, testSecret, Claims{Role: "admin"})

	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_UnknownRole(t *testing.T) {
	t.Parallel()

	v := NewVerifier(testSecret)
	token := signToken(t, testSecret, Claims{
		Role:             "janitor",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "J1"},
	})

	if _, err := v.Verify(token); !errors.Is(err, ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole, got %v", err)
	}
}
