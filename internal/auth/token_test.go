// ABOUTME: Unit tests for JWT token verification and generation
// ABOUTME: Tests valid tokens, invalid tokens, expired tokens and algorithm confusion

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_ValidToken(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret-key-for-jwt-signing"))

	token, expiresAt, err := verifier.Generate("account-123", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	got, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "account-123", got)
}

func TestJWTVerifier_InvalidToken(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret-key-for-jwt-signing"))
	other, _, err := NewJWTVerifier([]byte("different-secret")).Generate("account-123", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "garbage token", token: "not-a-jwt-token"},
		{name: "malformed JWT", token: "header.payload.signature"},
		{name: "wrong secret", token: other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	verifier := NewJWTVerifier([]byte("test-secret-key-for-jwt-signing"))

	token, _, err := verifier.Generate("account-123", -time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier_MissingSubject(t *testing.T) {
	secret := []byte("test-secret-key-for-jwt-signing")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	_, err = NewJWTVerifier(secret).Verify(signed)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestJWTVerifier_RejectsOtherHMACAlgorithms(t *testing.T) {
	secret := []byte("test-secret-key-for-jwt-signing")
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "account-123",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	_, err = NewJWTVerifier(secret).Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
