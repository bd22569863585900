package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, c jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestParseToken_Verified(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := sign(t, "s3cret", jwt.MapClaims{
		"sub":   "u1",
		"email": "ada@example.org",
		"exp":   exp.Unix(),
	})

	id, err := ParseToken(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "ada@example.org", id.Email)
	assert.True(t, id.ExpiresAt.Equal(exp))
}

func TestParseToken_WrongSecret(t *testing.T) {
	token := sign(t, "s3cret", jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(time.Hour).Unix()})

	_, err := ParseToken(token, "other")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_Expired(t *testing.T) {
	token := sign(t, "s3cret", jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Minute).Unix()})

	_, err := ParseToken(token, "s3cret")
	assert.ErrorIs(t, err, ErrExpiredToken)

	_, err = ParseToken(token, "")
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseToken_Unverified(t *testing.T) {
	token := sign(t, "server-only", jwt.MapClaims{"sub": "u2", "exp": time.Now().Add(time.Hour).Unix()})

	id, err := ParseToken(token, "")
	require.NoError(t, err)
	assert.Equal(t, "u2", id.UserID)
}

func TestParseToken_MissingSubject(t *testing.T) {
	token := sign(t, "s3cret", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})

	_, err := ParseToken(token, "s3cret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseToken_Garbage(t *testing.T) {
	_, err := ParseToken("not.a.jwt", "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
