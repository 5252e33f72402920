package token

import (
	"errors"
	"testing"
	"time"

	"github.com/coinchartfun/coinchart-backend/internal/pkg/env"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	env.Env = map[string]string{"JWT_SECRET": "test-secret"}

	tok, err := Issue(42, "0xabc")
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	claims, err := Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "0xabc", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(TokenTTL), claims.ExpiresAt.Time, time.Minute)
}

func TestParseRejectsGarbage(t *testing.T) {
	env.Env = map[string]string{"JWT_SECRET": "test-secret"}

	_, err := Parse("not-a-token")
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestParseRejectsExpired(t *testing.T) {
	env.Env = map[string]string{"JWT_SECRET": "test-secret"}

	claims := Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "0xabc",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = Parse(tok)
	assert.True(t, errors.Is(err, ErrExpired))
}

func TestParseRejectsWrongSecret(t *testing.T) {
	env.Env = map[string]string{"JWT_SECRET": "test-secret"}

	claims := Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "0xabc",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, err = Parse(tok)
	assert.Error(t, err)
}
