package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/coinchartfun/coinchart-backend/internal/pkg/env"
	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is how long an issued session token stays valid.
const TokenTTL = 7 * 24 * time.Hour

var (
	ErrMalformed = errors.New("malformed token")
	ErrExpired   = errors.New("token expired")
	ErrInvalid   = errors.New("invalid token")
)

// Claims carries the authenticated wallet identity. The wallet address is the
// subject; UserID is the database record id.
type Claims struct {
	UserID uint `json:"uid"`
	jwt.RegisteredClaims
}

func secret() []byte {
	return []byte(env.GetEnv("JWT_SECRET", ""))
}

// Issue signs a session token for the given user record.
func Issue(userID uint, walletAddress string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   walletAddress,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret())
}

// Parse validates a session token and returns its claims.
func Parse(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret(), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}
