package token

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/prolearn/accounts/internal/domain"
)

// Type distinguishes the two halves of a session pair.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// ErrWrongTokenType is returned when an access token is presented where a
// refresh token is required, or vice versa.
var ErrWrongTokenType = errors.New("token: wrong token type")

// Claims defines the JWT payload. Every token carries a uuid JTI so it can be
// individually denylisted.
type Claims struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType Type   `json:"token_type"`
	jwtlib.RegisteredClaims
}

// Pair contains the access and refresh tokens issued at login.
type Pair struct {
	Access    string `json:"access"`
	Refresh   string `json:"refresh"`
	ExpiresIn int64  `json:"expires_in"`
}

// Generate issues a signed token of the given type for the user.
func Generate(user *domain.User, tokenType Type, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      string(user.Role),
		TokenType: tokenType,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    "prolearn-accounts",
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// GeneratePair issues the access/refresh tokens for a login.
func GeneratePair(user *domain.User, secret string, accessTTL, refreshTTL time.Duration) (Pair, error) {
	access, err := Generate(user, TypeAccess, secret, accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := Generate(user, TypeRefresh, secret, refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh, ExpiresIn: int64(accessTTL.Seconds())}, nil
}

// Parse validates a token signature and expiry and extracts the claims.
func Parse(token string, secret string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}
