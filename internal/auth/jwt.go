// Package auth validates bearer tokens issued by the identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenValidator resolves a bearer token to a user id.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (int, error)
}

// JWTValidator checks HS256 tokens signed with a shared secret.
type JWTValidator struct {
	secret []byte
}

func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

// ValidateToken verifies the signature and expiry and returns the user id from
// the "sub" claim, or "user_id" when sub is absent.
func (v *JWTValidator) ValidateToken(_ context.Context, token string) (int, error) {
	if token == "" {
		return 0, ErrInvalidToken
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if id, ok := userIDClaim(claims["sub"]); ok {
		return id, nil
	}
	if id, ok := userIDClaim(claims["user_id"]); ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: no subject", ErrInvalidToken)
}

func userIDClaim(v any) (int, bool) {
	switch id := v.(type) {
	case string:
		n, err := strconv.Atoi(id)
		return n, err == nil && n > 0
	case float64:
		return int(id), id > 0 && id == float64(int(id))
	}
	return 0, false
}

// Sign issues a token for userID. Used by tooling and tests; the identity
// provider is the issuer in production.
func (v *JWTValidator) Sign(userID int, claims jwt.MapClaims) (string, error) {
	all := jwt.MapClaims{"sub": strconv.Itoa(userID)}
	for k, val := range claims {
		all[k] = val
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, all).SignedString(v.secret)
}
