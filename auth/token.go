package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrEmptySecret is returned when signing or verifying without a secret.
var ErrEmptySecret = errors.New("jwt secret is empty")

// GenerateToken mints an HS256 token for subject. A non-positive ttl yields
// a token that is already expired.
func GenerateToken(subject, role string, projects []string, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if !ValidRole(role) {
		return "", fmt.Errorf("unknown role: %s", role)
	}

	now := time.Now()
	claims := Claims{
		Role:     role,
		Projects: projects,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken verifies signature, algorithm, issuer and expiry of a token.
func ValidateToken(tokenString, secret string) (*Claims, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !ValidRole(claims.Role) {
		return nil, fmt.Errorf("invalid token: unknown role %q", claims.Role)
	}
	return claims, nil
}
