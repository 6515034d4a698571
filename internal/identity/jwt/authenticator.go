// Package jwt issues and verifies HS256 bearer tokens.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/airq-auth/internal/domain"
	"github.com/bissquit/airq-auth/internal/identity"
	"github.com/golang-jwt/jwt/v5"
)

// Config holds token settings.
type Config struct {
	SecretKey     string
	TokenDuration time.Duration
	Issuer        string
}

// Claims are the token claims. The subject is the user ID.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator implements identity.Authenticator.
type Authenticator struct {
	config Config
	now    func() time.Time
}

// NewAuthenticator creates a new JWT authenticator.
func NewAuthenticator(config Config) *Authenticator {
	return &Authenticator{config: config, now: time.Now}
}

// GenerateToken signs a token for user.
func (a *Authenticator) GenerateToken(_ context.Context, user *domain.User) (string, error) {
	now := a.now()
	claims := Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    a.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.TokenDuration)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature, algorithm, issuer and expiry.
// Every failure is reported as identity.ErrInvalidToken wrapping the cause.
func (a *Authenticator) ValidateToken(_ context.Context, tokenString string) (string, domain.Role, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.config.Issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(a.config.SecretKey), nil
	}, opts...)
	if err != nil {
		return "", "", errors.Join(identity.ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", "", errors.Join(identity.ErrInvalidToken, errors.New("missing subject"))
	}
	if !claims.Role.Valid() {
		return "", "", errors.Join(identity.ErrInvalidToken, fmt.Errorf("unknown role %q", claims.Role))
	}

	return claims.Subject, claims.Role, nil
}
