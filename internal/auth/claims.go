// Package auth decodes the identity claims issued upstream. Token
// issuance and role management live in the identity service; presence
// only verifies the signature and reads the claims.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSigningKey = errors.New("auth: signing key required")
	ErrMissingIssuer     = errors.New("auth: issuer required")
	ErrMissingToken      = errors.New("auth: token required")
	ErrInvalidToken      = errors.New("auth: invalid token")
	ErrMissingUserID     = errors.New("auth: user id required")
)

// SessionClaims mirrors the JWT payload emitted by the identity service.
type SessionClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 session tokens.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret []byte, issuer string) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSigningKey
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	return &Verifier{secret: append([]byte(nil), secret...), issuer: issuer}, nil
}

// ParseToken validates the token string and returns the claims.
func (v *Verifier) ParseToken(tokenString string) (SessionClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return SessionClaims{}, ErrMissingToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, t.Header["alg"])
			}
			return v.secret, nil
		},
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return SessionClaims{}, ErrInvalidToken
	}
	if claims.UserID == 0 {
		return SessionClaims{}, ErrMissingUserID
	}
	return *claims, nil
}
