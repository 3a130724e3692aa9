// Package auth verifies bearer credentials and yields the caller's user ID.
//
// Tokens are HS256-signed JWTs carrying a subject (the user ID) and an
// expiration. Anything else (other algorithms, missing exp, bad signature,
// malformed structure) is rejected before a request reaches the portfolio
// service.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLen is the shortest accepted signing secret (256 bits).
const MinSecretLen = 32

var (
	// ErrMissingToken is returned when the request carries no bearer token.
	ErrMissingToken = errors.New("auth: missing bearer token")

	// ErrInvalidToken is returned for malformed, unsigned, wrongly signed
	// or otherwise unsupported tokens.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrExpiredToken is returned when the token's exp is in the past.
	ErrExpiredToken = errors.New("auth: token expired")

	// ErrWeakSecret is returned by NewVerifier for secrets shorter than MinSecretLen.
	ErrWeakSecret = errors.New("auth: signing secret too short")
)

// Verifier validates and issues tokens with a shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a verifier for the given HMAC secret.
func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrWeakSecret, MinSecretLen, len(secret))
	}
	return &Verifier{secret: secret, now: time.Now}, nil
}

// Verify parses token and returns its subject.
func (v *Verifier) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", fmt.Errorf("%w: %v", ErrExpiredToken, err)
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Issue signs a token for subject that expires after ttl.
func (v *Verifier) Issue(subject string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
