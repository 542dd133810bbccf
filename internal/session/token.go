// ABOUTME: HS256 JWT session tokens carrying the caller id and role
// ABOUTME: Tokens are signed with the configured session secret and expire after SessionDuration

package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/2389/blogsys/internal/account"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Signer issues and verifies session tokens.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a signer for secret.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign creates a token for caller that expires after ttl.
func (s *Signer) Sign(caller *account.Caller, ttl time.Duration) (string, error) {
	if caller == nil || caller.ID == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  caller.ID,
		"role": string(caller.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates tokenString and returns the caller it was issued for.
func (s *Signer) Verify(tokenString string) (*account.Caller, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	role, _ := claims["role"].(string)

	return &account.Caller{ID: sub, Role: account.Role(role)}, nil
}
