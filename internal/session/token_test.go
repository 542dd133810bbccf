// ABOUTME: Tests for session token signing and verification
// ABOUTME: Covers round trips, expiry, tampering and signing method checks

package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/blogsys/internal/account"
)

func TestSigner_RoundTrip(t *testing.T) {
	s := NewSigner([]byte("test-secret"))

	token, err := s.Sign(&account.Caller{ID: "u1", Role: account.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	caller, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, &account.Caller{ID: "u1", Role: account.RoleAdmin}, caller)
}

func TestSigner_Expired(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := s.Sign(&account.Caller{ID: "u1", Role: account.RoleUser}, time.Hour)
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestSigner_WrongSecret(t *testing.T) {
	token, err := NewSigner([]byte("one")).Sign(&account.Caller{ID: "u1"}, time.Hour)
	require.NoError(t, err)

	_, err = NewSigner([]byte("two")).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSigner_Garbage(t *testing.T) {
	_, err := NewSigner([]byte("secret")).Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSigner_MissingSub(t *testing.T) {
	secret := []byte("secret")
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	_, err = NewSigner(secret).Verify(signed)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestSigner_RejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewSigner([]byte("secret")).Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSigner_SignRequiresCaller(t *testing.T) {
	_, err := NewSigner([]byte("secret")).Sign(nil, time.Hour)
	assert.ErrorIs(t, err, ErrMissingClaim)
}
