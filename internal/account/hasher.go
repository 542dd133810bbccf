// ABOUTME: One-way password hashing with bcrypt at a fixed work factor
// ABOUTME: Verification lives with the session provider, not here

package account

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor used for stored password hashes.
const BcryptCost = 10

// Hasher turns a plaintext secret into a salted one-way hash.
type Hasher interface {
	Hash(plaintext string) (string, error)
}

// BcryptHasher hashes with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher at BcryptCost.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{cost: BcryptCost}
}

// Hash returns the bcrypt hash of plaintext.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
