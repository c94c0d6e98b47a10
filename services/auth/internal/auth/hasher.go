package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/henriquegoncalvesdev/credipesca/services/auth/internal/domain"
)

// DefaultCost is the bcrypt work factor used outside tests.
const DefaultCost = 12

// BcryptHasher hashes and verifies passwords with bcrypt. It is safe for
// concurrent use.
type BcryptHasher struct {
	cost int
}

// HasherOption customizes a BcryptHasher.
type HasherOption func(*BcryptHasher)

// WithCost overrides the bcrypt work factor.
func WithCost(cost int) HasherOption {
	return func(h *BcryptHasher) { h.cost = cost }
}

// NewBcryptHasher creates a hasher with DefaultCost unless overridden.
func NewBcryptHasher(opts ...HasherOption) *BcryptHasher {
	h := &BcryptHasher{cost: DefaultCost}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Cost returns the configured work factor.
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash returns a salted bcrypt digest of plaintext. Inputs longer than 72
// bytes are rejected with domain.ErrPasswordTooLong rather than truncated.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", domain.ErrPasswordTooLong
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. A malformed digest is a
// mismatch.
func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
