// Package auth provides password hashing for the credential store.
//
// bcrypt generates a random salt per hash and embeds it, together with the
// cost, in the output:
//
//	$2a$10$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (10 rounds -> 2^10 iterations)
//	 version
//
// Hashing is intentionally slow. Callers must not cache results or skip the
// work on any path.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 10

// MaxPasswordBytes is bcrypt's input limit. Longer inputs would be truncated
// silently, so Hash rejects them.
const MaxPasswordBytes = 72

var (
	// ErrMismatch means the password does not match the hash.
	ErrMismatch = errors.New("auth: password does not match")
	// ErrPasswordTooLong means the password exceeds MaxPasswordBytes.
	ErrPasswordTooLong = fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
)

// PasswordService hashes and verifies passwords with a fixed bcrypt cost.
type PasswordService struct {
	cost int
}

// NewPasswordService returns a PasswordService using cost.
// cost must lie within [bcrypt.MinCost, bcrypt.MaxCost].
func NewPasswordService(cost int) (*PasswordService, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &PasswordService{cost: cost}, nil
}

// NewPasswordServiceForTest returns a PasswordService with bcrypt.MinCost.
// Never use it outside tests.
func NewPasswordServiceForTest() *PasswordService {
	return &PasswordService{cost: bcrypt.MinCost}
}

// Cost reports the configured work factor.
func (p *PasswordService) Cost() int { return p.cost }

// Hash derives a salted bcrypt hash from plaintext.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks plaintext against a stored hash.
//
// Returns nil on match and ErrMismatch on a wrong password. A hash that cannot
// be decoded returns a different, wrapped error; the comparison itself is
// constant-time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
