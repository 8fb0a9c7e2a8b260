// Package password hashes and verifies user credentials. The same scheme
// covers login passwords and recovery mnemonic phrases.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the production bcrypt work factor.
const DefaultCost = 13

// Hasher wraps bcrypt with a fixed cost. Verification is constant-time.
type Hasher struct {
	cost int
}

// New creates a Hasher. Costs below the bcrypt minimum are rejected; tests
// may pass bcrypt.MinCost to keep hashing fast.
func New(cost int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.New("password: cost out of range")
	}
	return &Hasher{cost: cost}, nil
}

// Hash returns the encoded bcrypt hash of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether plain matches the stored encoded hash. A mismatch
// is (false, nil); a malformed or truncated hash is an error, which callers
// must treat as a failed verification.
func (h *Hasher) Verify(plain, encoded string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}
