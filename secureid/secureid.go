// Package secureid generates opaque identifiers and secrets from
// cryptographically secure random bytes. It is the platform's only entropy
// source for second-factor secrets, recovery tokens, and challenge codes.
package secureid

import (
	"crypto/rand"
	"errors"
	"strings"
)

const (
	// AlphabetLower is the general-purpose lowercase alphanumeric preset.
	AlphabetLower = "abcdefghijklmnopqrstuvwxyz1234567890"

	// AlphabetHex is the hex-like preset used for session and secret
	// oriented identifiers.
	AlphabetHex = "abcdef1234567890"
)

const groupSize = 4

var (
	ErrInvalidLength   = errors.New("secureid: length must be positive")
	ErrEmptyAlphabet   = errors.New("secureid: alphabet must not be empty")
	ErrAlphabetTooWide = errors.New("secureid: alphabet exceeds 256 symbols")
)

// Generate draws n cryptographically secure random bytes and maps each byte
// modulo the alphabet size to a character. When grouped is true a dash is
// inserted every four output characters (never leading).
func Generate(n int, grouped bool, alphabet string) (string, error) {
	if n <= 0 {
		return "", ErrInvalidLength
	}
	if alphabet == "" {
		return "", ErrEmptyAlphabet
	}
	if len(alphabet) > 256 {
		return "", ErrAlphabetTooWide
	}

	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(n + n/groupSize)
	for i, by := range raw {
		if grouped && i != 0 && i%groupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(alphabet[int(by)%len(alphabet)])
	}

	return b.String(), nil
}

// NewID generates an n-character identifier from the lowercase preset.
func NewID(n int, grouped bool) (string, error) {
	return Generate(n, grouped, AlphabetLower)
}

// NewSecret generates an n-character secret-oriented identifier from the
// hex-like preset.
func NewSecret(n int, grouped bool) (string, error) {
	return Generate(n, grouped, AlphabetHex)
}
