// Package password hashes and verifies user credentials.
package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const MinLength = 8

var ErrTooShort = errors.New("password too short")

// Hash returns a bcrypt hash of the plaintext password.
func Hash(plain string) (string, error) {
	plain = strings.TrimSpace(plain)
	if len(plain) < MinLength {
		return "", ErrTooShort
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether the plaintext matches the stored hash.
func Verify(hash, plain string) bool {
	if hash == "" || plain == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
