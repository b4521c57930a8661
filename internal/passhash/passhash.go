// Package passhash hashes and verifies link passwords with bcrypt.
package passhash

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt cost factor for new hashes. Stored hashes carry
// their own cost, so changing this never invalidates existing records.
const Cost = 10

// ErrMismatch reports a candidate password that does not match the
// stored hash.
var ErrMismatch = errors.New("password does not match")

// Hash returns the bcrypt hash of password.
func Hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Compare checks candidate against a stored hash. The comparison is
// constant-time inside bcrypt. Returns ErrMismatch on a wrong password
// and the underlying error when the hash itself is malformed.
func Compare(hash, candidate string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}
