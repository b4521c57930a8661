// Package codegen produces random short codes for link records.
// Generators are safe for concurrent use and make no uniqueness
// guarantee; uniqueness is the caller's responsibility.
package codegen

import (
	"crypto/rand"
	"errors"
)

// Alphabet is the 62-character set short codes are drawn from.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultLength is the length of auto-assigned short codes.
const DefaultLength = 6

// Generator generates short codes.
// Implementations should be safe for concurrent use.
type Generator interface {
	Generate(length int) (string, error)
}

// alphanumGenerator draws each character independently and uniformly
// from Alphabet.
type alphanumGenerator struct{}

// NewAlphanumeric returns a new alphanumeric code generator.
func NewAlphanumeric() Generator {
	return &alphanumGenerator{}
}

// Generate returns a random alphanumeric string of the given length.
func (g *alphanumGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be positive")
	}

	// 248 is the largest multiple of 62 below 256; bytes at or above it
	// are discarded so the modulo stays uniform.
	const limit = 248

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}
