// Package idgen generates record identifiers.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique identifiers. Implementations must be safe
// for concurrent use.
type Generator interface {
	Generate() (uuid.UUID, error)
}

type v4Gen struct{}

// NewV4 returns a Generator producing random UUID v4 values.
func NewV4() Generator { return v4Gen{} }

func (v4Gen) Generate() (uuid.UUID, error) {
	return uuid.New(), nil
}

type v7Gen struct {
	retries int
}

// Option configures a v7 generator.
type Option func(*v7Gen)

// WithRetries sets how many extra attempts to make when uuid.NewV7
// fails (entropy exhaustion). Defaults to 1.
func WithRetries(n int) Option {
	return func(g *v7Gen) {
		if n >= 0 {
			g.retries = n
		}
	}
}

// NewV7 returns a Generator producing time-ordered UUID v7 values,
// which keep the primary-key index append-mostly.
func NewV7(opts ...Option) Generator {
	g := &v7Gen{retries: 1}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *v7Gen) Generate() (uuid.UUID, error) {
	var last error
	for attempt := 0; attempt <= g.retries; attempt++ {
		id, err := uuid.NewV7()
		if err == nil {
			return id, nil
		}
		last = err
	}
	return uuid.Nil, fmt.Errorf("uuid v7 generation failed after %d attempts: %w", g.retries+1, last)
}
