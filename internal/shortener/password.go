package shortener

import (
	"context"
	"errors"

	"github.com/urlify/urlify/internal/errx"
	"github.com/urlify/urlify/internal/passhash"
)

// VerifyPassword checks a candidate password against a protected
// link's stored hash and returns the destination URL on a match.
// Clicks are not counted here; the visit was already counted when the
// code was resolved.
func (s *service) VerifyPassword(ctx context.Context, code, password string) (string, error) {
	const op = "shortener.service.VerifyPassword"

	if code == "" {
		return "", errx.E(op, errx.Invalid, errors.New("short code cannot be empty"))
	}

	link, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return "", errx.E(op, errx.KindOf(err), err)
	}

	if !link.PasswordProtected() {
		return "", errx.E(op, errx.Invalid, errors.New("no password required"))
	}

	if err := passhash.Compare(*link.PasswordHash, password); err != nil {
		if errors.Is(err, passhash.ErrMismatch) {
			return "", errx.E(op, errx.Unauthorized, errors.New("incorrect password"))
		}
		// The stored hash itself is unreadable.
		return "", errx.E(op, errx.Internal, err)
	}

	return link.OriginalURL, nil
}
