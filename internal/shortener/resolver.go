package shortener

import (
	"context"
	"errors"

	"github.com/urlify/urlify/internal/errx"
	"github.com/urlify/urlify/internal/urlx"
)

// ResolutionAction is the outcome of resolving a short code.
type ResolutionAction uint8

const (
	// ActionRedirect sends the visitor straight to the original URL.
	ActionRedirect ResolutionAction = iota
	// ActionPasswordRequired tells the caller to challenge the visitor
	// before releasing the destination.
	ActionPasswordRequired
)

// Resolution is the explicit result of a visit; the HTTP layer turns
// it into a transport-level redirect or a password form.
type Resolution struct {
	Action ResolutionAction
	URL    string // set for ActionRedirect
	Code   string
}

// Resolve looks up a short code and decides the visit's outcome.
// The click counter is incremented on arrival, before the password
// gate, so protected and unprotected visits count alike. Expiration is
// deliberately not consulted here.
func (s *service) Resolve(ctx context.Context, code string) (Resolution, error) {
	const op = "shortener.service.Resolve"

	if code == "" {
		return Resolution{}, errx.E(op, errx.Invalid, errors.New("short code cannot be empty"))
	}

	link, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return Resolution{}, errx.E(op, errx.KindOf(err), err)
	}

	// Fire-and-forget from the visitor's perspective: a failed
	// increment must not block the redirect.
	if err := s.store.IncrementClicks(ctx, code); err != nil {
		s.logger.WarnContext(ctx, "click increment failed",
			"short_code", code,
			"error", err.Error(),
		)
	}

	if link.PasswordProtected() {
		return Resolution{Action: ActionPasswordRequired, Code: code}, nil
	}

	// A stored URL must still pass validation before a redirect is
	// issued; a record that fails here is corrupted.
	if !urlx.Valid(link.OriginalURL) {
		return Resolution{}, errx.E(op, errx.Internal,
			errors.New("stored url failed revalidation"))
	}

	return Resolution{Action: ActionRedirect, URL: link.OriginalURL, Code: code}, nil
}
