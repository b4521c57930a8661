// Package urlx normalizes and validates the target URLs submitted for
// shortening. The same check gates stored URLs before a redirect is
// issued, so a corrupted record can never send a visitor to a
// malformed destination.
package urlx

import (
	"errors"
	"regexp"
	"strings"
)

// MaxURLLength bounds submitted URLs.
const MaxURLLength = 2048

// ErrInvalid reports a URL that fails the shape check after
// normalization.
var ErrInvalid = errors.New("invalid url")

// shapeRE accepts scheme://<first char not space/$/./?/#><no whitespace>.
// The first character class also requires at least two characters after
// the scheme separator.
var shapeRE = regexp.MustCompile(`^(http|https)://[^\s$.?#].[^\s]*$`)

// Normalize prepends https:// when the input carries no http(s) scheme,
// then validates the result against the accepted shape. It returns the
// normalized URL or ErrInvalid.
func Normalize(raw string) (string, error) {
	if raw == "" {
		return "", ErrInvalid
	}
	if len(raw) > MaxURLLength {
		return "", ErrInvalid
	}

	normalized := raw
	if !strings.HasPrefix(normalized, "http://") && !strings.HasPrefix(normalized, "https://") {
		normalized = "https://" + normalized
	}

	if !shapeRE.MatchString(normalized) {
		return "", ErrInvalid
	}

	return normalized, nil
}

// Valid reports whether a URL already passes the shape check as-is.
// Used to revalidate stored URLs at redirect time.
func Valid(u string) bool {
	return len(u) <= MaxURLLength && shapeRE.MatchString(u)
}
