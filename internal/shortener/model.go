package shortener

import (
	"time"

	"github.com/google/uuid"
)

// Link is the persisted link record. Clicks is the only field mutated
// after creation, by the resolver, once per visit.
type Link struct {
	ID             uuid.UUID
	ShortCode      string
	OriginalURL    string
	PasswordHash   *string // nil means no password gate
	CreatedAt      time.Time
	ExpirationDate time.Time
	Clicks         int64
	OwnerID        *string // nil for anonymous creation
	OwnerName      *string // display-name snapshot at creation time
}

// PasswordProtected reports whether visits must pass the password gate.
func (l Link) PasswordProtected() bool {
	return l.PasswordHash != nil
}

// Expired reports whether the link's expiration date has elapsed.
// Expired records are never deleted; the presentation layer decides
// what to do with them.
func (l Link) Expired(now time.Time) bool {
	return l.ExpirationDate.Before(now)
}
