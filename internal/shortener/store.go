package shortener

import "context"

// AllOwners is the ListByOwner sentinel that selects every owner's
// records. Only the administrative caller may use it.
const AllOwners = "*"

// Store defines the persistence operations over the link collection.
// The short-code unique index is the real uniqueness enforcement;
// ExistsCode is advisory and Insert reports Conflict when a concurrent
// creation wins the race.
type Store interface {
	// FindByCode returns the record for a short code, or NotFound.
	FindByCode(ctx context.Context, code string) (Link, error)

	// FindByOriginalURL returns the first record with this exact
	// original URL, or NotFound. Used for dedup; the column is not
	// uniqueness-enforced.
	FindByOriginalURL(ctx context.Context, url string) (Link, error)

	// ExistsCode reports whether a short code is already taken.
	ExistsCode(ctx context.Context, code string) (bool, error)

	// Insert persists a new record. Returns Conflict when the short
	// code is already present.
	Insert(ctx context.Context, link Link) (Link, error)

	// IncrementClicks atomically adds one visit to the record's click
	// counter.
	IncrementClicks(ctx context.Context, code string) error

	// ListByOwner returns an owner's records, or everyone's when
	// ownerID is AllOwners.
	ListByOwner(ctx context.Context, ownerID string) ([]Link, error)
}
