package shortener

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/urlify/urlify/internal/errx"
	"github.com/urlify/urlify/internal/idgen"
)

// querier abstracts the subset of *pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxStore struct {
	db  querier
	ids idgen.Generator
}

// StoreConfig holds configuration for the pgx store.
type StoreConfig struct {
	IDGenerator idgen.Generator
}

// NewStore creates a Store backed by PostgreSQL.
func NewStore(db querier, config *StoreConfig) Store {
	if config == nil {
		config = &StoreConfig{}
	}

	// v7 keeps the primary key index append-mostly.
	ids := config.IDGenerator
	if ids == nil {
		ids = idgen.NewV7()
	}

	return &pgxStore{db: db, ids: ids}
}

const linkColumns = `id, short_code, original_url, password_hash, created_at, expiration_date, clicks, owner_id, owner_name`

func scanLink(row pgx.Row) (Link, error) {
	var l Link
	err := row.Scan(
		&l.ID,
		&l.ShortCode,
		&l.OriginalURL,
		&l.PasswordHash,
		&l.CreatedAt,
		&l.ExpirationDate,
		&l.Clicks,
		&l.OwnerID,
		&l.OwnerName,
	)
	return l, err
}

// shortCodeConstraint is the unique constraint name on links.short_code
// (see db/schema.sql).
const shortCodeConstraint = "links_short_code_key"

func isCodeUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == shortCodeConstraint
}

func mapStoreError(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errx.E(op, errx.NotFound, err)
	case isCodeUniqueViolation(err):
		return errx.E(op, errx.Conflict, err)
	default:
		return errx.E(op, errx.Unavailable, err)
	}
}

func (s *pgxStore) FindByCode(ctx context.Context, code string) (Link, error) {
	const op = "shortener.store.FindByCode"

	row := s.db.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM links WHERE short_code = $1`, code)

	link, err := scanLink(row)
	if err != nil {
		return Link{}, mapStoreError(op, err)
	}
	return link, nil
}

func (s *pgxStore) FindByOriginalURL(ctx context.Context, url string) (Link, error) {
	const op = "shortener.store.FindByOriginalURL"

	row := s.db.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM links WHERE original_url = $1 ORDER BY created_at LIMIT 1`, url)

	link, err := scanLink(row)
	if err != nil {
		return Link{}, mapStoreError(op, err)
	}
	return link, nil
}

func (s *pgxStore) ExistsCode(ctx context.Context, code string) (bool, error) {
	const op = "shortener.store.ExistsCode"

	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM links WHERE short_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, mapStoreError(op, err)
	}
	return exists, nil
}

func (s *pgxStore) Insert(ctx context.Context, link Link) (Link, error) {
	const op = "shortener.store.Insert"

	if link.ID == uuid.Nil {
		id, err := s.ids.Generate()
		if err != nil {
			return Link{}, errx.E(op, errx.Unavailable, err)
		}
		link.ID = id
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO links (`+linkColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+linkColumns,
		link.ID,
		link.ShortCode,
		link.OriginalURL,
		link.PasswordHash,
		link.CreatedAt,
		link.ExpirationDate,
		link.Clicks,
		link.OwnerID,
		link.OwnerName,
	)

	created, err := scanLink(row)
	if err != nil {
		return Link{}, mapStoreError(op, err)
	}
	return created, nil
}

func (s *pgxStore) IncrementClicks(ctx context.Context, code string) error {
	const op = "shortener.store.IncrementClicks"

	// Single atomic update; concurrent visits never lose increments.
	tag, err := s.db.Exec(ctx,
		`UPDATE links SET clicks = clicks + 1 WHERE short_code = $1`, code)
	if err != nil {
		return mapStoreError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return errx.E(op, errx.NotFound, errors.New("no record for short code"))
	}
	return nil
}

func (s *pgxStore) ListByOwner(ctx context.Context, ownerID string) ([]Link, error) {
	const op = "shortener.store.ListByOwner"

	var (
		rows pgx.Rows
		err  error
	)
	if ownerID == AllOwners {
		rows, err = s.db.Query(ctx,
			`SELECT `+linkColumns+` FROM links ORDER BY created_at DESC`)
	} else {
		rows, err = s.db.Query(ctx,
			`SELECT `+linkColumns+` FROM links WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	}
	if err != nil {
		return nil, mapStoreError(op, err)
	}
	defer rows.Close()

	var links []Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, mapStoreError(op, err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreError(op, err)
	}

	return links, nil
}
