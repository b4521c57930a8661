package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/urlify/urlify/codegen"
	"github.com/urlify/urlify/internal/errx"
	"github.com/urlify/urlify/internal/passhash"
	"github.com/urlify/urlify/internal/urlx"
)

const (
	MinCodeLength = 3
	MaxCodeLength = 15

	DefaultCodeLength    = codegen.DefaultLength
	DefaultInsertRetries = 5
	DefaultLinkTTL       = 30 * 24 * time.Hour
)

// customCodeRE is the accepted shape for caller-chosen codes.
var customCodeRE = regexp.MustCompile(`^[A-Za-z0-9]{3,15}$`)

// RegisterRequest carries the parameters for creating a short link.
// Empty optional fields mean "not provided".
type RegisterRequest struct {
	RawURL         string
	CustomCode     string
	Password       string
	ExpirationDate string // RFC 3339; unparseable values fall back to the default TTL
	OwnerID        string
	OwnerName      string
}

// RegisterResult is the outcome of a registration.
type RegisterResult struct {
	ShortCode string
	// Existing is true when the URL was already registered and the
	// stored code was returned instead of creating a new record.
	Existing bool
}

// Service exposes the core link operations to the HTTP layer.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (RegisterResult, error)
	Resolve(ctx context.Context, code string) (Resolution, error)
	VerifyPassword(ctx context.Context, code, password string) (string, error)
	List(ctx context.Context, ownerID string) ([]Link, error)
}

type service struct {
	store         Store
	gen           codegen.Generator
	logger        *slog.Logger
	codeLength    int
	insertRetries int
	linkTTL       time.Duration
	now           func() time.Time
}

// ServiceConfig holds configuration for the service.
type ServiceConfig struct {
	Generator     codegen.Generator
	Logger        *slog.Logger
	CodeLength    int           // length of auto-assigned codes (default 6)
	InsertRetries int           // attempts to allocate a free generated code (default 5)
	LinkTTL       time.Duration // expiration when the caller supplies none (default 30 days)
	Now           func() time.Time
}

// NewService creates a new service instance.
func NewService(store Store, config *ServiceConfig) Service {
	if config == nil {
		config = &ServiceConfig{}
	}

	gen := config.Generator
	if gen == nil {
		gen = codegen.NewAlphanumeric()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	codeLength := config.CodeLength
	if codeLength < MinCodeLength || codeLength > MaxCodeLength {
		codeLength = DefaultCodeLength
	}

	retries := config.InsertRetries
	if retries <= 0 {
		retries = DefaultInsertRetries
	}

	ttl := config.LinkTTL
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}

	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &service{
		store:         store,
		gen:           gen,
		logger:        logger,
		codeLength:    codeLength,
		insertRetries: retries,
		linkTTL:       ttl,
		now:           now,
	}
}

// Register creates a short link, deduplicating by normalized URL.
func (s *service) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	const op = "shortener.service.Register"

	normalized, err := urlx.Normalize(req.RawURL)
	if err != nil {
		return RegisterResult{}, errx.E(op, errx.Invalid, err)
	}

	// Dedup is global, not per-owner: two owners submitting the same
	// URL share one code and one click counter.
	existing, err := s.store.FindByOriginalURL(ctx, normalized)
	switch {
	case err == nil:
		return RegisterResult{ShortCode: existing.ShortCode, Existing: true}, nil
	case errx.KindOf(err) != errx.NotFound:
		return RegisterResult{}, errx.E(op, errx.KindOf(err), err)
	}

	link := Link{
		OriginalURL:    normalized,
		CreatedAt:      s.now().UTC(),
		ExpirationDate: s.expiration(req.ExpirationDate),
	}

	if req.Password != "" {
		hash, err := passhash.Hash(req.Password)
		if err != nil {
			return RegisterResult{}, errx.E(op, errx.Internal, err)
		}
		link.PasswordHash = &hash
	}

	if req.OwnerID != "" {
		link.OwnerID = &req.OwnerID
	}
	if req.OwnerName != "" {
		link.OwnerName = &req.OwnerName
	}

	if link.ExpirationDate.Before(link.CreatedAt) {
		// Accepted, but almost certainly not what the caller meant.
		s.logger.WarnContext(ctx, "link registered already expired",
			"url", normalized,
			"expiration_date", link.ExpirationDate,
		)
	}

	if req.CustomCode != "" {
		return s.insertCustom(ctx, link, req.CustomCode)
	}
	return s.insertGenerated(ctx, link)
}

// insertCustom creates the record under a caller-chosen code. A lost
// uniqueness race surfaces as Conflict, never a silent retry.
func (s *service) insertCustom(ctx context.Context, link Link, code string) (RegisterResult, error) {
	const op = "shortener.service.Register"

	if !customCodeRE.MatchString(code) {
		return RegisterResult{}, errx.E(op, errx.Invalid,
			errors.New("custom code must be 3-15 characters long and contain only letters and numbers"))
	}

	taken, err := s.store.ExistsCode(ctx, code)
	if err != nil {
		return RegisterResult{}, errx.E(op, errx.KindOf(err), err)
	}
	if taken {
		return RegisterResult{}, errx.E(op, errx.Conflict,
			errors.New("custom code is already in use"))
	}

	link.ShortCode = code
	created, err := s.store.Insert(ctx, link)
	if err != nil {
		return RegisterResult{}, errx.E(op, errx.KindOf(err), err)
	}
	return RegisterResult{ShortCode: created.ShortCode}, nil
}

// insertGenerated allocates a free generated code. The retry bound
// guards against a broken unique index masking itself as collisions;
// at 62^6 codes, hitting it with a healthy index is effectively
// impossible.
func (s *service) insertGenerated(ctx context.Context, link Link) (RegisterResult, error) {
	const op = "shortener.service.Register"

	for range s.insertRetries {
		code, err := s.gen.Generate(s.codeLength)
		if err != nil {
			return RegisterResult{}, errx.E(op, errx.Unavailable, err)
		}

		exists, err := s.store.ExistsCode(ctx, code)
		if err != nil {
			return RegisterResult{}, errx.E(op, errx.KindOf(err), err)
		}
		if exists {
			continue
		}

		link.ShortCode = code
		created, err := s.store.Insert(ctx, link)
		if err == nil {
			return RegisterResult{ShortCode: created.ShortCode}, nil
		}

		// A concurrent insert won the check-then-act race; draw again.
		if errx.KindOf(err) == errx.Conflict {
			continue
		}
		return RegisterResult{}, errx.E(op, errx.KindOf(err), err)
	}

	return RegisterResult{}, errx.E(op, errx.Unavailable,
		fmt.Errorf("could not allocate a unique short code after %d attempts", s.insertRetries))
}

// expiration resolves the caller-supplied expiration date. Absent or
// unparseable values fall back to now + TTL, mirroring how submissions
// have always been treated.
func (s *service) expiration(raw string) time.Time {
	if raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC()
		}
	}
	return s.now().UTC().Add(s.linkTTL)
}

// List returns an owner's links; ownerID may be the AllOwners sentinel
// for the administrative caller.
func (s *service) List(ctx context.Context, ownerID string) ([]Link, error) {
	const op = "shortener.service.List"

	if ownerID == "" {
		return nil, errx.E(op, errx.Invalid, errors.New("owner id cannot be empty"))
	}

	links, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, errx.E(op, errx.KindOf(err), err)
	}
	return links, nil
}
