package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/urlify/urlify/internal/auth"
	"github.com/urlify/urlify/internal/errx"
	"github.com/urlify/urlify/internal/httpx"
)

// CreateLinkRequest is the JSON body for registering a link.
type CreateLinkRequest struct {
	URL            string `json:"url"`
	CustomCode     string `json:"custom_code,omitempty"`
	Password       string `json:"password,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
}

// CreateLinkResponse is the JSON response for a registered link.
type CreateLinkResponse struct {
	ShortCode string `json:"short_code"`
	ShortURL  string `json:"short_url"`
}

// VerifyPasswordRequest is the JSON body for unlocking a protected link.
type VerifyPasswordRequest struct {
	Code     string `json:"code"`
	Password string `json:"password"`
}

// VerifyPasswordResponse carries the unlocked destination.
type VerifyPasswordResponse struct {
	OriginalURL string `json:"original_url"`
}

// PasswordChallengeResponse signals that a visit must pass the
// password gate before the destination is released.
type PasswordChallengeResponse struct {
	PasswordRequired bool   `json:"password_required"`
	Code             string `json:"code"`
}

// LinkItem is one entry of a listing response. Password exposes only
// the presence of a gate, never the hash.
type LinkItem struct {
	ShortCode      string  `json:"short_code"`
	OriginalURL    string  `json:"original_url"`
	Clicks         int64   `json:"clicks"`
	ExpirationDate string  `json:"expiration_date"`
	Password       bool    `json:"password"`
	OwnerID        *string `json:"owner_id"`
	OwnerName      *string `json:"owner_name"`
}

// Handler provides the HTTP boundary over the link service.
type Handler struct {
	service      Service
	logger       *slog.Logger
	baseURL      string
	adminOwnerID string
}

// HandlerConfig holds configuration for the handler.
type HandlerConfig struct {
	Service      Service
	Logger       *slog.Logger
	BaseURL      string // base for composing short URLs, e.g. "https://urlify.dev"
	AdminOwnerID string // owner allowed to list every owner's links; empty disables
}

// NewHandler creates a new Handler instance.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		service:      cfg.Service,
		logger:       logger,
		baseURL:      cfg.BaseURL,
		adminOwnerID: cfg.AdminOwnerID,
	}
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With(
		"request_id", httpx.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
}

// CreateLink handles POST /api/links.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[CreateLinkRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	if req.URL == "" {
		logger.WarnContext(ctx, "request validation failed", "error", "url is required")
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "url is required", nil)
		return
	}

	svcReq := RegisterRequest{
		RawURL:         req.URL,
		CustomCode:     req.CustomCode,
		Password:       req.Password,
		ExpirationDate: req.ExpirationDate,
	}
	if id, ok := auth.IdentityFrom(ctx); ok {
		svcReq.OwnerID = id.OwnerID
		svcReq.OwnerName = id.OwnerName
	}

	result, err := h.service.Register(ctx, svcReq)
	if err != nil {
		h.handleRegisterError(ctx, logger, w, err)
		return
	}

	resp := CreateLinkResponse{
		ShortCode: result.ShortCode,
		ShortURL:  fmt.Sprintf("%s/%s", h.baseURL, result.ShortCode),
	}

	logger.InfoContext(ctx, "link registered",
		"short_code", result.ShortCode,
		"existing", result.Existing,
		"custom_code", req.CustomCode != "",
		"password_protected", req.Password != "",
	)

	status := http.StatusCreated
	if result.Existing {
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, resp)
}

// ResolveCode handles GET /{code}: a redirect for open links, a
// password challenge for protected ones.
func (h *Handler) ResolveCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	code := chi.URLParam(r, "code")
	if code == "" || len(code) > MaxCodeLength {
		// No stored code can look like this.
		httpx.WriteError(w, http.StatusNotFound, "not_found",
			"short link doesn't exist", nil)
		return
	}

	res, err := h.service.Resolve(ctx, code)
	if err != nil {
		h.handleResolveError(ctx, logger, w, err, code)
		return
	}

	switch res.Action {
	case ActionPasswordRequired:
		logger.InfoContext(ctx, "password challenge issued", "short_code", code)
		httpx.WriteJSON(w, http.StatusOK, PasswordChallengeResponse{
			PasswordRequired: true,
			Code:             code,
		})

	default:
		logger.InfoContext(ctx, "code resolved",
			"short_code", code,
			"user_agent", r.UserAgent(),
			"referer", r.Referer(),
		)
		http.Redirect(w, r, res.URL, http.StatusFound)
	}
}

// VerifyPassword handles POST /api/links/verify.
func (h *Handler) VerifyPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	req, err := httpx.DecodeJSON[VerifyPasswordRequest](r)
	if err != nil {
		logger.WarnContext(ctx, "failed to decode request", "error", err.Error())
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}

	if req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", "code is required", nil)
		return
	}

	originalURL, err := h.service.VerifyPassword(ctx, req.Code, req.Password)
	if err != nil {
		h.handleVerifyError(ctx, logger, w, err, req.Code)
		return
	}

	logger.InfoContext(ctx, "password verified", "short_code", req.Code)
	httpx.WriteJSON(w, http.StatusOK, VerifyPasswordResponse{OriginalURL: originalURL})
}

// ListLinks handles GET /api/links. Runs behind auth.Require; the
// admin owner sees every owner's links.
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	id, ok := auth.IdentityFrom(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized",
			"authentication required", nil)
		return
	}

	owner := id.OwnerID
	if h.adminOwnerID != "" && owner == h.adminOwnerID {
		owner = AllOwners
	}

	links, err := h.service.List(ctx, owner)
	if err != nil {
		kind := errx.KindOf(err)
		logger.ErrorContext(ctx, "listing links failed",
			"error", err.Error(),
			"error_kind", kind.String(),
			"operation", errx.OpOf(err),
		)
		httpx.WriteError(w, httpx.StatusOf(kind), httpx.CodeOf(kind),
			"Unable to load links at this time", nil)
		return
	}

	items := make([]LinkItem, 0, len(links))
	for _, l := range links {
		items = append(items, LinkItem{
			ShortCode:      l.ShortCode,
			OriginalURL:    l.OriginalURL,
			Clicks:         l.Clicks,
			ExpirationDate: l.ExpirationDate.Format(time.RFC3339),
			Password:       l.PasswordProtected(),
			OwnerID:        l.OwnerID,
			OwnerName:      l.OwnerName,
		})
	}

	logger.InfoContext(ctx, "links listed", "owner", owner, "count", len(items))
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) handleRegisterError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind.String(),
		"operation", errx.OpOf(err),
	}

	switch kind {
	case errx.Invalid:
		logger.WarnContext(ctx, "invalid registration", logAttrs...)
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", rootMessage(err), nil)

	case errx.Conflict:
		logger.WarnContext(ctx, "custom code conflict", logAttrs...)
		httpx.WriteError(w, http.StatusConflict, "conflict",
			"Custom code is already in use",
			map[string]string{
				"hint": "Try a different custom code or let one be generated for you",
			})

	case errx.Unavailable:
		logger.ErrorContext(ctx, "registration unavailable", logAttrs...)
		httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable",
			"Unable to create short link at this time. Please try again.", nil)

	default:
		logger.ErrorContext(ctx, "unexpected registration error", logAttrs...)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to create short link at this time. Please try again.", nil)
	}
}

func (h *Handler) handleResolveError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error, code string) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind.String(),
		"operation", errx.OpOf(err),
		"short_code", code,
	}

	switch kind {
	case errx.NotFound:
		logger.WarnContext(ctx, "short code not found", logAttrs...)
		httpx.WriteError(w, http.StatusNotFound, "not_found",
			"short link doesn't exist", nil)

	case errx.Invalid:
		logger.WarnContext(ctx, "invalid short code", logAttrs...)
		httpx.WriteError(w, http.StatusBadRequest, "invalid_input", rootMessage(err), nil)

	default:
		logger.ErrorContext(ctx, "unexpected resolve error", logAttrs...)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to resolve this link at this time", nil)
	}
}

func (h *Handler) handleVerifyError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error, code string) {
	kind := errx.KindOf(err)

	logAttrs := []any{
		"error", err.Error(),
		"error_kind", kind.String(),
		"operation", errx.OpOf(err),
		"short_code", code,
	}

	switch kind {
	case errx.NotFound:
		logger.WarnContext(ctx, "short code not found", logAttrs...)
		httpx.WriteError(w, http.StatusNotFound, "not_found",
			"short link doesn't exist", nil)

	case errx.Invalid:
		logger.WarnContext(ctx, "verify on unprotected link", logAttrs...)
		httpx.WriteError(w, http.StatusBadRequest, "no_password_required",
			"No password required", nil)

	case errx.Unauthorized:
		logger.WarnContext(ctx, "incorrect password", logAttrs...)
		httpx.WriteError(w, http.StatusUnauthorized, "incorrect_password",
			"Incorrect password", nil)

	default:
		logger.ErrorContext(ctx, "unexpected verify error", logAttrs...)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to verify password at this time", nil)
	}
}

// rootMessage unwraps to the innermost cause so validation messages
// reach the caller without operation prefixes.
func rootMessage(err error) string {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err.Error()
		}
		err = unwrapped
	}
}
