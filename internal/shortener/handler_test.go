package shortener

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/urlify/urlify/internal/auth"
	"github.com/urlify/urlify/internal/errx"
	"github.com/urlify/urlify/internal/httpx"
	"github.com/urlify/urlify/internal/passhash"
)

// mockService implements Service for handler tests.
type mockService struct {
	registerFunc       func(ctx context.Context, req RegisterRequest) (RegisterResult, error)
	resolveFunc        func(ctx context.Context, code string) (Resolution, error)
	verifyPasswordFunc func(ctx context.Context, code, password string) (string, error)
	listFunc           func(ctx context.Context, ownerID string) ([]Link, error)
}

func (m *mockService) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	if m.registerFunc != nil {
		return m.registerFunc(ctx, req)
	}
	return RegisterResult{ShortCode: "abc123"}, nil
}

func (m *mockService) Resolve(ctx context.Context, code string) (Resolution, error) {
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, code)
	}
	return Resolution{}, notFoundErr("service.Resolve")
}

func (m *mockService) VerifyPassword(ctx context.Context, code, password string) (string, error) {
	if m.verifyPasswordFunc != nil {
		return m.verifyPasswordFunc(ctx, code, password)
	}
	return "", notFoundErr("service.VerifyPassword")
}

func (m *mockService) List(ctx context.Context, ownerID string) ([]Link, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, ownerID)
	}
	return nil, nil
}

func newTestHandler(svc Service, adminOwnerID string) http.Handler {
	h := NewHandler(HandlerConfig{
		Service:      svc,
		BaseURL:      "https://sho.rt",
		AdminOwnerID: adminOwnerID,
	})

	r := chi.NewRouter()
	r.Post("/api/links", h.CreateLink)
	r.Post("/api/links/verify", h.VerifyPassword)
	r.Get("/api/links", h.ListLinks)
	r.Get("/{code}", h.ResolveCode)
	return r
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return v
}

func TestHandlerCreateLink(t *testing.T) {
	t.Run("creates a link", func(t *testing.T) {
		svc := &mockService{
			registerFunc: func(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
				if req.RawURL != "https://example.com" {
					t.Errorf("RawURL = %q", req.RawURL)
				}
				return RegisterResult{ShortCode: "abc123"}, nil
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/links",
			strings.NewReader(`{"url":"https://example.com"}`))
		newTestHandler(svc, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
		}
		resp := decodeBody[CreateLinkResponse](t, rec)
		if resp.ShortCode != "abc123" {
			t.Errorf("short_code = %q", resp.ShortCode)
		}
		if resp.ShortURL != "https://sho.rt/abc123" {
			t.Errorf("short_url = %q", resp.ShortURL)
		}
	})

	t.Run("existing url returns 200", func(t *testing.T) {
		svc := &mockService{
			registerFunc: func(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
				return RegisterResult{ShortCode: "abc123", Existing: true}, nil
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/links",
			strings.NewReader(`{"url":"https://example.com"}`))
		newTestHandler(svc, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("missing url is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/links",
			strings.NewReader(`{"custom_code":"mylink"}`))
		newTestHandler(&mockService{}, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("malformed json is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/links",
			strings.NewReader(`{"url": `))
		newTestHandler(&mockService{}, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("code conflict maps to 409", func(t *testing.T) {
		svc := &mockService{
			registerFunc: func(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
				return RegisterResult{}, errx.E("shortener.service.Register", errx.Conflict,
					errors.New("custom code is already in use"))
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/links",
			strings.NewReader(`{"url":"https://example.com","custom_code":"mylink"}`))
		newTestHandler(svc, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
		}
		resp := decodeBody[httpx.ErrorResponse](t, rec)
		if resp.Error != "conflict" {
			t.Errorf("error code = %q, want conflict", resp.Error)
		}
	})

	t.Run("allocation exhaustion maps to 503", func(t *testing.T) {
		svc := &mockService{
			registerFunc: func(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
				return RegisterResult{}, errx.E("shortener.service.Register", errx.Unavailable,
					errors.New("could not allocate a unique short code after 5 attempts"))
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/links",
			strings.NewReader(`{"url":"https://example.com"}`))
		newTestHandler(svc, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
	})

	t.Run("forwards the authenticated owner", func(t *testing.T) {
		var seen RegisterRequest
		svc := &mockService{
			registerFunc: func(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
				seen = req
				return RegisterResult{ShortCode: "abc123"}, nil
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/links",
			strings.NewReader(`{"url":"https://example.com"}`))
		req = req.WithContext(auth.WithIdentity(req.Context(),
			auth.Identity{OwnerID: "owner@example.com", OwnerName: "Owner"}))
		newTestHandler(svc, "").ServeHTTP(rec, req)

		if seen.OwnerID != "owner@example.com" || seen.OwnerName != "Owner" {
			t.Errorf("owner = %q/%q", seen.OwnerID, seen.OwnerName)
		}
	})
}

func TestHandlerErrorLogsCarryRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	svc := &mockService{
		registerFunc: func(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
			return RegisterResult{}, errx.E("shortener.service.Register", errx.Conflict,
				errors.New("custom code is already in use"))
		},
	}
	h := NewHandler(HandlerConfig{Service: svc, Logger: logger, BaseURL: "https://sho.rt"})

	r := chi.NewRouter()
	r.Post("/api/links", h.CreateLink)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/links",
		strings.NewReader(`{"url":"https://example.com","custom_code":"mylink"}`))
	req = req.WithContext(httpx.WithRequestID(req.Context(), "req-42"))
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decoding log line: %v (line: %s)", err, buf.String())
	}
	if entry["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want req-42", entry["request_id"])
	}
	if entry["method"] != http.MethodPost {
		t.Errorf("method = %v, want POST", entry["method"])
	}
	if entry["path"] != "/api/links" {
		t.Errorf("path = %v, want /api/links", entry["path"])
	}
	if entry["error_kind"] != errx.Conflict.String() {
		t.Errorf("error_kind = %v, want %v", entry["error_kind"], errx.Conflict.String())
	}
}

func TestHandlerResolveCode(t *testing.T) {
	t.Run("redirects an open link", func(t *testing.T) {
		svc := &mockService{
			resolveFunc: func(ctx context.Context, code string) (Resolution, error) {
				return Resolution{Action: ActionRedirect, URL: "https://example.com/page", Code: code}, nil
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/abc123", nil)
		newTestHandler(svc, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusFound {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
		}
		if loc := rec.Header().Get("Location"); loc != "https://example.com/page" {
			t.Errorf("Location = %q", loc)
		}
	})

	t.Run("challenges a protected link", func(t *testing.T) {
		svc := &mockService{
			resolveFunc: func(ctx context.Context, code string) (Resolution, error) {
				return Resolution{Action: ActionPasswordRequired, Code: code}, nil
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/mylink", nil)
		newTestHandler(svc, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		resp := decodeBody[PasswordChallengeResponse](t, rec)
		if !resp.PasswordRequired {
			t.Error("password_required = false, want true")
		}
		if resp.Code != "mylink" {
			t.Errorf("code = %q, want mylink", resp.Code)
		}
	})

	t.Run("unknown code is 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/nosuch", nil)
		newTestHandler(&mockService{}, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("overlong code is 404 without a lookup", func(t *testing.T) {
		svc := &mockService{
			resolveFunc: func(ctx context.Context, code string) (Resolution, error) {
				t.Error("Resolve should not be called for an overlong code")
				return Resolution{}, nil
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/"+strings.Repeat("a", MaxCodeLength+1), nil)
		newTestHandler(svc, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("corrupted record is 500", func(t *testing.T) {
		svc := &mockService{
			resolveFunc: func(ctx context.Context, code string) (Resolution, error) {
				return Resolution{}, errx.E("shortener.service.Resolve", errx.Internal,
					errors.New("stored url failed revalidation"))
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/abc123", nil)
		newTestHandler(svc, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
		}
	})
}

func TestHandlerVerifyPassword(t *testing.T) {
	t.Run("correct password returns the destination", func(t *testing.T) {
		svc := &mockService{
			verifyPasswordFunc: func(ctx context.Context, code, password string) (string, error) {
				if code != "mylink" || password != "secret1" {
					t.Errorf("got %q/%q", code, password)
				}
				return "https://example.com", nil
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/links/verify",
			strings.NewReader(`{"code":"mylink","password":"secret1"}`))
		newTestHandler(svc, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		resp := decodeBody[VerifyPasswordResponse](t, rec)
		if resp.OriginalURL != "https://example.com" {
			t.Errorf("original_url = %q", resp.OriginalURL)
		}
	})

	t.Run("wrong password is 401", func(t *testing.T) {
		svc := &mockService{
			verifyPasswordFunc: func(ctx context.Context, code, password string) (string, error) {
				return "", errx.E("shortener.service.VerifyPassword", errx.Unauthorized,
					errors.New("incorrect password"))
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/links/verify",
			strings.NewReader(`{"code":"mylink","password":"wrong"}`))
		newTestHandler(svc, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
		resp := decodeBody[httpx.ErrorResponse](t, rec)
		if resp.Error != "incorrect_password" {
			t.Errorf("error code = %q, want incorrect_password", resp.Error)
		}
	})

	t.Run("unprotected link is 400", func(t *testing.T) {
		svc := &mockService{
			verifyPasswordFunc: func(ctx context.Context, code, password string) (string, error) {
				return "", errx.E("shortener.service.VerifyPassword", errx.Invalid,
					errors.New("no password required"))
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/links/verify",
			strings.NewReader(`{"code":"open11","password":"whatever"}`))
		newTestHandler(svc, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("unknown code is 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/links/verify",
			strings.NewReader(`{"code":"nosuch","password":"x"}`))
		newTestHandler(&mockService{}, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("missing code is 400", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/links/verify",
			strings.NewReader(`{"password":"secret1"}`))
		newTestHandler(&mockService{}, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestHandlerListLinks(t *testing.T) {
	ownerID := "owner@example.com"

	t.Run("lists the caller's links", func(t *testing.T) {
		hash := "$2a$10$abcdefghijklmnopqrstuv"
		svc := &mockService{
			listFunc: func(ctx context.Context, owner string) ([]Link, error) {
				if owner != ownerID {
					t.Errorf("owner = %q, want %q", owner, ownerID)
				}
				return []Link{
					{
						ShortCode:      "abc123",
						OriginalURL:    "https://example.com",
						Clicks:         7,
						ExpirationDate: time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC),
						PasswordHash:   &hash,
						OwnerID:        &ownerID,
					},
				}, nil
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/links", nil)
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{OwnerID: ownerID}))
		newTestHandler(svc, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		items := decodeBody[[]LinkItem](t, rec)
		if len(items) != 1 {
			t.Fatalf("got %d items, want 1", len(items))
		}
		item := items[0]
		if item.ShortCode != "abc123" || item.Clicks != 7 {
			t.Errorf("item = %+v", item)
		}
		if !item.Password {
			t.Error("password = false, want true for a protected link")
		}
		if item.ExpirationDate != "2030-01-02T15:04:05Z" {
			t.Errorf("expiration_date = %q", item.ExpirationDate)
		}
	})

	t.Run("never exposes the hash", func(t *testing.T) {
		hash, err := passhash.Hash("secret1")
		if err != nil {
			t.Fatalf("passhash.Hash(): %v", err)
		}
		svc := &mockService{
			listFunc: func(ctx context.Context, owner string) ([]Link, error) {
				return []Link{{ShortCode: "abc123", OriginalURL: "https://a.com", PasswordHash: &hash}}, nil
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/links", nil)
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{OwnerID: ownerID}))
		newTestHandler(svc, "").ServeHTTP(rec, req)

		if strings.Contains(rec.Body.String(), hash) {
			t.Error("response body contains the stored password hash")
		}
	})

	t.Run("admin sees every owner", func(t *testing.T) {
		var seen string
		svc := &mockService{
			listFunc: func(ctx context.Context, owner string) ([]Link, error) {
				seen = owner
				return nil, nil
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/links", nil)
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{OwnerID: "admin@example.com"}))
		newTestHandler(svc, "admin@example.com").ServeHTTP(rec, req)

		if seen != AllOwners {
			t.Errorf("owner = %q, want %q", seen, AllOwners)
		}
	})

	t.Run("no identity is 401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/links", nil)
		newTestHandler(&mockService{}, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("store outage is 503", func(t *testing.T) {
		svc := &mockService{
			listFunc: func(ctx context.Context, owner string) ([]Link, error) {
				return nil, errx.E("shortener.service.List", errx.Unavailable,
					errors.New("connection refused"))
			},
		}

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/links", nil)
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{OwnerID: ownerID}))
		newTestHandler(svc, "").ServeHTTP(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
	})
}
