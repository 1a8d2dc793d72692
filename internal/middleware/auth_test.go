package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tabletalk/backend/internal/auth"
)

type staticAuthenticator struct {
	userID string
	err    error
}

func (a staticAuthenticator) Authenticate(context.Context, string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return a.userID, nil
}

func TestRequireUser(t *testing.T) {
	var seenUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	handler := RequireUser(staticAuthenticator{userID: "user-1"})(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/presence", nil)
	req.Header.Set("Authorization", "Bearer token-abc")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d got %d", http.StatusNoContent, rec.Code)
	}
	if seenUserID != "user-1" {
		t.Fatalf("expected user id on context, got %q", seenUserID)
	}
}

func TestRequireUserRejections(t *testing.T) {
	cases := []struct {
		name   string
		header string
		auth   Authenticator
	}{
		{name: "missing header", header: "", auth: staticAuthenticator{userID: "user-1"}},
		{name: "not bearer", header: "Basic abc", auth: staticAuthenticator{userID: "user-1"}},
		{name: "empty token", header: "Bearer ", auth: staticAuthenticator{userID: "user-1"}},
		{name: "unknown token", header: "Bearer nope", auth: staticAuthenticator{err: auth.ErrSessionNotFound}},
		{name: "expired token", header: "Bearer stale", auth: staticAuthenticator{err: auth.ErrTokenExpired}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
			handler := RequireUser(tc.auth)(next)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/presence", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
			}
			if called {
				t.Fatal("next handler must not run for rejected requests")
			}
		})
	}
}

func TestBearerTokenCaseInsensitivePrefix(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer token-abc")

	if got := bearerToken(req); got != "token-abc" {
		t.Fatalf("expected token-abc got %q", got)
	}
}
