package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tabletalk/backend/internal/logging"
)

type userIDKey struct{}

// Authenticator resolves a bearer access token to a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// UserID returns the authenticated user id stored by RequireUser, or "".
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithUserID stores a user id on the context. Exposed for handler tests.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// RequireUser rejects requests without a valid bearer token and stores the
// resolved user id on the request context.
func RequireUser(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			userID, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				logging.FromContext(r.Context()).Warn("token rejected", "error", err)
				unauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
