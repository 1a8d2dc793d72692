package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tabletalk/backend/internal/auth"
	"github.com/tabletalk/backend/internal/models"
	"github.com/tabletalk/backend/internal/repositories"
)

func newAuthHandler(t *testing.T) (AuthHandler, *repositories.MemoryUserRepository) {
	t.Helper()
	users := repositories.NewMemoryUserRepository()
	sessions := auth.NewManager(time.Minute, time.Hour, auth.NewInMemorySessionStore())
	return AuthHandler{Users: users, Sessions: sessions}, users
}

func createAccount(t *testing.T, users *repositories.MemoryUserRepository, email, password string) models.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := models.User{
		ID:          uuid.NewString(),
		Email:       email,
		Password:    string(hashed),
		DisplayName: "Existing",
	}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestAuthHandlerSignUp(t *testing.T) {
	handler, users := newAuthHandler(t)

	body := []byte(`{"email":"new@example.com","password":"supersecret","displayName":"Newcomer"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.SignUp(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Fatalf("expected tokens in response: %+v", resp)
	}

	created, err := users.FindByEmail(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("find created user: %v", err)
	}
	if created.DisplayName != "Newcomer" {
		t.Fatalf("expected display name stored, got %q", created.DisplayName)
	}
	if created.Password == "supersecret" {
		t.Fatal("password must be stored hashed")
	}
}

func TestAuthHandlerSignUpDefaultsDisplayName(t *testing.T) {
	handler, users := newAuthHandler(t)

	body := []byte(`{"email":"plain@example.com","password":"supersecret"}`)
	rec := httptest.NewRecorder()
	handler.SignUp(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", bytes.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d", http.StatusCreated, rec.Code)
	}

	created, err := users.FindByEmail(context.Background(), "plain@example.com")
	if err != nil {
		t.Fatalf("find created user: %v", err)
	}
	if created.DisplayName != "plain" {
		t.Fatalf("expected display name from email local part, got %q", created.DisplayName)
	}
}

func TestAuthHandlerSignUpFailures(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "malformed body", body: "{", wantStatus: http.StatusBadRequest},
		{name: "missing email", body: `{"password":"supersecret"}`, wantStatus: http.StatusBadRequest},
		{name: "invalid email", body: `{"email":"not-an-email","password":"supersecret"}`, wantStatus: http.StatusBadRequest},
		{name: "short password", body: `{"email":"a@example.com","password":"short"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler, _ := newAuthHandler(t)
			rec := httptest.NewRecorder()
			handler.SignUp(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", bytes.NewReader([]byte(tc.body))))
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}

func TestAuthHandlerSignUpConflict(t *testing.T) {
	handler, users := newAuthHandler(t)
	createAccount(t, users, "taken@example.com", "password123")

	body := []byte(`{"email":"taken@example.com","password":"password123"}`)
	rec := httptest.NewRecorder()
	handler.SignUp(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", bytes.NewReader(body)))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d got %d", http.StatusConflict, rec.Code)
	}
}

func TestAuthHandlerLogin(t *testing.T) {
	handler, users := newAuthHandler(t)
	user := createAccount(t, users, "ada@example.com", "password123")

	body := []byte(`{"email":"ada@example.com","password":"password123"}`)
	rec := httptest.NewRecorder()
	handler.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UserID != user.ID {
		t.Fatalf("expected user id %s got %s", user.ID, resp.UserID)
	}
	if resp.Tokens.AccessToken == "" {
		t.Fatal("expected an access token")
	}
}

func TestAuthHandlerLoginFailures(t *testing.T) {
	handler, users := newAuthHandler(t)
	createAccount(t, users, "ada@example.com", "password123")

	cases := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "malformed body", body: "{", wantStatus: http.StatusBadRequest},
		{name: "missing password", body: `{"email":"ada@example.com"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown user", body: `{"email":"ghost@example.com","password":"password123"}`, wantStatus: http.StatusUnauthorized},
		{name: "wrong password", body: `{"email":"ada@example.com","password":"wrong-password"}`, wantStatus: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader([]byte(tc.body))))
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}

func TestAuthHandlerRateLimited(t *testing.T) {
	handler, _ := newAuthHandler(t)
	handler.Limiter = denyAllLimiter{}

	body := []byte(`{"email":"ada@example.com","password":"password123"}`)

	rec := httptest.NewRecorder()
	handler.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body)))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d got %d", http.StatusTooManyRequests, rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.SignUp(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", bytes.NewReader(body)))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d got %d", http.StatusTooManyRequests, rec.Code)
	}
}

func TestAuthHandlerRefresh(t *testing.T) {
	handler, users := newAuthHandler(t)
	user := createAccount(t, users, "ada@example.com", "password123")

	tokens, err := handler.Sessions.Issue(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: tokens.RefreshToken})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tokens.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected a rotated refresh token")
	}

	// The consumed token no longer refreshes.
	rec = httptest.NewRecorder()
	handler.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", bytes.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAuthHandlerRefreshFailures(t *testing.T) {
	handler, _ := newAuthHandler(t)

	cases := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "malformed body", body: "{", wantStatus: http.StatusBadRequest},
		{name: "missing token", body: `{"refreshToken":"  "}`, wantStatus: http.StatusBadRequest},
		{name: "unknown token", body: `{"refreshToken":"nope"}`, wantStatus: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", bytes.NewReader([]byte(tc.body))))
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}
