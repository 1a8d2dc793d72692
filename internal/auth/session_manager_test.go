package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManagerIssueAndAuthenticate(t *testing.T) {
	store := NewInMemorySessionStore()
	manager := NewManager(time.Minute, time.Hour, store)

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected non-empty tokens: %+v", tokens)
	}
	if tokens.AccessToken == tokens.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}

	userID, err := manager.Authenticate(context.Background(), tokens.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1 got %s", userID)
	}

	// A refresh token is not an access token.
	if _, err := manager.Authenticate(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for refresh token got %v", err)
	}
}

func TestManagerIssueValidation(t *testing.T) {
	manager := NewManager(time.Minute, time.Hour, NewInMemorySessionStore())
	if _, err := manager.Issue(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestManagerAuthenticateExpired(t *testing.T) {
	store := NewInMemorySessionStore()
	manager := NewManager(time.Minute, time.Hour, store)

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	manager.WithNowFunc(func() time.Time { return now })

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(2 * time.Minute)

	if _, err := manager.Authenticate(context.Background(), tokens.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired got %v", err)
	}

	// The expired token is purged on first use.
	if store.Has(tokens.AccessToken) {
		t.Fatal("expected expired access token to be deleted")
	}
}

func TestManagerRefresh(t *testing.T) {
	store := NewInMemorySessionStore()
	manager := NewManager(time.Minute, time.Hour, store)

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	refreshed, err := manager.Refresh(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected a new refresh token")
	}
	if store.Has(tokens.RefreshToken) {
		t.Fatal("old refresh token should have been removed")
	}

	// The new access token authenticates the same user.
	userID, err := manager.Authenticate(context.Background(), refreshed.AccessToken)
	if err != nil {
		t.Fatalf("authenticate refreshed token: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1 got %s", userID)
	}
}

func TestManagerRefreshFailures(t *testing.T) {
	store := NewInMemorySessionStore()
	manager := NewManager(time.Minute, time.Hour, store)

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	manager.WithNowFunc(func() time.Time { return now })

	if _, err := manager.Refresh(context.Background(), ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session not found got %v", err)
	}

	tokens, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(2 * time.Hour)

	if _, err := manager.Refresh(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected refresh expired got %v", err)
	}

	// The presented token is consumed even when expired.
	if store.Has(tokens.RefreshToken) {
		t.Fatal("expected expired refresh token to be deleted")
	}

	tokens, err = manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	manager.Revoke(context.Background(), tokens.RefreshToken)
	if _, err := manager.Refresh(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session not found after revoke got %v", err)
	}
}
