package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tabletalk/backend/internal/models"
	"github.com/tabletalk/backend/internal/repositories"
)

type stubFriendStore struct {
	createErr error
	acceptErr error
	deleteErr error
	listErr   error
}

func (s *stubFriendStore) CreateEdge(context.Context, models.FriendEdge) error { return s.createErr }

func (s *stubFriendStore) AcceptEdge(context.Context, string, string, time.Time) error {
	return s.acceptErr
}

func (s *stubFriendStore) DeleteEdge(context.Context, string, string) error { return s.deleteErr }

func (s *stubFriendStore) ListAccepted(context.Context, string) ([]models.FriendEdge, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return nil, nil
}

func (s *stubFriendStore) ListIncoming(context.Context, string) ([]models.FriendEdge, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return nil, nil
}

func seedFriendUsers(t *testing.T, users *repositories.MemoryUserRepository, names ...string) []models.User {
	t.Helper()
	out := make([]models.User, 0, len(names))
	for _, name := range names {
		user := models.User{
			ID:          uuid.NewString(),
			Email:       name + "@example.com",
			DisplayName: name,
		}
		if err := users.Create(context.Background(), user); err != nil {
			t.Fatalf("create user %s: %v", name, err)
		}
		out = append(out, user)
	}
	return out
}

func TestFriendHandlerInvite(t *testing.T) {
	friends := repositories.NewMemoryFriendRepository()
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	handler := FriendHandler{Friends: friends, NowFunc: func() time.Time { return now }}

	body, err := json.Marshal(inviteFriendRequest{ReceiverID: "user-2"})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.Invite(rec, authedRequest(t, http.MethodPost, "/api/v1/friends/invite", "user-1", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d", http.StatusCreated, rec.Code)
	}

	var resp friendEdgeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.Edge.Status != models.EdgeStatusPending {
		t.Fatalf("expected status %q got %q", models.EdgeStatusPending, resp.Edge.Status)
	}
	if resp.Edge.Requester != "user-1" || resp.Edge.Receiver != "user-2" {
		t.Fatalf("unexpected edge endpoints: %+v", resp.Edge)
	}
	if !resp.Edge.CreatedAt.Equal(now) {
		t.Fatal("expected createdAt to use NowFunc")
	}

	if _, err := friends.FindEdge(context.Background(), "user-1", "user-2"); err != nil {
		t.Fatalf("expected edge to be stored: %v", err)
	}

	// A second invite for the same pair, in either direction, conflicts.
	rec = httptest.NewRecorder()
	handler.Invite(rec, authedRequest(t, http.MethodPost, "/api/v1/friends/invite", "user-2", []byte(`{"receiverId":"user-1"}`)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d got %d", http.StatusConflict, rec.Code)
	}
}

func TestFriendHandlerInviteFailures(t *testing.T) {
	body := []byte(`{"receiverId":"user-2"}`)

	cases := []struct {
		name       string
		handler    FriendHandler
		body       []byte
		wantStatus int
	}{
		{
			name:       "missing store",
			handler:    FriendHandler{},
			body:       body,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "malformed body",
			handler:    FriendHandler{Friends: &stubFriendStore{}},
			body:       []byte("{"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing receiver",
			handler:    FriendHandler{Friends: &stubFriendStore{}},
			body:       []byte(`{"receiverId":"  "}`),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "self invite",
			handler:    FriendHandler{Friends: &stubFriendStore{}},
			body:       []byte(`{"receiverId":"user-1"}`),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown receiver",
			handler:    FriendHandler{Friends: &stubFriendStore{createErr: repositories.ErrNotFound}},
			body:       body,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "store failure",
			handler:    FriendHandler{Friends: &stubFriendStore{createErr: errors.New("boom")}},
			body:       body,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tc.handler.Invite(rec, authedRequest(t, http.MethodPost, "/api/v1/friends/invite", "user-1", tc.body))
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}

func TestFriendHandlerRespond(t *testing.T) {
	friends := repositories.NewMemoryFriendRepository()
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	handler := FriendHandler{Friends: friends, NowFunc: func() time.Time { return now }}

	edge := models.FriendEdge{
		ID:        uuid.NewString(),
		Requester: "user-1",
		Receiver:  "user-2",
		Status:    models.EdgeStatusPending,
		CreatedAt: now.Add(-time.Hour),
	}
	if err := friends.CreateEdge(context.Background(), edge); err != nil {
		t.Fatalf("create edge: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.Respond(rec, authedRequest(t, http.MethodPost, "/api/v1/friends/respond", "user-2", []byte(`{"requesterId":"user-1","action":"accept"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	accepted, err := friends.FindEdge(context.Background(), "user-1", "user-2")
	if err != nil {
		t.Fatalf("find edge: %v", err)
	}
	if accepted.Status != models.EdgeStatusAccepted {
		t.Fatalf("expected accepted status got %s", accepted.Status)
	}
	if accepted.RespondedAt == nil || !accepted.RespondedAt.Equal(now) {
		t.Fatalf("expected respondedAt %v got %v", now, accepted.RespondedAt)
	}
}

func TestFriendHandlerRespondFailures(t *testing.T) {
	cases := []struct {
		name       string
		handler    FriendHandler
		body       []byte
		wantStatus int
	}{
		{
			name:       "malformed body",
			handler:    FriendHandler{Friends: &stubFriendStore{}},
			body:       []byte("{"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing requester",
			handler:    FriendHandler{Friends: &stubFriendStore{}},
			body:       []byte(`{"action":"accept"}`),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown action",
			handler:    FriendHandler{Friends: &stubFriendStore{}},
			body:       []byte(`{"requesterId":"user-1","action":"maybe"}`),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no pending request",
			handler:    FriendHandler{Friends: &stubFriendStore{acceptErr: repositories.ErrNotFound}},
			body:       []byte(`{"requesterId":"user-1","action":"accept"}`),
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "decline failure",
			handler:    FriendHandler{Friends: &stubFriendStore{deleteErr: errors.New("boom")}},
			body:       []byte(`{"requesterId":"user-1","action":"decline"}`),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tc.handler.Respond(rec, authedRequest(t, http.MethodPost, "/api/v1/friends/respond", "user-2", tc.body))
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d got %d", tc.wantStatus, rec.Code)
			}
		})
	}
}

func TestFriendHandlerRemoveIsIdempotent(t *testing.T) {
	friends := repositories.NewMemoryFriendRepository()
	handler := FriendHandler{Friends: friends}

	edge := models.FriendEdge{
		ID:        uuid.NewString(),
		Requester: "user-1",
		Receiver:  "user-2",
		Status:    models.EdgeStatusAccepted,
		CreatedAt: time.Now().UTC(),
	}
	if err := friends.CreateEdge(context.Background(), edge); err != nil {
		t.Fatalf("create edge: %v", err)
	}

	body := []byte(`{"friendId":"user-1"}`)

	// Either endpoint may sever the edge.
	rec := httptest.NewRecorder()
	handler.Remove(rec, authedRequest(t, http.MethodPost, "/api/v1/friends/remove", "user-2", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	if _, err := friends.FindEdge(context.Background(), "user-1", "user-2"); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected edge removed, got %v", err)
	}

	// Removing again still succeeds.
	rec = httptest.NewRecorder()
	handler.Remove(rec, authedRequest(t, http.MethodPost, "/api/v1/friends/remove", "user-2", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
}

func TestFriendHandlerList(t *testing.T) {
	users := repositories.NewMemoryUserRepository()
	friends := repositories.NewMemoryFriendRepository()
	handler := FriendHandler{Friends: friends, Users: users}

	seeded := seedFriendUsers(t, users, "viewer", "buddy", "pending")
	viewer, buddy, pending := seeded[0], seeded[1], seeded[2]

	now := time.Now().UTC()
	accepted := models.FriendEdge{
		ID:        uuid.NewString(),
		Requester: buddy.ID,
		Receiver:  viewer.ID,
		Status:    models.EdgeStatusAccepted,
		CreatedAt: now.Add(-time.Hour),
	}
	pendingEdge := models.FriendEdge{
		ID:        uuid.NewString(),
		Requester: pending.ID,
		Receiver:  viewer.ID,
		Status:    models.EdgeStatusPending,
		CreatedAt: now,
	}
	for _, e := range []models.FriendEdge{accepted, pendingEdge} {
		if err := friends.CreateEdge(context.Background(), e); err != nil {
			t.Fatalf("create edge: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	handler.List(rec, authedRequest(t, http.MethodGet, "/api/v1/friends", viewer.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp friendListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Friends) != 1 {
		t.Fatalf("expected 1 accepted friend, got %d", len(resp.Friends))
	}
	if resp.Friends[0].UserID != buddy.ID || resp.Friends[0].DisplayName != "buddy" {
		t.Fatalf("unexpected friend entry: %+v", resp.Friends[0])
	}

	rec = httptest.NewRecorder()
	handler.Incoming(rec, authedRequest(t, http.MethodGet, "/api/v1/friends/incoming", viewer.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	resp = friendListResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Friends) != 1 || resp.Friends[0].UserID != pending.ID {
		t.Fatalf("expected the pending requester, got %+v", resp.Friends)
	}
}

func TestFriendHandlerSearch(t *testing.T) {
	friends := repositories.NewMemoryFriendRepository()
	users := repositories.NewMemoryUserRepository().WithFriendEdges(friends)
	handler := FriendHandler{Friends: friends, Users: users}

	seeded := seedFriendUsers(t, users, "viewer", "connected", "findable")
	viewer, connected, findable := seeded[0], seeded[1], seeded[2]

	edge := models.FriendEdge{
		ID:        uuid.NewString(),
		Requester: viewer.ID,
		Receiver:  connected.ID,
		Status:    models.EdgeStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := friends.CreateEdge(context.Background(), edge); err != nil {
		t.Fatalf("create edge: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.Search(rec, authedRequest(t, http.MethodGet, "/api/v1/users/search?q=example.com", viewer.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	var resp friendListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	// The viewer and the already-connected user are excluded, even though
	// the edge is only pending.
	if len(resp.Friends) != 1 || resp.Friends[0].UserID != findable.ID {
		t.Fatalf("expected only the unconnected user, got %+v", resp.Friends)
	}

	rec = httptest.NewRecorder()
	handler.Search(rec, authedRequest(t, http.MethodGet, "/api/v1/users/search", viewer.ID, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d for missing query got %d", http.StatusBadRequest, rec.Code)
	}

	limited := FriendHandler{Friends: friends, Users: users, Limiter: denyAllLimiter{}}
	rec = httptest.NewRecorder()
	limited.Search(rec, authedRequest(t, http.MethodGet, "/api/v1/users/search?q=any", viewer.ID, nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d got %d", http.StatusTooManyRequests, rec.Code)
	}
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(string) bool { return false }
