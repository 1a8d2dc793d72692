package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tabletalk/backend/internal/logging"
	"github.com/tabletalk/backend/internal/middleware"
	"github.com/tabletalk/backend/internal/models"
	"github.com/tabletalk/backend/internal/repositories"
)

// FriendHandler provides the friend-graph endpoints.
type FriendHandler struct {
	Friends FriendStore
	Users   UserStore
	Limiter RateLimiter
	NowFunc func() time.Time
}

// Invite handles POST /api/v1/friends/invite.
func (h FriendHandler) Invite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	requesterID := middleware.UserID(ctx)

	if h.Friends == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "friend service unavailable"})
		return
	}

	var req inviteFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.ReceiverID = strings.TrimSpace(req.ReceiverID)
	if req.ReceiverID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "receiverId is required"})
		return
	}

	if req.ReceiverID == requesterID {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "cannot invite yourself"})
		return
	}

	edge := models.FriendEdge{
		ID:        uuid.NewString(),
		Requester: requesterID,
		Receiver:  req.ReceiverID,
		Status:    models.EdgeStatusPending,
		CreatedAt: h.now(),
	}

	if err := h.Friends.CreateEdge(ctx, edge); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "connection already exists"})
		case errors.Is(err, repositories.ErrNotFound):
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "no such user"})
		default:
			logging.FromContext(ctx).Error("create friend edge failed", "error", err)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to send request"})
		}
		return
	}

	respondJSON(ctx, w, http.StatusCreated, friendEdgeResponse{Edge: toEdgePayload(edge)})
}

// Respond handles POST /api/v1/friends/respond. Accepting promotes the
// pending edge; declining deletes it.
func (h FriendHandler) Respond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	receiverID := middleware.UserID(ctx)

	if h.Friends == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "friend service unavailable"})
		return
	}

	var req respondFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.RequesterID = strings.TrimSpace(req.RequesterID)
	if req.RequesterID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "requesterId is required"})
		return
	}

	switch req.Action {
	case "accept":
		if err := h.Friends.AcceptEdge(ctx, req.RequesterID, receiverID, h.now()); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "no pending request from that user"})
				return
			}
			logging.FromContext(ctx).Error("accept friend edge failed", "error", err)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to accept request"})
			return
		}
		respondJSON(ctx, w, http.StatusOK, map[string]string{"status": models.EdgeStatusAccepted})
	case "decline":
		if err := h.Friends.DeleteEdge(ctx, req.RequesterID, receiverID); err != nil {
			logging.FromContext(ctx).Error("decline friend edge failed", "error", err)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to decline request"})
			return
		}
		respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "declined"})
	default:
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "action must be accept or decline"})
	}
}

// Remove handles POST /api/v1/friends/remove. Removal is symmetric and
// idempotent: either side may sever the connection, and removing an
// absent edge succeeds.
func (h FriendHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID := middleware.UserID(ctx)

	if h.Friends == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "friend service unavailable"})
		return
	}

	var req removeFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.FriendID = strings.TrimSpace(req.FriendID)
	if req.FriendID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "friendId is required"})
		return
	}

	if err := h.Friends.DeleteEdge(ctx, userID, req.FriendID); err != nil {
		logging.FromContext(ctx).Error("delete friend edge failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to remove friend"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "removed"})
}

// List handles GET /api/v1/friends: the caller's accepted connections
// with the other user's profile resolved.
func (h FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID := middleware.UserID(ctx)

	if h.Friends == nil || h.Users == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "friend service unavailable"})
		return
	}

	edges, err := h.Friends.ListAccepted(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("list friends failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to list friends"})
		return
	}

	entries, err := h.resolveEntries(r, edges, userID, func(e models.FriendEdge) string { return e.Other(userID) })
	if err != nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to list friends"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, friendListResponse{Friends: entries})
}

// Incoming handles GET /api/v1/friends/incoming: pending requests
// directed at the caller.
func (h FriendHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID := middleware.UserID(ctx)

	if h.Friends == nil || h.Users == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "friend service unavailable"})
		return
	}

	edges, err := h.Friends.ListIncoming(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("list incoming requests failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to list requests"})
		return
	}

	entries, err := h.resolveEntries(r, edges, userID, func(e models.FriendEdge) string { return e.Requester })
	if err != nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to list requests"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, friendListResponse{Friends: entries})
}

// Search handles GET /api/v1/users/search. Candidates exclude the caller
// and anyone already connected, pending or accepted.
func (h FriendHandler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID := middleware.UserID(ctx)

	if !allowRequest(h.Limiter, r, "search") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many searches, slow down"})
		return
	}

	if h.Users == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "search unavailable"})
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "q query parameter is required"})
		return
	}

	users, err := h.Users.SearchCandidates(ctx, userID, query)
	if err != nil {
		logging.FromContext(ctx).Error("user search failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "search failed"})
		return
	}

	results := make([]friendEntry, 0, len(users))
	for _, u := range users {
		results = append(results, friendEntry{
			UserID:      u.ID,
			DisplayName: u.DisplayName,
			AvatarURL:   u.AvatarURL,
		})
	}

	respondJSON(ctx, w, http.StatusOK, friendListResponse{Friends: results})
}

func (h FriendHandler) resolveEntries(r *http.Request, edges []models.FriendEdge, userID string, pick func(models.FriendEdge) string) ([]friendEntry, error) {
	ctx := r.Context()

	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, pick(e))
	}

	users, err := h.Users.FindMany(ctx, ids)
	if err != nil {
		logging.FromContext(ctx).Error("resolve friend profiles failed", "error", err)
		return nil, err
	}

	byID := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	entries := make([]friendEntry, 0, len(edges))
	for _, e := range edges {
		id := pick(e)
		u, ok := byID[id]
		if !ok {
			continue
		}
		entries = append(entries, friendEntry{
			UserID:      u.ID,
			DisplayName: u.DisplayName,
			AvatarURL:   u.AvatarURL,
			Status:      e.Status,
			Since:       e.CreatedAt,
		})
	}

	return entries, nil
}

func (h FriendHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

type inviteFriendRequest struct {
	ReceiverID string `json:"receiverId"`
}

type respondFriendRequest struct {
	RequesterID string `json:"requesterId"`
	Action      string `json:"action"`
}

type removeFriendRequest struct {
	FriendID string `json:"friendId"`
}

type edgePayload struct {
	ID        string    `json:"id"`
	Requester string    `json:"requesterId"`
	Receiver  string    `json:"receiverId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func toEdgePayload(e models.FriendEdge) edgePayload {
	return edgePayload{
		ID:        e.ID,
		Requester: e.Requester,
		Receiver:  e.Receiver,
		Status:    e.Status,
		CreatedAt: e.CreatedAt,
	}
}

type friendEdgeResponse struct {
	Edge edgePayload `json:"request"`
}

type friendEntry struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Status      string    `json:"status,omitempty"`
	Since       time.Time `json:"since,omitzero"`
}

type friendListResponse struct {
	Friends []friendEntry `json:"friends"`
}
