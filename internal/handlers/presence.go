package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tabletalk/backend/internal/geo"
	"github.com/tabletalk/backend/internal/logging"
	"github.com/tabletalk/backend/internal/middleware"
	"github.com/tabletalk/backend/internal/models"
	"github.com/tabletalk/backend/internal/presence"
	"github.com/tabletalk/backend/internal/repositories"
)

// PresenceHandler exposes the availability-session lifecycle and the
// visibility queries over HTTP.
type PresenceHandler struct {
	Manager  PresenceManager
	Resolver VisibilityResolver
}

// Availability handles PUT /api/v1/presence/availability.
func (h PresenceHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID := middleware.UserID(ctx)

	if h.Manager == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "presence service unavailable"})
		return
	}

	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.Manager.SetAvailability(ctx, userID, req.Ready); err != nil {
		respondPresenceError(ctx, w, err, "set availability")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]bool{"ready": req.Ready})
}

// CheckIn handles POST /api/v1/presence/checkin.
func (h PresenceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID := middleware.UserID(ctx)

	if h.Manager == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "presence service unavailable"})
		return
	}

	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.PlaceID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "placeId is required"})
		return
	}

	var coord *models.Coordinate
	if req.Latitude != nil && req.Longitude != nil {
		coord = &models.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	session, err := h.Manager.StartSession(ctx, userID, req.PlaceID, req.DurationHours, coord)
	if err != nil {
		respondPresenceError(ctx, w, err, "start session")
		return
	}

	respondJSON(ctx, w, http.StatusCreated, sessionResponse{
		PlaceID:    session.PlaceID,
		ReadyUntil: session.Expires,
	})
}

// CheckOut handles POST /api/v1/presence/checkout.
func (h PresenceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	if h.Manager == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "presence service unavailable"})
		return
	}

	if err := h.Manager.ClearSession(ctx, middleware.UserID(ctx)); err != nil {
		respondPresenceError(ctx, w, err, "clear session")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "cleared"})
}

// Snapshot handles GET /api/v1/presence.
func (h PresenceHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	if h.Manager == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "presence service unavailable"})
		return
	}

	user, state, session, err := h.Manager.Snapshot(ctx, middleware.UserID(ctx))
	if err != nil {
		respondPresenceError(ctx, w, err, "presence snapshot")
		return
	}

	resp := snapshotResponse{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Ready:       user.IsReadyToTalk,
		State:       string(state),
	}
	if session != nil {
		resp.Session = &sessionResponse{PlaceID: session.PlaceID, ReadyUntil: session.Expires}
	}

	respondJSON(ctx, w, http.StatusOK, resp)
}

// Location handles PUT /api/v1/presence/location.
func (h PresenceHandler) Location(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	if h.Manager == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "presence service unavailable"})
		return
	}

	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	coord := models.Coordinate{Latitude: req.Latitude, Longitude: req.Longitude}
	if err := h.Manager.UpdateLocation(ctx, middleware.UserID(ctx), coord); err != nil {
		respondPresenceError(ctx, w, err, "update location")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

// VisibleFriends handles GET /api/v1/presence/friends.
func (h PresenceHandler) VisibleFriends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	if h.Resolver == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "presence service unavailable"})
		return
	}

	coord, err := optionalCoordinate(r)
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid coordinates"})
		return
	}

	visible, err := h.Resolver.VisibleFriends(ctx, middleware.UserID(ctx), coord)
	if err != nil {
		respondPresenceError(ctx, w, err, "visible friends")
		return
	}

	entries := make([]visibleFriendResponse, 0, len(visible))
	for _, v := range visible {
		entries = append(entries, visibleFriendResponse{
			UserID:           v.UserID,
			DisplayName:      v.DisplayName,
			AvatarURL:        v.AvatarURL,
			PlaceID:          v.PlaceID,
			PlaceName:        v.PlaceName,
			PlaceAddress:     v.PlaceAddress,
			ReadyUntil:       v.ReadyUntil,
			MinutesRemaining: v.MinutesRemaining,
			DistanceM:        v.DistanceM,
		})
	}

	respondJSON(ctx, w, http.StatusOK, visibleFriendsResponse{Friends: entries})
}

// Occupants handles GET /api/v1/presence/occupants.
func (h PresenceHandler) Occupants(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	if h.Resolver == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "presence service unavailable"})
		return
	}

	placeID := r.URL.Query().Get("place")
	if placeID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "place query parameter is required"})
		return
	}

	occupants, err := h.Resolver.Occupants(ctx, middleware.UserID(ctx), placeID)
	if err != nil {
		respondPresenceError(ctx, w, err, "occupants")
		return
	}

	entries := make([]occupantResponse, 0, len(occupants))
	for _, o := range occupants {
		entries = append(entries, occupantResponse{
			UserID:           o.UserID,
			DisplayName:      o.DisplayName,
			AvatarURL:        o.AvatarURL,
			Ready:            o.IsReadyToTalk,
			MinutesRemaining: o.MinutesRemaining,
		})
	}

	respondJSON(ctx, w, http.StatusOK, occupantsResponse{Occupants: entries})
}

func respondPresenceError(ctx context.Context, w http.ResponseWriter, err error, op string) {
	logger := logging.FromContext(ctx)

	switch {
	case errors.Is(err, presence.ErrInvalidDuration), errors.Is(err, geo.ErrInvalidCoordinate):
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, presence.ErrNotCheckedIn):
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, presence.ErrPlaceNotFound), errors.Is(err, repositories.ErrNotFound):
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, presence.ErrActiveSession):
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, repositories.ErrTransient):
		logger.Error(op+" transient failure", "error", err)
		respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "temporarily unavailable, retry shortly"})
	default:
		logger.Error(op+" failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func optionalCoordinate(r *http.Request) (*models.Coordinate, error) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")
	if latStr == "" && lonStr == "" {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, err
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return nil, err
	}

	return &models.Coordinate{Latitude: lat, Longitude: lon}, nil
}

type availabilityRequest struct {
	Ready bool `json:"ready"`
}

type checkInRequest struct {
	PlaceID       string   `json:"placeId"`
	DurationHours float64  `json:"durationHours"`
	Latitude      *float64 `json:"lat"`
	Longitude     *float64 `json:"lon"`
}

type locationRequest struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

type sessionResponse struct {
	PlaceID    string    `json:"placeId"`
	ReadyUntil time.Time `json:"readyUntil"`
}

type snapshotResponse struct {
	UserID      string           `json:"userId"`
	DisplayName string           `json:"displayName"`
	Ready       bool             `json:"ready"`
	State       string           `json:"state"`
	Session     *sessionResponse `json:"session,omitempty"`
}

type visibleFriendResponse struct {
	UserID           string    `json:"userId"`
	DisplayName      string    `json:"displayName"`
	AvatarURL        string    `json:"avatarUrl,omitempty"`
	PlaceID          string    `json:"placeId"`
	PlaceName        string    `json:"placeName"`
	PlaceAddress     string    `json:"placeAddress"`
	ReadyUntil       time.Time `json:"readyUntil"`
	MinutesRemaining int       `json:"minutesRemaining"`
	DistanceM        *float64  `json:"distanceM,omitempty"`
}

type visibleFriendsResponse struct {
	Friends []visibleFriendResponse `json:"friends"`
}

type occupantResponse struct {
	UserID           string `json:"userId"`
	DisplayName      string `json:"displayName"`
	AvatarURL        string `json:"avatarUrl,omitempty"`
	Ready            bool   `json:"ready"`
	MinutesRemaining int    `json:"minutesRemaining"`
}

type occupantsResponse struct {
	Occupants []occupantResponse `json:"occupants"`
}
