package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tabletalk/backend/internal/logging"
	"github.com/tabletalk/backend/internal/middleware"
	"github.com/tabletalk/backend/internal/repositories"
)

// Uploaded avatars are capped at 2 MiB.
const maxAvatarBytes = 2 << 20

// ProfileHandler manages display names and avatar uploads.
type ProfileHandler struct {
	Users   UserStore
	Avatars AvatarStorage
}

// Update handles PUT /api/v1/profile.
func (h ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID := middleware.UserID(ctx)

	if h.Users == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "profile service unavailable"})
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "displayName is required"})
		return
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("profile lookup failed", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load profile"})
		return
	}

	if err := h.Users.UpdateProfile(ctx, userID, req.DisplayName, user.AvatarURL); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "no such user"})
			return
		}
		logging.FromContext(ctx).Error("profile update failed", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to update profile"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"displayName": req.DisplayName})
}

// UploadAvatar handles POST /api/v1/profile/avatar. The body is the raw
// image; the stored public URL is written back to the user row.
func (h ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	userID := middleware.UserID(ctx)

	if h.Users == nil || h.Avatars == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "avatar service unavailable"})
		return
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("profile lookup failed", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to load profile"})
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	key := fmt.Sprintf("avatars/%s", userID)

	url, err := h.Avatars.Save(ctx, key, body)
	if err != nil {
		logging.FromContext(ctx).Error("avatar upload failed", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to store avatar"})
		return
	}

	if err := h.Users.UpdateProfile(ctx, userID, user.DisplayName, url); err != nil {
		logging.FromContext(ctx).Error("avatar url update failed", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to update profile"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"avatarUrl": url})
}

type updateProfileRequest struct {
	DisplayName string `json:"displayName"`
}
