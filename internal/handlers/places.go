package handlers

import (
	"net/http"
	"strconv"

	"github.com/tabletalk/backend/internal/middleware"
)

// PlaceHandler exposes the nearest-place query.
type PlaceHandler struct {
	Resolver VisibilityResolver
}

// Nearest handles GET /api/v1/places/nearest. Refused with 409 while the
// caller holds an active check-in; they must check out before searching.
func (h PlaceHandler) Nearest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	if h.Resolver == nil {
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "place service unavailable"})
		return
	}

	coord, err := optionalCoordinate(r)
	if err != nil || coord == nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "lat and lon query parameters are required"})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
	}

	ranked, err := h.Resolver.NearestPlaces(ctx, middleware.UserID(ctx), *coord, limit)
	if err != nil {
		respondPresenceError(ctx, w, err, "nearest places")
		return
	}

	entries := make([]placeResponse, 0, len(ranked))
	for _, p := range ranked {
		entries = append(entries, placeResponse{
			ID:        p.ID,
			Name:      p.Name,
			Address:   p.Address,
			Latitude:  p.Location.Latitude,
			Longitude: p.Location.Longitude,
			DistanceM: p.DistanceM,
		})
	}

	respondJSON(ctx, w, http.StatusOK, nearestPlacesResponse{Places: entries})
}

type placeResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	DistanceM float64 `json:"distanceM"`
}

type nearestPlacesResponse struct {
	Places []placeResponse `json:"places"`
}
