package handlers

import (
	"net/http"

	"github.com/tabletalk/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users       UserStore
	Sessions    SessionManager
	Friends     FriendStore
	Presence    PresenceManager
	Resolver    VisibilityResolver
	Avatars     AvatarStorage
	AuthLimiter RateLimiter
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux. All
// /api/v1 routes except the auth endpoints require a bearer token.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	authH := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.AuthLimiter}
	presenceH := PresenceHandler{Manager: deps.Presence, Resolver: deps.Resolver}
	friendsH := FriendHandler{Friends: deps.Friends, Users: deps.Users, Limiter: deps.AuthLimiter}
	placesH := PlaceHandler{Resolver: deps.Resolver}
	profileH := ProfileHandler{Users: deps.Users, Avatars: deps.Avatars}

	requireUser := middleware.RequireUser(deps.Sessions)
	protected := func(h http.HandlerFunc) http.Handler { return requireUser(h) }

	mux.HandleFunc("/healthz", health.Handle)

	mux.HandleFunc("/api/v1/auth/signup", authH.SignUp)
	mux.HandleFunc("/api/v1/auth/login", authH.Login)
	mux.HandleFunc("/api/v1/auth/refresh", authH.Refresh)

	mux.Handle("/api/v1/profile", protected(profileH.Update))
	mux.Handle("/api/v1/profile/avatar", protected(profileH.UploadAvatar))

	mux.Handle("/api/v1/presence", protected(presenceH.Snapshot))
	mux.Handle("/api/v1/presence/availability", protected(presenceH.Availability))
	mux.Handle("/api/v1/presence/checkin", protected(presenceH.CheckIn))
	mux.Handle("/api/v1/presence/checkout", protected(presenceH.CheckOut))
	mux.Handle("/api/v1/presence/location", protected(presenceH.Location))
	mux.Handle("/api/v1/presence/friends", protected(presenceH.VisibleFriends))
	mux.Handle("/api/v1/presence/occupants", protected(presenceH.Occupants))

	mux.Handle("/api/v1/places/nearest", protected(placesH.Nearest))

	mux.Handle("/api/v1/friends", protected(friendsH.List))
	mux.Handle("/api/v1/friends/incoming", protected(friendsH.Incoming))
	mux.Handle("/api/v1/friends/invite", protected(friendsH.Invite))
	mux.Handle("/api/v1/friends/respond", protected(friendsH.Respond))
	mux.Handle("/api/v1/friends/remove", protected(friendsH.Remove))

	mux.Handle("/api/v1/users/search", protected(friendsH.Search))
}
