package handlers

import (
	"context"
	"io"
	"time"

	"github.com/tabletalk/backend/internal/models"
	"github.com/tabletalk/backend/internal/presence"
)

// UserStore captures the persistence operations required by the auth and
// profile handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindMany(ctx context.Context, ids []string) ([]models.User, error)
	UpdateProfile(ctx context.Context, id, displayName, avatarURL string) error
	SearchCandidates(ctx context.Context, viewerID, query string) ([]models.User, error)
}

// SessionManager issues, refreshes and resolves authentication tokens.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Authenticate(ctx context.Context, accessToken string) (string, error)
}

// FriendStore captures operations required by the friend handlers.
type FriendStore interface {
	CreateEdge(ctx context.Context, edge models.FriendEdge) error
	AcceptEdge(ctx context.Context, requesterID, receiverID string, respondedAt time.Time) error
	DeleteEdge(ctx context.Context, a, b string) error
	ListAccepted(ctx context.Context, userID string) ([]models.FriendEdge, error)
	ListIncoming(ctx context.Context, userID string) ([]models.FriendEdge, error)
}

// PresenceManager drives the availability-session lifecycle.
type PresenceManager interface {
	SetAvailability(ctx context.Context, userID string, ready bool) error
	StartSession(ctx context.Context, userID, placeID string, durationHours float64, coord *models.Coordinate) (models.Session, error)
	ClearSession(ctx context.Context, userID string) error
	UpdateLocation(ctx context.Context, userID string, coord models.Coordinate) error
	Snapshot(ctx context.Context, userID string) (models.User, models.PresenceState, *models.Session, error)
}

// VisibilityResolver answers the friend-visibility and occupancy queries.
type VisibilityResolver interface {
	VisibleFriends(ctx context.Context, userID string, coord *models.Coordinate) ([]models.VisibleFriend, error)
	Occupants(ctx context.Context, callerID, placeID string) ([]presence.Occupant, error)
	NearestPlaces(ctx context.Context, callerID string, coord models.Coordinate, limit int) ([]models.RankedPlace, error)
}

// AvatarStorage persists uploaded profile pictures and returns a public URL.
type AvatarStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}
