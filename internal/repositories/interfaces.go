package repositories

import (
	"context"
	"time"

	"github.com/tabletalk/backend/internal/models"
)

// UserRepository defines data access for user rows, including the
// availability-session fields.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindMany(ctx context.Context, ids []string) ([]models.User, error)
	UpdateProfile(ctx context.Context, id, displayName, avatarURL string) error

	SetAvailability(ctx context.Context, id string, ready bool) error
	// StartSessionIf sets the place and expiry only when the row holds no
	// live session (ready_until null or already passed). It reports whether
	// the update applied, making concurrent check-ins race-safe.
	StartSessionIf(ctx context.Context, id, placeID string, until time.Time, coord *models.Coordinate) (bool, error)
	ClearSession(ctx context.Context, id string) error
	UpdateLocation(ctx context.Context, id string, coord models.Coordinate) error

	ListOccupants(ctx context.Context, placeID string, now time.Time) ([]models.User, error)
	ClearExpired(ctx context.Context, now time.Time) ([]string, error)
	SearchCandidates(ctx context.Context, viewerID, query string) ([]models.User, error)
}

// FriendRepository defines data access for friend edges.
type FriendRepository interface {
	CreateEdge(ctx context.Context, edge models.FriendEdge) error
	FindEdge(ctx context.Context, a, b string) (models.FriendEdge, error)
	AcceptEdge(ctx context.Context, requesterID, receiverID string, respondedAt time.Time) error
	DeleteEdge(ctx context.Context, a, b string) error
	AcceptedFriendIDs(ctx context.Context, userID string) ([]string, error)
	ListAccepted(ctx context.Context, userID string) ([]models.FriendEdge, error)
	ListIncoming(ctx context.Context, userID string) ([]models.FriendEdge, error)
}

// PlaceRepository defines read access to the place reference data.
type PlaceRepository interface {
	ListPlaces(ctx context.Context) ([]models.Place, error)
	FindPlace(ctx context.Context, id string) (models.Place, error)
}
