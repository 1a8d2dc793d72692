package presence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tabletalk/backend/internal/geo"
	"github.com/tabletalk/backend/internal/models"
	"github.com/tabletalk/backend/internal/places"
	"github.com/tabletalk/backend/internal/repositories"
)

// Occupant is one co-located user at a place.
type Occupant struct {
	UserID           string
	DisplayName      string
	AvatarURL        string
	IsReadyToTalk    bool
	MinutesRemaining int
}

// Resolver derives the visibility queries from session and friend-graph
// state. It owns no state of its own; every answer is recomputed from the
// stores at read time.
type Resolver struct {
	users     repositories.UserRepository
	friends   repositories.FriendRepository
	placeRepo repositories.PlaceRepository
	directory *places.Directory
	now       func() time.Time
}

// NewResolver constructs a Resolver over the provided collaborators.
func NewResolver(users repositories.UserRepository, friends repositories.FriendRepository, placeRepo repositories.PlaceRepository, directory *places.Directory) *Resolver {
	return &Resolver{
		users:     users,
		friends:   friends,
		placeRepo: placeRepo,
		directory: directory,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// VisibleFriends returns the caller's accepted friends who are ready to
// talk and hold a valid check-in right now, sorted by remaining session
// time descending. The one visibility definition: accepted edge in either
// direction AND is_ready_to_talk AND an unexpired session with a place.
// The caller never appears in their own result.
func (r *Resolver) VisibleFriends(ctx context.Context, userID string, coord *models.Coordinate) ([]models.VisibleFriend, error) {
	ids, err := r.friends.AcceptedFriendIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("accepted friend ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	friends, err := r.users.FindMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load friends: %w", err)
	}

	now := r.now()
	placeNames := make(map[string]models.Place)

	var visible []models.VisibleFriend
	for _, friend := range friends {
		if friend.ID == userID {
			continue
		}
		if !friend.IsReadyToTalk || !models.HasActivePlace(friend, now) {
			continue
		}

		// Clamp at the read instant: a session at or past expiry is
		// dropped even when the stored row lags the sweep.
		minutes := int(friend.ReadyUntil.Sub(now).Minutes())
		if minutes < 0 {
			continue
		}

		placeID := *friend.ActivePlaceID
		place, ok := placeNames[placeID]
		if !ok {
			place, err = r.placeRepo.FindPlace(ctx, placeID)
			if err != nil {
				return nil, fmt.Errorf("load place %s: %w", placeID, err)
			}
			placeNames[placeID] = place
		}

		entry := models.VisibleFriend{
			UserID:           friend.ID,
			DisplayName:      friend.DisplayName,
			AvatarURL:        friend.AvatarURL,
			PlaceID:          placeID,
			PlaceName:        place.Name,
			PlaceAddress:     place.Address,
			ReadyUntil:       *friend.ReadyUntil,
			MinutesRemaining: minutes,
		}
		if coord != nil {
			d := geo.DistanceM(*coord, place.Location)
			entry.DistanceM = &d
		}

		visible = append(visible, entry)
	}

	sort.Slice(visible, func(i, j int) bool {
		if visible[i].MinutesRemaining != visible[j].MinutesRemaining {
			return visible[i].MinutesRemaining > visible[j].MinutesRemaining
		}
		return visible[i].UserID < visible[j].UserID
	})

	return visible, nil
}

// Occupants returns the other users holding a valid session at the place.
// Served only to callers themselves checked in there; anyone else gets
// ErrNotCheckedIn, which bounds query cost and prevents scraping global
// presence.
func (r *Resolver) Occupants(ctx context.Context, callerID, placeID string) ([]Occupant, error) {
	caller, err := r.users.FindByID(ctx, callerID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	if !models.HasActivePlace(caller, now) || *caller.ActivePlaceID != placeID {
		return nil, ErrNotCheckedIn
	}

	users, err := r.users.ListOccupants(ctx, placeID, now)
	if err != nil {
		return nil, fmt.Errorf("list occupants: %w", err)
	}

	occupants := make([]Occupant, 0, len(users))
	for _, u := range users {
		if u.ID == callerID {
			continue
		}
		occupants = append(occupants, Occupant{
			UserID:           u.ID,
			DisplayName:      u.DisplayName,
			AvatarURL:        u.AvatarURL,
			IsReadyToTalk:    u.IsReadyToTalk,
			MinutesRemaining: int(u.ReadyUntil.Sub(now).Minutes()),
		})
	}

	return occupants, nil
}

// NearestPlaces ranks places around the coordinate. A caller holding a
// valid session must clear it before searching again; this is enforced
// here, not just in the UI, to avoid wasted ranking work and accidental
// overwrite races.
func (r *Resolver) NearestPlaces(ctx context.Context, callerID string, coord models.Coordinate, limit int) ([]models.RankedPlace, error) {
	caller, err := r.users.FindByID(ctx, callerID)
	if err != nil {
		return nil, err
	}

	if !IsExpired(caller.ReadyUntil, r.now()) {
		return nil, ErrActiveSession
	}

	return r.directory.Nearest(ctx, coord, limit)
}

// WithNowFunc allows tests to override the read clock.
func (r *Resolver) WithNowFunc(now func() time.Time) {
	r.now = now
}
