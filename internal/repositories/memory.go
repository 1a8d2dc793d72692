package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tabletalk/backend/internal/models"
)

// MemoryUserRepository implements UserRepository over an in-memory map,
// for unit tests and the simulate command.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]models.User
	now   func() time.Time

	friends *MemoryFriendRepository
}

// NewMemoryUserRepository returns an empty in-memory user repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]models.User), now: time.Now}
}

// WithNowFunc overrides the clock used by the conditional session update.
// The SQL implementation compares against the database clock; tests that
// drive a fake clock need the same instant here.
func (r *MemoryUserRepository) WithNowFunc(now func() time.Time) *MemoryUserRepository {
	r.now = now
	return r
}

// WithFriendEdges links a friend repository so SearchCandidates can apply
// the same already-connected exclusion the SQL version expresses as a
// NOT EXISTS clause.
func (r *MemoryUserRepository) WithFriendEdges(friends *MemoryFriendRepository) *MemoryUserRepository {
	r.friends = friends
	return r
}

// Create stores a new user, rejecting duplicate ids or emails.
func (r *MemoryUserRepository) Create(_ context.Context, user models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return ErrConflict
	}
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return ErrConflict
		}
	}
	r.users[user.ID] = user
	return nil
}

// FindByID returns the user with the given id.
func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return user, nil
}

// FindByEmail returns the user with the given email.
func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, ErrNotFound
}

// FindMany returns the users with the provided ids, omitting unknown ids.
func (r *MemoryUserRepository) FindMany(_ context.Context, ids []string) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.User
	for _, id := range ids {
		if user, ok := r.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

// UpdateProfile sets the display name and avatar URL.
func (r *MemoryUserRepository) UpdateProfile(_ context.Context, id, displayName, avatarURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.DisplayName = displayName
	user.AvatarURL = avatarURL
	user.UpdatedAt = time.Now().UTC()
	r.users[id] = user
	return nil
}

// SetAvailability flips the ready flag.
func (r *MemoryUserRepository) SetAvailability(_ context.Context, id string, ready bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.IsReadyToTalk = ready
	r.users[id] = user
	return nil
}

// StartSessionIf applies the check-in only when the row holds no live session.
func (r *MemoryUserRepository) StartSessionIf(_ context.Context, id, placeID string, until time.Time, coord *models.Coordinate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return false, ErrNotFound
	}
	if user.ReadyUntil != nil && r.now().Before(*user.ReadyUntil) {
		return false, nil
	}

	u := until.UTC()
	user.ActivePlaceID = &placeID
	user.ReadyUntil = &u
	if coord != nil {
		c := *coord
		user.LastLocation = &c
	}
	r.users[id] = user
	return true, nil
}

// ClearSession nils the session fields, idempotently.
func (r *MemoryUserRepository) ClearSession(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil
	}
	user.ActivePlaceID = nil
	user.ReadyUntil = nil
	r.users[id] = user
	return nil
}

// UpdateLocation stores the last known coordinate.
func (r *MemoryUserRepository) UpdateLocation(_ context.Context, id string, coord models.Coordinate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.LastLocation = &coord
	r.users[id] = user
	return nil
}

// ListOccupants returns users with a live session at the place.
func (r *MemoryUserRepository) ListOccupants(_ context.Context, placeID string, now time.Time) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.User
	for _, user := range r.users {
		if user.ActivePlaceID != nil && *user.ActivePlaceID == placeID &&
			user.ReadyUntil != nil && user.ReadyUntil.After(now) {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReadyUntil.After(*out[j].ReadyUntil) })
	return out, nil
}

// ClearExpired nils the session fields on expired rows and returns their ids.
func (r *MemoryUserRepository) ClearExpired(_ context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, user := range r.users {
		if user.ReadyUntil != nil && !user.ReadyUntil.After(now) {
			user.ActivePlaceID = nil
			user.ReadyUntil = nil
			r.users[id] = user
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// SearchCandidates matches display name or email, excluding the viewer
// and, when a friend repository is linked, anyone already connected.
func (r *MemoryUserRepository) SearchCandidates(ctx context.Context, viewerID, query string) ([]models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(query)
	var out []models.User
	for _, user := range r.users {
		if user.ID == viewerID {
			continue
		}
		if r.friends != nil {
			if _, err := r.friends.FindEdge(ctx, viewerID, user.ID); err == nil {
				continue
			}
		}
		if strings.Contains(strings.ToLower(user.DisplayName), q) ||
			strings.Contains(strings.ToLower(user.Email), q) {
			out = append(out, user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

// MemoryFriendRepository implements FriendRepository over an in-memory map.
type MemoryFriendRepository struct {
	mu    sync.RWMutex
	edges map[string]models.FriendEdge
}

// NewMemoryFriendRepository returns an empty in-memory friend repository.
func NewMemoryFriendRepository() *MemoryFriendRepository {
	return &MemoryFriendRepository{edges: make(map[string]models.FriendEdge)}
}

// CreateEdge stores a new edge, rejecting a duplicate pair in either direction.
func (r *MemoryFriendRepository) CreateEdge(_ context.Context, edge models.FriendEdge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.edges {
		if existing.Connects(edge.Requester, edge.Receiver) {
			return ErrConflict
		}
	}
	r.edges[edge.ID] = edge
	return nil
}

// FindEdge returns the edge joining the two users, in either direction.
func (r *MemoryFriendRepository) FindEdge(_ context.Context, a, b string) (models.FriendEdge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, edge := range r.edges {
		if edge.Connects(a, b) {
			return edge, nil
		}
	}
	return models.FriendEdge{}, ErrNotFound
}

// AcceptEdge promotes a pending edge in the exact requester->receiver direction.
func (r *MemoryFriendRepository) AcceptEdge(_ context.Context, requesterID, receiverID string, respondedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, edge := range r.edges {
		if edge.Requester == requesterID && edge.Receiver == receiverID && edge.Status == models.EdgeStatusPending {
			t := respondedAt.UTC()
			edge.Status = models.EdgeStatusAccepted
			edge.RespondedAt = &t
			r.edges[id] = edge
			return nil
		}
	}
	return ErrNotFound
}

// DeleteEdge removes the edge between the two users. Absent edge is not an error.
func (r *MemoryFriendRepository) DeleteEdge(_ context.Context, a, b string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, edge := range r.edges {
		if edge.Connects(a, b) {
			delete(r.edges, id)
		}
	}
	return nil
}

// AcceptedFriendIDs returns ids connected to userID by accepted edges.
func (r *MemoryFriendRepository) AcceptedFriendIDs(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, edge := range r.edges {
		if edge.Status == models.EdgeStatusAccepted && (edge.Requester == userID || edge.Receiver == userID) {
			ids = append(ids, edge.Other(userID))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListAccepted returns accepted edges touching userID.
func (r *MemoryFriendRepository) ListAccepted(_ context.Context, userID string) ([]models.FriendEdge, error) {
	return r.list(func(e models.FriendEdge) bool {
		return e.Status == models.EdgeStatusAccepted && (e.Requester == userID || e.Receiver == userID)
	})
}

// ListIncoming returns pending edges directed at userID.
func (r *MemoryFriendRepository) ListIncoming(_ context.Context, userID string) ([]models.FriendEdge, error) {
	return r.list(func(e models.FriendEdge) bool {
		return e.Status == models.EdgeStatusPending && e.Receiver == userID
	})
}

func (r *MemoryFriendRepository) list(keep func(models.FriendEdge) bool) ([]models.FriendEdge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.FriendEdge
	for _, edge := range r.edges {
		if keep(edge) {
			out = append(out, edge)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MemoryPlaceRepository implements PlaceRepository over a fixed slice.
type MemoryPlaceRepository struct {
	mu     sync.RWMutex
	places []models.Place
}

// NewMemoryPlaceRepository returns a place repository seeded with the
// provided places.
func NewMemoryPlaceRepository(places ...models.Place) *MemoryPlaceRepository {
	return &MemoryPlaceRepository{places: places}
}

// ListPlaces returns every seeded place.
func (r *MemoryPlaceRepository) ListPlaces(context.Context) ([]models.Place, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Place, len(r.places))
	copy(out, r.places)
	return out, nil
}

// FindPlace returns the place with the given id.
func (r *MemoryPlaceRepository) FindPlace(_ context.Context, id string) (models.Place, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.places {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Place{}, ErrNotFound
}

var _ UserRepository = (*MemoryUserRepository)(nil)
var _ FriendRepository = (*MemoryFriendRepository)(nil)
var _ PlaceRepository = (*MemoryPlaceRepository)(nil)
