package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tabletalk/backend/internal/geo"
	"github.com/tabletalk/backend/internal/logging"
	"github.com/tabletalk/backend/internal/models"
	"github.com/tabletalk/backend/internal/repositories"
)

// MaxDurationHours caps a single check-in. Bounds ghost sessions caused by
// a mistyped duration; the UI offers 1-4 hours.
const MaxDurationHours = 24.0

// IsExpired is the expiry predicate: true when no expiry is stored or the
// stored expiry is at or before now. Every read path applies it; stored
// session fields are never trusted on their own.
func IsExpired(readyUntil *time.Time, now time.Time) bool {
	return readyUntil == nil || !readyUntil.After(now)
}

// Manager owns the availability-session lifecycle: the per-user ready
// flag, the optional active check-in, and the transitions between them.
type Manager struct {
	users  repositories.UserRepository
	places repositories.PlaceRepository
	broker *Broker
	now    func() time.Time
}

// NewManager constructs a Manager over the provided stores. The broker is
// optional; a nil broker disables event publication.
func NewManager(users repositories.UserRepository, places repositories.PlaceRepository, broker *Broker) *Manager {
	if users == nil || places == nil {
		panic("presence: user and place repositories must not be nil")
	}
	return &Manager{
		users:  users,
		places: places,
		broker: broker,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetAvailability flips the ready-to-talk flag. It never touches an
// existing check-in: a user can be checked in without broadcasting ready,
// and turning ready on has no side effect on session state.
func (m *Manager) SetAvailability(ctx context.Context, userID string, ready bool) error {
	err := m.retry(ctx, func() error {
		return m.users.SetAvailability(ctx, userID, ready)
	})
	if err != nil {
		return err
	}

	m.publish(Event{Type: EventAvailabilityChanged, UserID: userID, Ready: &ready, At: m.now()})
	return nil
}

// StartSession checks the user in at a place for the given duration. The
// expiry is computed from the server clock, never the client's. Fails with
// ErrActiveSession when a non-expired session exists, ErrInvalidDuration
// for a non-positive or excessive duration, and ErrPlaceNotFound for an
// unknown place. On failure the prior state is untouched.
func (m *Manager) StartSession(ctx context.Context, userID, placeID string, durationHours float64, coord *models.Coordinate) (models.Session, error) {
	ctx, span := logging.StartSpan(ctx, "presence.StartSession")
	defer span.End()

	if durationHours <= 0 || durationHours > MaxDurationHours {
		return models.Session{}, ErrInvalidDuration
	}
	if coord != nil && !geo.Valid(*coord) {
		return models.Session{}, geo.ErrInvalidCoordinate
	}

	if _, err := m.places.FindPlace(ctx, placeID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Session{}, ErrPlaceNotFound
		}
		return models.Session{}, fmt.Errorf("find place: %w", err)
	}

	now := m.now()
	user, err := m.users.FindByID(ctx, userID)
	if err != nil {
		return models.Session{}, err
	}
	if !IsExpired(user.ReadyUntil, now) {
		return models.Session{}, ErrActiveSession
	}

	until := now.Add(time.Duration(durationHours * float64(time.Hour)))

	// The conditional update is the real guard; the check above only
	// produces a friendlier error without a write. A concurrent check-in
	// between the two is caught here.
	applied, err := m.retryStart(ctx, userID, placeID, until, coord)
	if err != nil {
		return models.Session{}, err
	}
	if !applied {
		return models.Session{}, ErrActiveSession
	}

	m.publish(Event{Type: EventSessionStarted, UserID: userID, PlaceID: placeID, ReadyUntil: &until, At: now})

	return models.Session{UserID: userID, PlaceID: placeID, Expires: until}, nil
}

// ClearSession removes any stored check-in. Clearing an absent or already
// expired session succeeds; the operation is idempotent.
func (m *Manager) ClearSession(ctx context.Context, userID string) error {
	err := m.retry(ctx, func() error {
		return m.users.ClearSession(ctx, userID)
	})
	if err != nil {
		return err
	}

	m.publish(Event{Type: EventSessionCleared, UserID: userID, At: m.now()})
	return nil
}

// UpdateLocation stores the device's last known coordinate.
func (m *Manager) UpdateLocation(ctx context.Context, userID string, coord models.Coordinate) error {
	if !geo.Valid(coord) {
		return geo.ErrInvalidCoordinate
	}
	return m.retry(ctx, func() error {
		return m.users.UpdateLocation(ctx, userID, coord)
	})
}

// Snapshot returns the user's current presence: the derived state and, if
// a valid session exists, its tuple. A stored but expired session is
// reported as absent and lazily cleared so the row heals without waiting
// for the sweep.
func (m *Manager) Snapshot(ctx context.Context, userID string) (models.User, models.PresenceState, *models.Session, error) {
	user, err := m.users.FindByID(ctx, userID)
	if err != nil {
		return models.User{}, "", nil, err
	}

	now := m.now()
	state := models.StateOf(user, now)

	if IsExpired(user.ReadyUntil, now) {
		if user.ReadyUntil != nil || user.ActivePlaceID != nil {
			if err := m.users.ClearSession(ctx, userID); err != nil {
				logging.FromContext(ctx).Warn("lazy session clear failed", "userId", userID, "error", err)
			} else {
				m.publish(Event{Type: EventSessionExpired, UserID: userID, At: now})
			}
			user.ReadyUntil = nil
			user.ActivePlaceID = nil
		}
		return user, state, nil, nil
	}

	if !models.HasActivePlace(user, now) {
		// ready_until in the future with no place is inconsistent data;
		// heal it the same way as an expired row.
		if err := m.users.ClearSession(ctx, userID); err != nil {
			logging.FromContext(ctx).Warn("session heal failed", "userId", userID, "error", err)
		}
		user.ReadyUntil = nil
		return user, models.StateOf(user, now), nil, nil
	}

	session := &models.Session{UserID: userID, PlaceID: *user.ActivePlaceID, Expires: *user.ReadyUntil}
	return user, state, session, nil
}

// WithNowFunc allows tests to override the server clock.
func (m *Manager) WithNowFunc(now func() time.Time) {
	m.now = now
}

func (m *Manager) publish(evt Event) {
	if m.broker != nil {
		m.broker.Publish(evt)
	}
}

// Transient store failures are retried once, then surfaced.
func (m *Manager) retry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !errors.Is(err, repositories.ErrTransient) {
		return err
	}
	if ctx.Err() != nil {
		return err
	}
	return op()
}

func (m *Manager) retryStart(ctx context.Context, userID, placeID string, until time.Time, coord *models.Coordinate) (bool, error) {
	applied, err := m.users.StartSessionIf(ctx, userID, placeID, until, coord)
	if err == nil || !errors.Is(err, repositories.ErrTransient) {
		return applied, err
	}
	if ctx.Err() != nil {
		return false, err
	}
	return m.users.StartSessionIf(ctx, userID, placeID, until, coord)
}
