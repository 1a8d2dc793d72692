package models

import "time"

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// User represents an account within the TableTalk platform.
type User struct {
	ID            string
	Email         string
	Password      string
	DisplayName   string
	AvatarURL     string
	IsReadyToTalk bool
	ActivePlaceID *string
	ReadyUntil    *time.Time
	LastLocation  *Coordinate
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasActivePlace reports whether the user holds a non-expired check-in at
// the provided instant. Expiry is derived from ready_until alone; a stored
// active_place_id with an absent or past ready_until is treated as no
// session, so a stale row can never surface a ghost check-in.
func HasActivePlace(u User, now time.Time) bool {
	return u.ReadyUntil != nil && now.Before(*u.ReadyUntil) && u.ActivePlaceID != nil
}

// PresenceState is the derived combination of the ready flag and the
// active-session predicate. The two fields are orthogonal; all four
// combinations are meaningful.
type PresenceState string

const (
	// StateIdle: not ready, no active check-in.
	StateIdle PresenceState = "idle"
	// StateSeeking: ready to talk but not checked in anywhere.
	StateSeeking PresenceState = "seeking"
	// StateCheckedInVisible: ready and checked in; visible to friends.
	StateCheckedInVisible PresenceState = "checked_in_visible"
	// StateCheckedInHidden: checked in but not broadcasting ready.
	StateCheckedInHidden PresenceState = "checked_in_hidden"
)

// StateOf derives the presence state from the two underlying fields.
func StateOf(u User, now time.Time) PresenceState {
	active := HasActivePlace(u, now)
	switch {
	case u.IsReadyToTalk && active:
		return StateCheckedInVisible
	case u.IsReadyToTalk:
		return StateSeeking
	case active:
		return StateCheckedInHidden
	default:
		return StateIdle
	}
}

// FriendEdge represents the invitation workflow between two users. At most
// one edge exists per unordered pair; direction is preserved only so the
// receiver knows they may accept.
type FriendEdge struct {
	ID          string
	Requester   string
	Receiver    string
	Status      string
	CreatedAt   time.Time
	RespondedAt *time.Time
}

const (
	EdgeStatusPending  = "pending"
	EdgeStatusAccepted = "accepted"
)

// Connects reports whether the edge joins the two users, in either direction.
func (e FriendEdge) Connects(a, b string) bool {
	return (e.Requester == a && e.Receiver == b) || (e.Requester == b && e.Receiver == a)
}

// Other returns the edge endpoint that is not userID.
func (e FriendEdge) Other(userID string) string {
	if e.Requester == userID {
		return e.Receiver
	}
	return e.Requester
}

// Place is immutable reference data describing a physical venue. Places are
// not created through this service.
type Place struct {
	ID       string
	Name     string
	Address  string
	Location Coordinate
}

// RankedPlace annotates a place with its distance from a query point.
type RankedPlace struct {
	Place
	DistanceM float64
}

// Session is the derived check-in tuple reconstructed from user fields.
// It is never persisted separately.
type Session struct {
	UserID  string
	PlaceID string
	Expires time.Time
}

// VisibleFriend is one entry of a friend-visibility query result.
type VisibleFriend struct {
	UserID           string
	DisplayName      string
	AvatarURL        string
	PlaceID          string
	PlaceName        string
	PlaceAddress     string
	ReadyUntil       time.Time
	MinutesRemaining int
	DistanceM        *float64
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
