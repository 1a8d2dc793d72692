package presence

import "errors"

var (
	// ErrActiveSession indicates the user already holds a non-expired
	// check-in. Callers must clear it first; there is no implicit overwrite.
	ErrActiveSession = errors.New("active session already exists")
	// ErrInvalidDuration indicates a non-positive or excessive check-in duration.
	ErrInvalidDuration = errors.New("invalid session duration")
	// ErrPlaceNotFound indicates the referenced place does not exist.
	ErrPlaceNotFound = errors.New("place not found")
	// ErrNotCheckedIn indicates the caller holds no valid session at the
	// queried place. Occupancy data is only served to co-located users.
	ErrNotCheckedIn = errors.New("caller is not checked in at this place")
)
