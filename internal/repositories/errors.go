package repositories

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrTransient indicates a backend failure that is safe to retry.
	ErrTransient = errors.New("transient store error")
)

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }

func (e transientError) Unwrap() error { return e.err }

func (e transientError) Is(target error) bool { return target == ErrTransient }

// Transient marks err so that errors.Is(err, ErrTransient) reports true
// while the original chain stays unwrappable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}
