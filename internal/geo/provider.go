package geo

import (
	"context"
	"errors"
	"time"

	"github.com/tabletalk/backend/internal/models"
)

var (
	// ErrPermissionDenied indicates the device refused access to location data.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrWatchStopped indicates the watch was torn down before delivering samples.
	ErrWatchStopped = errors.New("location watch stopped")
	// ErrInvalidCoordinate indicates a point outside WGS84 bounds.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// Sample is one position fix delivered by a provider.
type Sample struct {
	Coordinate models.Coordinate
	AccuracyM  float64
	Taken      time.Time
}

// WatchOptions bound how often a watch may deliver samples. A sample is
// dropped when it arrives sooner than MinInterval after the previous
// delivery, or when the device moved less than MinDistanceM.
type WatchOptions struct {
	MinInterval  time.Duration
	MinDistanceM float64
}

// StopFunc tears down an active watch. Safe to call more than once.
type StopFunc func()

// Provider supplies position fixes for the current device. Implementations
// may fail permission or stop delivering at any time; a watch with no
// subscriber must not keep running.
type Provider interface {
	RequestPermission(ctx context.Context) error
	Watch(ctx context.Context, opts WatchOptions, fn func(Sample)) (StopFunc, error)
}
