package geo

import (
	"context"
	"sync"
	"time"

	"github.com/tabletalk/backend/internal/models"
)

// Simulated replays a scripted path at a fixed cadence. It backs the
// `simulate` command and tests; no real sensor is involved.
type Simulated struct {
	path     []models.Coordinate
	interval time.Duration
	denied   bool
}

// NewSimulated constructs a provider that walks the given path, emitting
// one sample per interval and stopping at the final coordinate.
func NewSimulated(path []models.Coordinate, interval time.Duration) *Simulated {
	if interval <= 0 {
		interval = time.Second
	}
	return &Simulated{path: path, interval: interval}
}

// Deny makes subsequent permission requests fail. Useful for exercising
// the degraded no-location mode.
func (s *Simulated) Deny() { s.denied = true }

// RequestPermission reports the scripted permission outcome.
func (s *Simulated) RequestPermission(context.Context) error {
	if s.denied {
		return ErrPermissionDenied
	}
	return nil
}

// Watch emits the scripted path until it is exhausted, the context is
// canceled, or the returned stop function is called.
func (s *Simulated) Watch(ctx context.Context, _ WatchOptions, fn func(Sample)) (StopFunc, error) {
	if s.denied {
		return nil, ErrPermissionDenied
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for _, c := range s.path {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				fn(Sample{Coordinate: c, AccuracyM: 10, Taken: time.Now()})
			}
		}
	}()

	return stop, nil
}
