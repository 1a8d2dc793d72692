package geo

import (
	"context"
	"sync"
	"time"
)

// Throttled wraps a Provider and enforces WatchOptions on its behalf, for
// raw providers that deliver every fix they see.
type Throttled struct {
	base Provider
	now  func() time.Time
}

// NewThrottled returns a provider that filters the base provider's samples
// by minimum interval and minimum movement.
func NewThrottled(base Provider) *Throttled {
	return &Throttled{base: base, now: time.Now}
}

// RequestPermission delegates to the base provider.
func (t *Throttled) RequestPermission(ctx context.Context) error {
	return t.base.RequestPermission(ctx)
}

// Watch subscribes to the base provider and forwards only samples that
// satisfy opts.
func (t *Throttled) Watch(ctx context.Context, opts WatchOptions, fn func(Sample)) (StopFunc, error) {
	var mu sync.Mutex
	var lastDelivered *Sample
	var lastAt time.Time

	inner, err := t.base.Watch(ctx, WatchOptions{}, func(s Sample) {
		mu.Lock()
		defer mu.Unlock()

		now := t.now()
		if lastDelivered != nil {
			if opts.MinInterval > 0 && now.Sub(lastAt) < opts.MinInterval {
				return
			}
			if opts.MinDistanceM > 0 && DistanceM(lastDelivered.Coordinate, s.Coordinate) < opts.MinDistanceM {
				return
			}
		}

		lastDelivered = &s
		lastAt = now
		fn(s)
	})
	if err != nil {
		return nil, err
	}

	return inner, nil
}

// WithNowFunc allows tests to override the time source.
func (t *Throttled) WithNowFunc(now func() time.Time) {
	t.now = now
}
