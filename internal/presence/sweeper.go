package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/tabletalk/backend/internal/repositories"
)

// MinSweepInterval is the floor for the background sweep cadence.
const MinSweepInterval = 30 * time.Second

// Sweeper periodically clears user rows whose check-in expiry has passed.
// This is hygiene only: every read path re-derives expiry itself, so
// correctness never depends on sweep timing.
type Sweeper struct {
	users    repositories.UserRepository
	broker   *Broker
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper constructs a sweeper over the user store. Intervals below
// MinSweepInterval are raised to it.
func NewSweeper(users repositories.UserRepository, broker *Broker, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval < MinSweepInterval {
		interval = MinSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		users:    users,
		broker:   broker,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on the configured cadence until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	ids, err := s.users.ClearExpired(ctx, s.now())
	if err != nil {
		s.logger.Warn("expiry sweep failed", "error", err)
		return
	}

	if len(ids) == 0 {
		return
	}

	s.logger.Info("cleared expired sessions", "count", len(ids))

	if s.broker != nil {
		at := s.now()
		for _, id := range ids {
			s.broker.Publish(Event{Type: EventSessionExpired, UserID: id, At: at})
		}
	}
}

// WithNowFunc allows tests to override the time source.
func (s *Sweeper) WithNowFunc(now func() time.Time) {
	s.now = now
}
