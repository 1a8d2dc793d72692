package presence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tabletalk/backend/internal/models"
	"github.com/tabletalk/backend/internal/repositories"
)

func TestSweeperClearsExpiredRows(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	users := repositories.NewMemoryUserRepository().WithNowFunc(func() time.Time { return now })
	broker := NewBroker()

	placeID := uuid.NewString()
	lapsed := models.User{ID: uuid.NewString(), Email: "lapsed@example.com"}
	live := models.User{ID: uuid.NewString(), Email: "live@example.com"}
	for _, u := range []models.User{lapsed, live} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	if _, err := users.StartSessionIf(ctx, lapsed.ID, placeID, now.Add(-time.Minute), nil); err != nil {
		t.Fatalf("seed lapsed session: %v", err)
	}
	if _, err := users.StartSessionIf(ctx, live.ID, placeID, now.Add(time.Hour), nil); err != nil {
		t.Fatalf("seed live session: %v", err)
	}

	events, cancel := broker.Subscribe(lapsed.ID)
	defer cancel()

	sweeper := NewSweeper(users, broker, time.Minute, nil)
	sweeper.WithNowFunc(func() time.Time { return now })

	sweeper.sweep(ctx)

	cleared, err := users.FindByID(ctx, lapsed.ID)
	if err != nil {
		t.Fatalf("find lapsed user: %v", err)
	}
	if cleared.ReadyUntil != nil || cleared.ActivePlaceID != nil {
		t.Fatalf("expected lapsed session cleared, got %+v", cleared)
	}

	kept, err := users.FindByID(ctx, live.ID)
	if err != nil {
		t.Fatalf("find live user: %v", err)
	}
	if kept.ReadyUntil == nil || kept.ActivePlaceID == nil {
		t.Fatal("expected the live session to survive the sweep")
	}

	select {
	case evt := <-events:
		if evt.Type != EventSessionExpired || evt.UserID != lapsed.ID {
			t.Fatalf("unexpected event: %+v", evt)
		}
	default:
		t.Fatal("expected an expiry event for the lapsed user")
	}
}

func TestSweeperEnforcesMinimumInterval(t *testing.T) {
	users := repositories.NewMemoryUserRepository()

	sweeper := NewSweeper(users, nil, time.Second, nil)
	if sweeper.interval != MinSweepInterval {
		t.Fatalf("expected interval raised to %v, got %v", MinSweepInterval, sweeper.interval)
	}

	sweeper = NewSweeper(users, nil, 2*time.Minute, nil)
	if sweeper.interval != 2*time.Minute {
		t.Fatalf("expected configured interval kept, got %v", sweeper.interval)
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	users := repositories.NewMemoryUserRepository()
	sweeper := NewSweeper(users, nil, MinSweepInterval, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after cancellation")
	}
}
