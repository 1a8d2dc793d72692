package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tabletalk/backend/internal/geo"
	"github.com/tabletalk/backend/internal/models"
	"github.com/tabletalk/backend/internal/places"
	"github.com/tabletalk/backend/internal/presence"
	"github.com/tabletalk/backend/internal/repositories"
)

const simulateStepInterval = 200 * time.Millisecond

// runSimulation walks a scripted device through a full availability cycle
// against in-memory stores: request location permission, stream throttled
// fixes, rank nearby cafés, check in at the closest one, observe a friend
// become visible, and check out. It exists so the whole presence path can
// be exercised without Postgres or a real device.
func runSimulation(ctx context.Context, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	samplePlaces := []models.Place{
		{ID: uuid.NewString(), Name: "Café Fermata", Address: "12 Canal St", Location: models.Coordinate{Latitude: 52.3702, Longitude: 4.8952}},
		{ID: uuid.NewString(), Name: "Driftwood Coffee", Address: "88 Harbor Rd", Location: models.Coordinate{Latitude: 52.3735, Longitude: 4.8901}},
		{ID: uuid.NewString(), Name: "The Long Table", Address: "3 Mill Ln", Location: models.Coordinate{Latitude: 52.3650, Longitude: 4.9010}},
	}

	friendRepo := repositories.NewMemoryFriendRepository()
	users := repositories.NewMemoryUserRepository().WithFriendEdges(friendRepo)
	placeRepo := repositories.NewMemoryPlaceRepository(samplePlaces...)

	broker := presence.NewBroker()
	manager := presence.NewManager(users, placeRepo, broker)
	directory := places.NewDirectory(placeRepo, time.Minute)
	resolver := presence.NewResolver(users, friendRepo, placeRepo, directory)

	now := time.Now()
	walker := models.User{ID: uuid.NewString(), Email: "walker@example.com", DisplayName: "Walker", IsReadyToTalk: true, CreatedAt: now, UpdatedAt: now}
	friend := models.User{ID: uuid.NewString(), Email: "friend@example.com", DisplayName: "Friend", IsReadyToTalk: true, CreatedAt: now, UpdatedAt: now}
	for _, u := range []models.User{walker, friend} {
		if err := users.Create(ctx, u); err != nil {
			return fmt.Errorf("seed user: %w", err)
		}
	}

	edge := models.FriendEdge{ID: uuid.NewString(), Requester: walker.ID, Receiver: friend.ID, Status: models.EdgeStatusPending, CreatedAt: now}
	if err := friendRepo.CreateEdge(ctx, edge); err != nil {
		return fmt.Errorf("seed friend edge: %w", err)
	}
	if err := friendRepo.AcceptEdge(ctx, walker.ID, friend.ID, now); err != nil {
		return fmt.Errorf("accept friend edge: %w", err)
	}

	// Put the friend at a café so the walker sees them after checking in.
	if _, err := manager.StartSession(ctx, friend.ID, samplePlaces[0].ID, 1, &samplePlaces[0].Location); err != nil {
		return fmt.Errorf("seed friend session: %w", err)
	}

	events, cancelSub := broker.Subscribe(walker.ID)
	defer cancelSub()
	go func() {
		for evt := range events {
			logger.Info("presence event", "type", string(evt.Type), "place", evt.PlaceID)
		}
	}()

	path := []models.Coordinate{
		{Latitude: 52.3600, Longitude: 4.9100},
		{Latitude: 52.3640, Longitude: 4.9030},
		{Latitude: 52.3680, Longitude: 4.8980},
		{Latitude: 52.3700, Longitude: 4.8955},
	}

	provider := geo.NewThrottled(geo.NewSimulated(path, simulateStepInterval))
	if err := provider.RequestPermission(ctx); err != nil {
		return fmt.Errorf("request location permission: %w", err)
	}

	done := make(chan struct{})
	var last models.Coordinate
	stop, err := provider.Watch(ctx, geo.WatchOptions{MinInterval: simulateStepInterval / 2, MinDistanceM: 25}, func(s geo.Sample) {
		last = s.Coordinate
		if err := manager.UpdateLocation(ctx, walker.ID, s.Coordinate); err != nil {
			logger.Warn("update location", "error", err)
			return
		}
		logger.Info("position fix", "lat", s.Coordinate.Latitude, "lon", s.Coordinate.Longitude)
	})
	if err != nil {
		return fmt.Errorf("start location watch: %w", err)
	}

	go func() {
		// Walk the whole path, then signal the main flow.
		time.Sleep(time.Duration(len(path)+1) * simulateStepInterval)
		stop()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	ranked, err := resolver.NearestPlaces(ctx, walker.ID, last, 3)
	if err != nil {
		return fmt.Errorf("rank nearby places: %w", err)
	}
	for _, rp := range ranked {
		logger.Info("nearby place", "name", rp.Name, "distance_m", int(rp.DistanceM))
	}
	if len(ranked) == 0 {
		return fmt.Errorf("no places ranked near %.4f,%.4f", last.Latitude, last.Longitude)
	}

	session, err := manager.StartSession(ctx, walker.ID, ranked[0].ID, 0.5, &last)
	if err != nil {
		return fmt.Errorf("check in: %w", err)
	}
	logger.Info("checked in", "place", session.PlaceID, "ready_until", session.Expires)

	visible, err := resolver.VisibleFriends(ctx, walker.ID, &last)
	if err != nil {
		return fmt.Errorf("resolve visible friends: %w", err)
	}
	for _, vf := range visible {
		logger.Info("visible friend", "name", vf.DisplayName, "place", vf.PlaceName, "minutes_remaining", vf.MinutesRemaining)
	}

	occupants, err := resolver.Occupants(ctx, walker.ID, session.PlaceID)
	if err != nil {
		return fmt.Errorf("list occupants: %w", err)
	}
	logger.Info("occupants at place", "count", len(occupants))

	if err := manager.ClearSession(ctx, walker.ID); err != nil {
		return fmt.Errorf("check out: %w", err)
	}
	logger.Info("checked out")

	return nil
}
