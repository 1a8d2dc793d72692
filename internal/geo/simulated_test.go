package geo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tabletalk/backend/internal/models"
)

func TestSimulatedReplaysPath(t *testing.T) {
	path := []models.Coordinate{
		{Latitude: 1, Longitude: 1},
		{Latitude: 2, Longitude: 2},
		{Latitude: 3, Longitude: 3},
	}

	sim := NewSimulated(path, time.Millisecond)

	if err := sim.RequestPermission(context.Background()); err != nil {
		t.Fatalf("request permission: %v", err)
	}

	var mu sync.Mutex
	var got []models.Coordinate
	done := make(chan struct{})

	stop, err := sim.Watch(context.Background(), WatchOptions{}, func(s Sample) {
		mu.Lock()
		got = append(got, s.Coordinate)
		n := len(got)
		mu.Unlock()
		if n == len(path) {
			close(done)
		}
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for scripted samples")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, c := range path {
		if got[i] != c {
			t.Fatalf("sample %d: expected %+v got %+v", i, c, got[i])
		}
	}
}

func TestSimulatedStopHaltsDelivery(t *testing.T) {
	path := make([]models.Coordinate, 100)
	sim := NewSimulated(path, time.Millisecond)

	var mu sync.Mutex
	count := 0
	stop, err := sim.Watch(context.Background(), WatchOptions{}, func(Sample) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	stop()
	stop() // safe to call twice

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	frozen := count
	mu.Unlock()

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != frozen {
		t.Fatalf("expected delivery to stop, count moved from %d to %d", frozen, count)
	}
}

func TestSimulatedDeny(t *testing.T) {
	sim := NewSimulated(nil, time.Millisecond)
	sim.Deny()

	if err := sim.RequestPermission(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied got %v", err)
	}
	if _, err := sim.Watch(context.Background(), WatchOptions{}, func(Sample) {}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied got %v", err)
	}
}
