package places

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tabletalk/backend/internal/geo"
	"github.com/tabletalk/backend/internal/models"
)

// ErrDirectoryUnavailable indicates the directory has no backing source.
var ErrDirectoryUnavailable = errors.New("place directory unavailable")

// Source lists candidate places for ranking.
type Source interface {
	ListPlaces(ctx context.Context) ([]models.Place, error)
}

// DefaultLimit bounds nearest-place results when the caller passes no limit.
const DefaultLimit = 10

type cacheEntry struct {
	ranked  []models.RankedPlace
	expires time.Time
}

// Directory ranks places by distance from a query coordinate. Results are
// cached per coordinate bucket with a TTL; the directory owns no mutable
// state beyond that read cache.
type Directory struct {
	source Source
	ttl    time.Duration

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewDirectory constructs a directory over the provided source, caching
// ranked results for the given TTL.
func NewDirectory(source Source, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Directory{
		source: source,
		ttl:    ttl,
		items:  make(map[string]cacheEntry),
	}
}

// Nearest returns up to limit places ordered by ascending distance from
// the coordinate, each annotated with its distance in meters.
func (d *Directory) Nearest(ctx context.Context, coord models.Coordinate, limit int) ([]models.RankedPlace, error) {
	if d == nil || d.source == nil {
		return nil, ErrDirectoryUnavailable
	}
	if !geo.Valid(coord) {
		return nil, geo.ErrInvalidCoordinate
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	key := bucketKey(coord)
	now := time.Now()

	d.mu.RLock()
	entry, ok := d.items[key]
	d.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return clip(entry.ranked, limit), nil
	}

	all, err := d.source.ListPlaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list places: %w", err)
	}

	ranked := make([]models.RankedPlace, 0, len(all))
	for _, p := range all {
		ranked = append(ranked, models.RankedPlace{
			Place:     p,
			DistanceM: geo.DistanceM(coord, p.Location),
		})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].DistanceM < ranked[j].DistanceM })

	d.mu.Lock()
	d.items[key] = cacheEntry{ranked: ranked, expires: now.Add(d.ttl)}
	d.mu.Unlock()

	return clip(ranked, limit), nil
}

func clip(ranked []models.RankedPlace, limit int) []models.RankedPlace {
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]models.RankedPlace, len(ranked))
	copy(out, ranked)
	return out
}

// Coordinates within the same ~110m grid cell share a cache entry.
func bucketKey(c models.Coordinate) string {
	return fmt.Sprintf("%.3f:%.3f", c.Latitude, c.Longitude)
}
