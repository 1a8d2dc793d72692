package geo

import (
	"math"

	"github.com/tabletalk/backend/internal/models"
)

const earthRadiusM = 6371000.0

// DistanceM returns the great-circle distance between two coordinates in
// meters, using the haversine formula.
func DistanceM(a, b models.Coordinate) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	return 2 * earthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Valid reports whether the coordinate lies within WGS84 bounds.
func Valid(c models.Coordinate) bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}
