// Package geo provides great-circle distance math shared by the dedup and
// ranking engines.
package geo

import (
	"math"

	"github.com/sells-group/pizza-search/internal/model"
)

const (
	// earthRadiusMeters is the mean Earth radius used for haversine.
	earthRadiusMeters = 6371000.0

	// MetersToMiles converts meters to statute miles.
	MetersToMiles = 0.000621371
)

// DistanceMeters returns the haversine great-circle distance between two
// coordinate pairs in meters.
func DistanceMeters(a, b model.Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng

	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// DistanceMiles returns the great-circle distance in statute miles.
func DistanceMiles(a, b model.Coordinates) float64 {
	return DistanceMeters(a, b) * MetersToMiles
}
