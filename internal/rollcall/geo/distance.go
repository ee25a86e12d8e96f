// Package geo gates attendance by physical proximity to the classroom.
package geo

import (
	"math"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/types"
)

const (
	// EarthRadiusKm is the mean Earth radius used by the haversine formula.
	EarthRadiusKm = 6371.0

	// DefaultMaxDistanceKm is how far from the classroom a submission may be
	// made when no threshold is configured.
	DefaultMaxDistanceKm = 0.5
)

// DistanceKm returns the great-circle distance between a and b in
// kilometres. NaN inputs yield NaN.
func DistanceKm(a, b types.LatLng) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// WithinRadius reports whether student is at most maxKm from classroom.
// A NaN distance is never within range.
func WithinRadius(student, classroom types.LatLng, maxKm float64) bool {
	return DistanceKm(student, classroom) <= maxKm
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
