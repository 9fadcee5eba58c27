package geo

import (
	"math"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
)

const (
	// EarthRadiusKm is the mean Earth radius used by the haversine formula.
	EarthRadiusKm = 6371

	// AddressPinRadiusMeters bounds how far a new address pin may be placed
	// from the device's current location.
	AddressPinRadiusMeters = 200
)

// Distance returns the great-circle distance between a and b in kilometres.
// Inputs are not validated.
func Distance(a, b domain.Coordinate) float64 {
	lat1 := toRad(a.Latitude)
	lat2 := toRad(b.Latitude)
	deltaLat := toRad(b.Latitude - a.Latitude)
	deltaLon := toRad(b.Longitude - a.Longitude)

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// WithinRadius reports whether b lies within meters of a.
func WithinRadius(a, b domain.Coordinate, meters float64) bool {
	return Distance(a, b)*1000 <= meters
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
