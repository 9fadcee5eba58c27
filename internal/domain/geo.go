package domain

// Coordinate is an immutable WGS 84 point.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate lies within latitude/longitude bounds.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// DeliveryEstimate is derived on demand and never persisted.
// Available is false for the fallback produced when coordinates are missing.
type DeliveryEstimate struct {
	DistanceKm     float64 `json:"distance_km"`
	CostMinorUnits int64   `json:"cost"`
	EtaMinutes     int     `json:"eta_minutes"`
	Available      bool    `json:"available"`
}

// Store is the subset of a backend store record the core consumes.
type Store struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Location *Coordinate `json:"location,omitempty"`
}
