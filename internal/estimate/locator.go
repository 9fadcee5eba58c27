package estimate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
)

// StaticLocator returns a fixed position, or ErrGeoUnavailable when unset.
type StaticLocator struct {
	Coordinate *domain.Coordinate
}

func (s StaticLocator) Locate(context.Context) (domain.Coordinate, error) {
	if s.Coordinate == nil {
		return domain.Coordinate{}, ErrGeoUnavailable
	}
	return *s.Coordinate, nil
}

// ParseCoordinate builds a coordinate from textual latitude and longitude.
// Blank, malformed or out-of-range input returns nil.
func ParseCoordinate(lat, lon string) *domain.Coordinate {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" || lon == "" {
		return nil
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil
	}
	c := domain.Coordinate{Latitude: la, Longitude: lo}
	if !c.Valid() {
		return nil
	}
	return &c
}

// Label renders an estimate for a store card.
func Label(e domain.DeliveryEstimate) string {
	if !e.Available {
		return "estimate unavailable"
	}
	return fmt.Sprintf("%d SYP · %d min", e.CostMinorUnits, e.EtaMinutes)
}
