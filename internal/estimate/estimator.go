// Package estimate derives delivery distance, cost and time between the
// customer's location and a store.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Ibrahimalmari/storefront-core/internal/cache"
	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/Ibrahimalmari/storefront-core/internal/geo"
	"github.com/Ibrahimalmari/storefront-core/internal/logger"
	"github.com/Ibrahimalmari/storefront-core/internal/pricing"
	"github.com/sirupsen/logrus"
)

// ErrGeoUnavailable means a coordinate could not be obtained. Estimates
// degrade to the fallback instead of returning it.
var ErrGeoUnavailable = errors.New("location unavailable")

type Rates struct {
	RatePerKm           int64
	AverageSpeedKmh     float64
	BaseHandlingMinutes int
}

// DefaultRates are the values the stores currently charge.
var DefaultRates = Rates{
	RatePerKm:           4000,
	AverageSpeedKmh:     40,
	BaseHandlingMinutes: 30,
}

// Locator reports the customer's current position.
type Locator interface {
	Locate(ctx context.Context) (domain.Coordinate, error)
}

// StoreLocator resolves a store id to its coordinates.
type StoreLocator interface {
	StoreLocation(ctx context.Context, storeID string) (domain.Coordinate, error)
}

type StoreEstimate struct {
	Store    domain.Store            `json:"store"`
	Estimate domain.DeliveryEstimate `json:"estimate"`
}

type Estimator struct {
	rates  Rates
	origin Locator
	stores StoreLocator
	coords cache.StoreCoordinates
}

// New builds an Estimator. stores and coords may be nil when only Estimate
// and ForFeed are used; coords nil disables caching.
func New(rates Rates, origin Locator, stores StoreLocator, coords cache.StoreCoordinates) *Estimator {
	return &Estimator{
		rates:  rates,
		origin: origin,
		stores: stores,
		coords: coords,
	}
}

// Estimate computes the delivery estimate between origin and destination.
// A nil coordinate yields the fallback estimate with Available false.
func (e *Estimator) Estimate(origin, destination *domain.Coordinate) domain.DeliveryEstimate {
	if origin == nil || destination == nil {
		return e.fallback()
	}

	distance := geo.Distance(*origin, *destination)

	travel := 0
	if e.rates.AverageSpeedKmh > 0 {
		travel = int(math.Floor(distance / e.rates.AverageSpeedKmh * 60))
	}

	return domain.DeliveryEstimate{
		DistanceKm:     distance,
		CostMinorUnits: pricing.RoundUp(distance*float64(e.rates.RatePerKm), pricing.Denomination),
		EtaMinutes:     travel + e.rates.BaseHandlingMinutes,
		Available:      true,
	}
}

// EstimateForStore resolves both ends itself. Lookup failures are logged and
// produce the fallback estimate.
func (e *Estimator) EstimateForStore(ctx context.Context, storeID string) domain.DeliveryEstimate {
	log := logger.FromContext(ctx).WithField("store_id", storeID)

	origin, err := e.locate(ctx)
	if err != nil {
		log.WithError(err).Warn("customer location unavailable, using fallback estimate")
		return e.fallback()
	}
	return e.EstimateFrom(ctx, origin, storeID)
}

// EstimateFrom is EstimateForStore with a caller-supplied origin.
func (e *Estimator) EstimateFrom(ctx context.Context, origin *domain.Coordinate, storeID string) domain.DeliveryEstimate {
	if origin == nil {
		return e.fallback()
	}
	destination, err := e.storeLocation(ctx, storeID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField("store_id", storeID).
			Warn("store location unavailable, using fallback estimate")
		return e.fallback()
	}
	return e.Estimate(origin, destination)
}

// ForFeed estimates every store in a listing with a single origin lookup.
// Stores without a location get the fallback.
func (e *Estimator) ForFeed(ctx context.Context, stores []domain.Store) []StoreEstimate {
	origin, err := e.locate(ctx)
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField("stores", len(stores)).
			Warn("customer location unavailable, feed estimates fall back")
	}

	out := make([]StoreEstimate, 0, len(stores))
	for _, s := range stores {
		out = append(out, StoreEstimate{Store: s, Estimate: e.Estimate(origin, s.Location)})
	}
	return out
}

// AcceptPin reports whether an address pin lies close enough to the device
// to be saved.
func (e *Estimator) AcceptPin(ctx context.Context, pin domain.Coordinate) (bool, error) {
	origin, err := e.locate(ctx)
	if err != nil {
		return false, err
	}
	return geo.WithinRadius(*origin, pin, geo.AddressPinRadiusMeters), nil
}

func (e *Estimator) fallback() domain.DeliveryEstimate {
	return domain.DeliveryEstimate{EtaMinutes: e.rates.BaseHandlingMinutes}
}

func (e *Estimator) locate(ctx context.Context) (*domain.Coordinate, error) {
	if e.origin == nil {
		return nil, ErrGeoUnavailable
	}
	c, err := e.origin.Locate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeoUnavailable, err)
	}
	return &c, nil
}

func (e *Estimator) storeLocation(ctx context.Context, storeID string) (*domain.Coordinate, error) {
	if e.coords != nil {
		c, err := e.coords.GetCoordinate(ctx, storeID)
		if err == nil {
			return &c, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.FromContext(ctx).WithError(err).Warn("coordinate cache read failed")
		}
	}

	if e.stores == nil {
		return nil, ErrGeoUnavailable
	}
	c, err := e.stores.StoreLocation(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeoUnavailable, err)
	}

	if e.coords != nil {
		if err := e.coords.SetCoordinate(ctx, storeID, c); err != nil {
			logger.FromContext(ctx).WithFields(logrus.Fields{
				"store_id": storeID,
				"error":    err,
			}).Warn("coordinate cache write failed")
		}
	}
	return &c, nil
}
