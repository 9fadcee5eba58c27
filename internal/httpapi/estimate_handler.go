package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/Ibrahimalmari/storefront-core/internal/estimate"
	"github.com/Ibrahimalmari/storefront-core/internal/geo"
)

// DeliveryEstimator is the subset of estimate.Estimator the handlers use.
type DeliveryEstimator interface {
	StoreEstimator
	EstimateFrom(ctx context.Context, origin *domain.Coordinate, storeID string) domain.DeliveryEstimate
	ForFeed(ctx context.Context, stores []domain.Store) []estimate.StoreEstimate
	AcceptPin(ctx context.Context, pin domain.Coordinate) (bool, error)
}

type StoreLister interface {
	Stores(ctx context.Context) ([]domain.Store, error)
}

type EstimateHandler struct {
	estimator DeliveryEstimator
	stores    StoreLister
	timeout   time.Duration
}

func NewEstimateHandler(estimator DeliveryEstimator, stores StoreLister, timeout time.Duration) *EstimateHandler {
	return &EstimateHandler{
		estimator: estimator,
		stores:    stores,
		timeout:   timeout,
	}
}

type EstimateResponseDTO struct {
	StoreID  string                  `json:"store_id"`
	Estimate domain.DeliveryEstimate `json:"estimate"`
	Label    string                  `json:"label"`
}

type PinResponseDTO struct {
	Accepted     bool `json:"accepted"`
	RadiusMeters int  `json:"radius_meters"`
}

type StoreEstimateDTO struct {
	estimate.StoreEstimate
	Label string `json:"label"`
}

// GET /api/v1/estimate?store_id=&lat=&lon=
// Without lat/lon the device location is used.
func (h *EstimateHandler) GetEstimate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	storeID := q.Get("store_id")
	if storeID == "" {
		respondError(w, http.StatusBadRequest, "missing_store_id", "store_id is required")
		return
	}

	var est domain.DeliveryEstimate
	if q.Has("lat") || q.Has("lon") {
		origin := estimate.ParseCoordinate(q.Get("lat"), q.Get("lon"))
		if origin == nil {
			respondError(w, http.StatusBadRequest, "invalid_coordinates", "lat and lon must be valid decimal degrees")
			return
		}
		est = h.estimator.EstimateFrom(ctx, origin, storeID)
	} else {
		est = h.estimator.EstimateForStore(ctx, storeID)
	}

	respondJSON(w, http.StatusOK, EstimateResponseDTO{
		StoreID:  storeID,
		Estimate: est,
		Label:    estimate.Label(est),
	})
}

// GET /api/v1/stores
func (h *EstimateHandler) ListStores(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stores, err := h.stores.Stores(ctx)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	feed := h.estimator.ForFeed(ctx, stores)
	dtos := make([]StoreEstimateDTO, 0, len(feed))
	for _, s := range feed {
		dtos = append(dtos, StoreEstimateDTO{StoreEstimate: s, Label: estimate.Label(s.Estimate)})
	}
	respondJSON(w, http.StatusOK, dtos)
}

// POST /api/v1/address/pin
// A new delivery address must be pinned near the device's current location.
func (h *EstimateHandler) CheckPin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var pin domain.Coordinate
	if err := json.NewDecoder(r.Body).Decode(&pin); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if !pin.Valid() {
		respondError(w, http.StatusBadRequest, "invalid_coordinates", "latitude and longitude out of range")
		return
	}

	accepted, err := h.estimator.AcceptPin(ctx, pin)
	if errors.Is(err, estimate.ErrGeoUnavailable) {
		respondError(w, http.StatusUnprocessableEntity, "location_unavailable", "current location is unknown")
		return
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, PinResponseDTO{Accepted: accepted, RadiusMeters: geo.AddressPinRadiusMeters})
}
