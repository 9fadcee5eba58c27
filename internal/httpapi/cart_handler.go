package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/backend"
	"github.com/Ibrahimalmari/storefront-core/internal/cart"
	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/Ibrahimalmari/storefront-core/internal/logger"
	"github.com/Ibrahimalmari/storefront-core/internal/repository"
	"github.com/Ibrahimalmari/storefront-core/internal/service"
	"github.com/Ibrahimalmari/storefront-core/internal/session"
	"github.com/Ibrahimalmari/storefront-core/internal/tracking"
	"github.com/go-chi/chi/v5"
)

// CartRegistry hands out the cart service for a (customer, store) pair.
type CartRegistry interface {
	For(sess session.Session, storeID string) *service.CartService
	SavedCarts(ctx context.Context, sess session.Session) ([]domain.CartSnapshot, error)
}

// StoreEstimator prices delivery from the customer to a store.
type StoreEstimator interface {
	EstimateForStore(ctx context.Context, storeID string) domain.DeliveryEstimate
}

type CartHandler struct {
	carts     CartRegistry
	estimator StoreEstimator
	timeout   time.Duration
}

func NewCartHandler(carts CartRegistry, estimator StoreEstimator, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:     carts,
		estimator: estimator,
		timeout:   timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID int64  `json:"product_id"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes,omitempty"`
}

type ReorderRequestDTO struct {
	Items []domain.ReorderItem `json:"items"`
}

type DecrementResponseDTO struct {
	LineRemoved bool         `json:"line_removed"`
	Cart        service.View `json:"cart"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	// Notice is shown to the customer without blocking the screen.
	Notice string `json:"notice,omitempty"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	svc, ok := h.cartFor(w, r, false)
	if !ok {
		return
	}

	view, err := svc.Load(ctx)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	svc, ok := h.cartFor(w, r, true)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.UnitPrice < 0 {
		respondError(w, http.StatusBadRequest, "invalid_price", "unit_price must not be negative")
		return
	}

	if err := svc.Add(ctx, req.ProductID, req.UnitPrice, req.Quantity, req.Notes); err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, svc.View())
}

// POST /api/v1/cart/items/{line_id}/increment
func (h *CartHandler) Increment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	svc, ok := h.cartFor(w, r, true)
	if !ok {
		return
	}

	if err := svc.Increment(ctx, chi.URLParam(r, "line_id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, svc.View())
}

// POST /api/v1/cart/items/{line_id}/decrement
func (h *CartHandler) Decrement(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	svc, ok := h.cartFor(w, r, true)
	if !ok {
		return
	}

	ev, err := svc.Decrement(ctx, chi.URLParam(r, "line_id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, DecrementResponseDTO{
		LineRemoved: ev == cart.EventLineRemoved,
		Cart:        svc.View(),
	})
}

// DELETE /api/v1/cart/items/{line_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	svc, ok := h.cartFor(w, r, true)
	if !ok {
		return
	}

	if err := svc.Remove(ctx, chi.URLParam(r, "line_id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, svc.View())
}

// POST /api/v1/cart/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	svc, ok := h.cartFor(w, r, true)
	if !ok {
		return
	}

	est := h.estimator.EstimateForStore(ctx, svc.Key().StoreID)
	intent, err := svc.Checkout(ctx, est)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, intent)
}

// POST /api/v1/cart/save
func (h *CartHandler) SaveForLater(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	svc, ok := h.cartFor(w, r, false)
	if !ok {
		return
	}

	if err := svc.SaveForLater(ctx); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/cart
func (h *CartHandler) Discard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	svc, ok := h.cartFor(w, r, true)
	if !ok {
		return
	}

	if err := svc.Discard(ctx); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/cart/reorder
func (h *CartHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	svc, ok := h.cartFor(w, r, true)
	if !ok {
		return
	}

	var req ReorderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	view, err := svc.Reorder(ctx, req.Items)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// cartFor resolves the cart for the request's session and X-Store-ID.
// Mutating routes also require a token.
func (h *CartHandler) cartFor(w http.ResponseWriter, r *http.Request, mutating bool) (*service.CartService, bool) {
	sess := getSession(r.Context())
	if sess.CustomerID == "" || (mutating && !sess.Authorized()) {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing customer session")
		return nil, false
	}

	storeID := strings.TrimSpace(r.Header.Get("X-Store-ID"))
	if storeID == "" {
		respondError(w, http.StatusBadRequest, "missing_store_id", "X-Store-ID header is required")
		return nil, false
	}
	return h.carts.For(sess, storeID), true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L().WithError(err).Error("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

const unavailableNotice = "The store is not reachable right now. Your cart is unchanged; try again shortly."

// handleServiceError converts core errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		httpStatus int
		resp       = ErrorResponse{Error: err.Error()}
	)

	switch {
	case errors.Is(err, backend.ErrBackendUnavailable):
		httpStatus = http.StatusServiceUnavailable
		resp.Code = "backend_unavailable"
		resp.Notice = unavailableNotice
	case service.IsRetryable(err):
		httpStatus = http.StatusServiceUnavailable
		resp.Code = "retryable"
		resp.Details = "the change was rolled back and can be retried"
	case errors.Is(err, cart.ErrInvalidQuantity):
		httpStatus = http.StatusBadRequest
		resp.Code = "invalid_quantity"
	case errors.Is(err, session.ErrNoSession):
		httpStatus = http.StatusUnauthorized
		resp.Code = "unauthorized"
	case errors.Is(err, tracking.ErrNotOwner):
		httpStatus = http.StatusForbidden
		resp.Code = "forbidden"
	case errors.Is(err, service.ErrLineNotFound), errors.Is(err, backend.ErrNotFound),
		errors.Is(err, repository.ErrSavedCartNotFound):
		httpStatus = http.StatusNotFound
		resp.Code = "not_found"
	case errors.Is(err, service.ErrEmptyCart):
		httpStatus = http.StatusConflict
		resp.Code = "empty_cart"
	case errors.Is(err, tracking.ErrAlreadyStarted):
		httpStatus = http.StatusConflict
		resp.Code = "already_tracking"
	case errors.Is(err, backend.ErrNetworkFailure):
		httpStatus = http.StatusBadGateway
		resp.Code = "backend_error"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus = http.StatusGatewayTimeout
		resp.Code = "timeout"
	default:
		httpStatus = http.StatusInternalServerError
		resp.Code = "internal_error"
		resp.Error = "internal server error"
		resp.Details = "request " + getRequestID(r.Context())
	}

	logger.FromContext(r.Context()).WithError(err).
		WithField("status", httpStatus).Warn("request failed")
	respondJSON(w, httpStatus, resp)
}
