package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/logger"
	"github.com/Ibrahimalmari/storefront-core/internal/session"
	"github.com/Ibrahimalmari/storefront-core/internal/tracking"
	"github.com/go-chi/chi/v5"
)

type OrderTracker interface {
	Track(sess session.Session, orderID string) (*tracking.Poller, error)
	Untrack(sess session.Session, orderID string) (bool, error)
	Get(orderID string) (*tracking.Poller, bool)
}

// FeedbackHistory reports when an order last asked for feedback.
type FeedbackHistory interface {
	PromptedAt(ctx context.Context, orderID string) (time.Time, bool, error)
}

type OrdersHandler struct {
	tracker  OrderTracker
	fetcher  tracking.StatusFetcher
	feedback FeedbackHistory // optional
	timeout  time.Duration
}

func NewOrdersHandler(tracker OrderTracker, fetcher tracking.StatusFetcher, feedback FeedbackHistory, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		tracker:  tracker,
		fetcher:  fetcher,
		feedback: feedback,
		timeout:  timeout,
	}
}

type OrderStatusDTO struct {
	OrderID             string     `json:"order_id"`
	Status              string     `json:"status"`
	State               string     `json:"state,omitempty"`
	Delivered           bool       `json:"delivered"`
	FeedbackRequestedAt *time.Time `json:"feedback_requested_at,omitempty"`
}

func pollerStatus(orderID string, p *tracking.Poller) OrderStatusDTO {
	status := p.Status()
	return OrderStatusDTO{
		OrderID:   orderID,
		Status:    status.String(),
		State:     p.State().String(),
		Delivered: status.IsTerminal(),
	}
}

// POST /api/v1/orders/{order_id}/track
func (h *OrdersHandler) Track(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r.Context())
	if !sess.Authorized() {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing customer session")
		return
	}

	orderID := chi.URLParam(r, "order_id")
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return
	}

	p, err := h.tracker.Track(sess, orderID)
	switch {
	case errors.Is(err, tracking.ErrAlreadyStarted):
		respondJSON(w, http.StatusOK, pollerStatus(orderID, p))
	case err != nil:
		handleServiceError(w, r, err)
	default:
		respondJSON(w, http.StatusAccepted, pollerStatus(orderID, p))
	}
}

// DELETE /api/v1/orders/{order_id}/track
func (h *OrdersHandler) Untrack(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r.Context())
	if sess.CustomerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing customer session")
		return
	}

	stopped, err := h.tracker.Untrack(sess, chi.URLParam(r, "order_id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if !stopped {
		respondError(w, http.StatusNotFound, "not_tracking", "order is not being tracked")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/orders/{order_id}/status
// Tracked orders answer from the caller's poller; others ask the backend once.
func (h *OrdersHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess := getSession(r.Context())
	if sess.CustomerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing customer session")
		return
	}

	orderID := chi.URLParam(r, "order_id")
	if p, ok := h.tracker.Get(orderID); ok {
		if p.CustomerID() != sess.CustomerID {
			handleServiceError(w, r, tracking.ErrNotOwner)
			return
		}
		dto := pollerStatus(orderID, p)
		h.withFeedback(ctx, &dto)
		respondJSON(w, http.StatusOK, dto)
		return
	}

	status, err := h.fetcher.OrderStatus(ctx, sess, orderID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	dto := OrderStatusDTO{
		OrderID:   orderID,
		Status:    status.String(),
		Delivered: status.IsTerminal(),
	}
	h.withFeedback(ctx, &dto)
	respondJSON(w, http.StatusOK, dto)
}

// withFeedback adds the feedback prompt time for delivered orders. A ledger
// error leaves the field empty.
func (h *OrdersHandler) withFeedback(ctx context.Context, dto *OrderStatusDTO) {
	if h.feedback == nil || !dto.Delivered {
		return
	}
	at, ok, err := h.feedback.PromptedAt(ctx, dto.OrderID)
	if err != nil {
		logger.FromContext(ctx).WithError(err).WithField("order_id", dto.OrderID).
			Warn("feedback ledger lookup failed")
		return
	}
	if ok {
		dto.FeedbackRequestedAt = &at
	}
}
