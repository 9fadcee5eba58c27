package httpapi

import (
	"context"
	"net/http"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/Ibrahimalmari/storefront-core/internal/service"
	"github.com/go-chi/chi/v5"
)

type SavedCartsResponseDTO struct {
	Carts []domain.CartSnapshot `json:"carts"`
}

// GET /api/v1/carts/saved
func (h *CartHandler) ListSaved(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess := getSession(r.Context())
	if sess.CustomerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing customer session")
		return
	}

	carts, err := h.carts.SavedCarts(ctx, sess)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if carts == nil {
		carts = []domain.CartSnapshot{}
	}
	respondJSON(w, http.StatusOK, SavedCartsResponseDTO{Carts: carts})
}

// GET /api/v1/carts/saved/{store_id}
func (h *CartHandler) GetSaved(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	svc, ok := h.savedCartFor(w, r)
	if !ok {
		return
	}

	snapshot, err := svc.SavedCart(ctx)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// DELETE /api/v1/carts/saved/{store_id}
func (h *CartHandler) ForgetSaved(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	svc, ok := h.savedCartFor(w, r)
	if !ok {
		return
	}

	if err := svc.ForgetSaved(ctx); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// savedCartFor is cartFor with the store taken from the path.
func (h *CartHandler) savedCartFor(w http.ResponseWriter, r *http.Request) (*service.CartService, bool) {
	sess := getSession(r.Context())
	if sess.CustomerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing customer session")
		return nil, false
	}

	storeID := chi.URLParam(r, "store_id")
	if storeID == "" {
		respondError(w, http.StatusBadRequest, "missing_store_id", "store_id is required")
		return nil, false
	}
	return h.carts.For(sess, storeID), true
}
