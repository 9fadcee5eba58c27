package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/Ibrahimalmari/storefront-core/internal/session"
)

// Registry hands out one CartService per (customer, store) so that edits to
// the same cart from different requests share a lock.
type Registry struct {
	deps  Deps
	mu    sync.Mutex
	carts map[domain.CartKey]*CartService
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:  deps,
		carts: make(map[domain.CartKey]*CartService),
	}
}

// For returns the cart for sess and storeID. A changed token is swapped into
// the existing service.
func (r *Registry) For(sess session.Session, storeID string) *CartService {
	key := domain.CartKey{CustomerID: sess.CustomerID, StoreID: storeID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if svc, ok := r.carts[key]; ok {
		if svc.Session() != sess {
			svc.SetSession(sess)
		}
		return svc
	}

	svc := NewCartService(r.deps, sess, storeID)
	r.carts[key] = svc
	return svc
}

// SavedCarts lists the customer's saved carts across stores.
func (r *Registry) SavedCarts(ctx context.Context, sess session.Session) ([]domain.CartSnapshot, error) {
	if sess.CustomerID == "" {
		return nil, session.ErrNoSession
	}

	carts, err := r.deps.Saved.ListByCustomer(ctx, sess.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("list saved carts: %w", err)
	}
	return carts, nil
}
