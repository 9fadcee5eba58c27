package repository

import (
	"context"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
)

// SavedCartRepository stores carts the customer left behind when leaving a
// store, one per (customer, store).
type SavedCartRepository interface {
	Save(ctx context.Context, snapshot *domain.CartSnapshot) error
	Get(ctx context.Context, key domain.CartKey) (*domain.CartSnapshot, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.CartSnapshot, error)
	Delete(ctx context.Context, key domain.CartKey) error
}
