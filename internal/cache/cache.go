package cache

import (
	"context"
	"errors"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
)

// CartCache holds the last server-confirmed cart per (customer, store).
type CartCache interface {
	Get(ctx context.Context, key domain.CartKey) (*domain.CartSnapshot, error)
	Set(ctx context.Context, snapshot *domain.CartSnapshot) error
	Delete(ctx context.Context, key domain.CartKey) error
}

// StoreCoordinates caches store locations fetched from the backend.
type StoreCoordinates interface {
	GetCoordinate(ctx context.Context, storeID string) (domain.Coordinate, error)
	SetCoordinate(ctx context.Context, storeID string, c domain.Coordinate) error
}

var ErrCacheMiss = errors.New("cache miss")
