// Package navigation carries screen transitions requested by the core to the
// UI host.
package navigation

import (
	"context"
	"slices"
	"sync"
)

const (
	RouteCheckout     = "CheckoutScreen"
	RouteStoreDetails = "StoreDetailsScreen"
	RouteFeedback     = "FeedbackScreen"
	RouteCart         = "CartScreen"
)

type Intent struct {
	Route   string `json:"route"`
	Payload any    `json:"payload,omitempty"`
}

type Navigator interface {
	Navigate(ctx context.Context, intent Intent) error
}

// Recorder keeps intents in memory.
type Recorder struct {
	mu      sync.RWMutex
	intents []Intent
}

func (r *Recorder) Navigate(_ context.Context, intent Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, intent)
	return nil
}

func (r *Recorder) Intents() []Intent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.intents)
}

// Routes lists the recorded routes in order.
func (r *Recorder) Routes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	routes := make([]string, 0, len(r.intents))
	for _, i := range r.intents {
		routes = append(routes, i.Route)
	}
	return routes
}
