package httpapi

import (
	"net/http"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/tracking"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	Carts          CartRegistry
	Estimator      DeliveryEstimator
	Stores         StoreLister
	Tracker        OrderTracker
	Fetcher        tracking.StatusFetcher
	Feedback       FeedbackHistory
	RequestTimeout time.Duration
}

// NewRouter mounts the storefront API under /api/v1 and wraps it for tracing.
func NewRouter(cfg RouterConfig) http.Handler {
	cartHandler := NewCartHandler(cfg.Carts, cfg.Estimator, cfg.RequestTimeout)
	estimateHandler := NewEstimateHandler(cfg.Estimator, cfg.Stores, cfg.RequestTimeout)
	ordersHandler := NewOrdersHandler(cfg.Tracker, cfg.Fetcher, cfg.Feedback, cfg.RequestTimeout)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(SessionMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.Discard)
			r.Post("/items", cartHandler.AddItem)
			r.Post("/items/{line_id}/increment", cartHandler.Increment)
			r.Post("/items/{line_id}/decrement", cartHandler.Decrement)
			r.Delete("/items/{line_id}", cartHandler.RemoveItem)
			r.Post("/checkout", cartHandler.Checkout)
			r.Post("/save", cartHandler.SaveForLater)
			r.Post("/reorder", cartHandler.Reorder)
		})

		r.Route("/carts/saved", func(r chi.Router) {
			r.Get("/", cartHandler.ListSaved)
			r.Get("/{store_id}", cartHandler.GetSaved)
			r.Delete("/{store_id}", cartHandler.ForgetSaved)
		})

		r.Get("/estimate", estimateHandler.GetEstimate)
		r.Get("/stores", estimateHandler.ListStores)
		r.Post("/address/pin", estimateHandler.CheckPin)

		r.Route("/orders/{order_id}", func(r chi.Router) {
			r.Post("/track", ordersHandler.Track)
			r.Delete("/track", ordersHandler.Untrack)
			r.Get("/status", ordersHandler.GetStatus)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}
