package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/cache"
	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/Ibrahimalmari/storefront-core/internal/estimate"
	"github.com/Ibrahimalmari/storefront-core/internal/navigation"
	"github.com/Ibrahimalmari/storefront-core/internal/service"
	"github.com/Ibrahimalmari/storefront-core/internal/tracking"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	registry := service.NewRegistry(service.Deps{
		Backend:   newFakeBackend(),
		Cache:     cache.NewRedisCache(client),
		Saved:     &fakeSaved{carts: make(map[domain.CartKey]*domain.CartSnapshot)},
		Navigator: &navigation.Recorder{},
	})
	fetcher := &fakeFetcher{status: domain.OrderStatusPlaced}
	tracker := tracking.NewTracker(context.Background(), tracking.Config{Fetcher: fetcher, Interval: time.Hour})
	t.Cleanup(tracker.StopAll)

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Carts:          registry,
		Estimator:      estimate.New(estimate.DefaultRates, estimate.StaticLocator{Coordinate: &deviceAt}, testStores, nil),
		Stores:         testStores,
		Tracker:        tracker,
		Fetcher:        fetcher,
		RequestTimeout: 5 * time.Second,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set("X-Customer-ID", "42")
	req.Header.Set("X-Store-ID", "7")
	req.Header.Set("X-Request-ID", "req-123")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRouter_Health(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func TestRouter_CartFlow(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(AddItemRequestDTO{ProductID: 1, UnitPrice: 1000, Quantity: 2})
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/cart/items", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status code %d, got %d", http.StatusCreated, resp.StatusCode)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "req-123" {
		t.Errorf("Expected request id to be echoed, got %q", got)
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/v1/cart/items/srv-1/increment", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/cart", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var view service.View
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if view.TotalQuantity != 3 {
		t.Errorf("Expected total quantity 3, got %d", view.TotalQuantity)
	}
}

func TestRouter_OrderTracking(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/orders/order-1/track", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected status code %d, got %d", http.StatusAccepted, resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/orders/order-1/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}

	resp = doRequest(t, http.MethodDelete, srv.URL+"/api/v1/orders/order-1/track", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status code %d, got %d", http.StatusNoContent, resp.StatusCode)
	}
}

func TestRouter_Estimate(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/estimate?store_id=7", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var response EstimateResponseDTO
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !response.Estimate.Available {
		t.Errorf("Expected an available estimate, got %+v", response.Estimate)
	}
}

func TestRouter_SavedCarts(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(AddItemRequestDTO{ProductID: 1, UnitPrice: 1000, Quantity: 1})
	doRequest(t, http.MethodPost, srv.URL+"/api/v1/cart/items", body)
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/cart/save", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected status code %d, got %d", http.StatusNoContent, resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/carts/saved", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var response SavedCartsResponseDTO
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(response.Carts) != 1 || response.Carts[0].StoreID != "7" {
		t.Errorf("Unexpected saved carts: %+v", response.Carts)
	}

	resp = doRequest(t, http.MethodDelete, srv.URL+"/api/v1/carts/saved/7", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected status code %d, got %d", http.StatusNoContent, resp.StatusCode)
	}
}
