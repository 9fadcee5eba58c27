package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/Ibrahimalmari/storefront-core/internal/logger"
	"github.com/Ibrahimalmari/storefront-core/internal/session"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrNetworkFailure covers transport errors, timeouts, non-2xx replies and
	// undecodable bodies. Callers treat it as retryable.
	ErrNetworkFailure = errors.New("backend request failed")

	// ErrBackendUnavailable is returned while the circuit breaker is open.
	ErrBackendUnavailable = fmt.Errorf("%w: backend unavailable", ErrNetworkFailure)

	ErrNotFound           = errors.New("backend resource not found")
	ErrMissingCoordinates = errors.New("store has no usable coordinates")
)

type Options struct {
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	// Transport defaults to http.DefaultTransport; it is always wrapped by otelhttp.
	Transport http.RoundTripper
}

// HTTPClient talks to the store backend's REST API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewHTTPClient(opts Options) *HTTPClient {
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "backend",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.L().WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("backend circuit breaker state changed")
		},
	})

	return &HTTPClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		breaker: breaker,
	}
}

func (c *HTTPClient) GetCart(ctx context.Context, sess session.Session, storeID string) (*domain.CartSnapshot, error) {
	path := fmt.Sprintf("/api/customer/cart/%s/%s", url.PathEscape(sess.CustomerID), url.PathEscape(storeID))

	var resp cartResponse
	if err := c.do(ctx, http.MethodGet, path, sess.Token, nil, &resp); err != nil {
		return nil, err
	}

	snapshot := &domain.CartSnapshot{
		CustomerID: sess.CustomerID,
		StoreID:    storeID,
		StoreName:  resp.StoreName,
		Lines:      make([]domain.CartLine, 0, len(resp.Cart)),
		UpdatedAt:  time.Now(),
	}
	for _, item := range resp.Cart {
		line, err := item.toLine()
		if err != nil {
			return nil, fmt.Errorf("%w: decode cart line: %v", ErrNetworkFailure, err)
		}
		snapshot.Lines = append(snapshot.Lines, line)
	}
	return snapshot, nil
}

func (c *HTTPClient) AddItem(ctx context.Context, sess session.Session, productID int64, quantity int, notes string) error {
	body := addItemRequest{
		CustomerID: sess.CustomerID,
		ProductID:  productID,
		Quantity:   quantity,
		Notes:      notes,
	}
	return c.do(ctx, http.MethodPost, "/api/cart/add", sess.Token, body, nil)
}

func (c *HTTPClient) UpdateQuantity(ctx context.Context, sess session.Session, lineID string, quantity int) error {
	path := fmt.Sprintf("/api/cart/update-quantity/%s", url.PathEscape(lineID))
	return c.do(ctx, http.MethodPost, path, sess.Token, updateQuantityRequest{Quantity: quantity}, nil)
}

func (c *HTTPClient) RemoveItem(ctx context.Context, sess session.Session, lineID string) error {
	path := fmt.Sprintf("/api/cart/remove-item/%s", url.PathEscape(lineID))
	return c.do(ctx, http.MethodDelete, path, sess.Token, nil, nil)
}

func (c *HTTPClient) RemoveCart(ctx context.Context, sess session.Session, storeID string) error {
	path := fmt.Sprintf("/api/removeCart/%s/%s", url.PathEscape(sess.CustomerID), url.PathEscape(storeID))
	return c.do(ctx, http.MethodDelete, path, sess.Token, nil, nil)
}

func (c *HTTPClient) Reorder(ctx context.Context, sess session.Session, items []domain.ReorderItem) error {
	return c.do(ctx, http.MethodPost, "/api/CartAddDuringReOrder", sess.Token, reorderRequest{Items: items}, nil)
}

// StoreLocation returns ErrMissingCoordinates when the store record has no
// valid latitude/longitude.
func (c *HTTPClient) StoreLocation(ctx context.Context, storeID string) (domain.Coordinate, error) {
	path := fmt.Sprintf("/api/store/getStoreAddress/%s", url.PathEscape(storeID))

	var resp storeAddressResponse
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return domain.Coordinate{}, err
	}
	coord, ok := resp.Store.coordinate()
	if !ok {
		return domain.Coordinate{}, ErrMissingCoordinates
	}
	return *coord, nil
}

func (c *HTTPClient) Stores(ctx context.Context) ([]domain.Store, error) {
	var resp []storeDTO
	if err := c.do(ctx, http.MethodGet, "/api/allstore", "", nil, &resp); err != nil {
		return nil, err
	}

	stores := make([]domain.Store, 0, len(resp))
	for _, s := range resp {
		store := domain.Store{ID: string(s.ID), Name: s.Name}
		if coord, ok := s.coordinate(); ok {
			store.Location = coord
		}
		stores = append(stores, store)
	}
	return stores, nil
}

func (c *HTTPClient) OrderStatus(ctx context.Context, sess session.Session, orderID string) (domain.OrderStatus, error) {
	path := fmt.Sprintf("/api/OrderDetails/%s", url.PathEscape(orderID))

	var resp orderDetailsResponse
	if err := c.do(ctx, http.MethodGet, path, sess.Token, nil, &resp); err != nil {
		return domain.OrderStatusUnknown, err
	}
	return domain.ParseOrderStatus(resp.OrderStatus), nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, token string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, token, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrBackendUnavailable
	}
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrNetworkFailure, method, path, err)
	}
	return nil
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, path, token string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetworkFailure, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %v", ErrNetworkFailure, method, path, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrNetworkFailure, method, path, resp.StatusCode)
	}
	return data, nil
}
