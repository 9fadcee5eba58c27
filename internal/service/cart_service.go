package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/backend"
	"github.com/Ibrahimalmari/storefront-core/internal/cache"
	"github.com/Ibrahimalmari/storefront-core/internal/cart"
	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/Ibrahimalmari/storefront-core/internal/logger"
	"github.com/Ibrahimalmari/storefront-core/internal/navigation"
	"github.com/Ibrahimalmari/storefront-core/internal/pricing"
	"github.com/Ibrahimalmari/storefront-core/internal/repository"
	"github.com/Ibrahimalmari/storefront-core/internal/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	ErrLineNotFound = errors.New("cart line not found")
	ErrEmptyCart    = errors.New("cart is empty")
)

// CartBackend is the part of the store backend the cart needs.
type CartBackend interface {
	GetCart(ctx context.Context, sess session.Session, storeID string) (*domain.CartSnapshot, error)
	AddItem(ctx context.Context, sess session.Session, productID int64, quantity int, notes string) error
	UpdateQuantity(ctx context.Context, sess session.Session, lineID string, quantity int) error
	RemoveItem(ctx context.Context, sess session.Session, lineID string) error
	RemoveCart(ctx context.Context, sess session.Session, storeID string) error
	Reorder(ctx context.Context, sess session.Session, items []domain.ReorderItem) error
}

// Deps are shared by every cart of a running core.
type Deps struct {
	Backend   CartBackend
	Cache     cache.CartCache
	Saved     repository.SavedCartRepository
	Navigator navigation.Navigator
}

// View is a read-only copy of a cart with derived totals.
type View struct {
	CustomerID    string            `json:"customer_id"`
	StoreID       string            `json:"store_id"`
	StoreName     string            `json:"store_name,omitempty"`
	Lines         []domain.CartLine `json:"lines"`
	TotalQuantity int               `json:"total_quantity"`
	TotalPrice    int64             `json:"total_price"`
	ChargeTotal   int64             `json:"charge_total"`
}

// CheckoutIntent is the payload handed to the checkout screen.
type CheckoutIntent struct {
	StoreID      string            `json:"store_id"`
	Lines        []domain.CartLine `json:"cartItems"`
	TotalPrice   int64             `json:"totalPrice"`
	DeliveryCost int64             `json:"deliveryCost"`
	DeliveryTime int               `json:"deliveryTime"`
}

// CartService binds one (customer, store) cart to the backend. Local edits
// are applied first and rolled back if the backend rejects them.
type CartService struct {
	deps      Deps
	sess      atomic.Pointer[session.Session]
	storeID   string
	mu        sync.Mutex // serialises mutations
	cart      *cart.Cart
	storeName string
	sfg       singleflight.Group
	// gen counts confirmed writes. A snapshot fetched under an older gen
	// is neither reconciled nor cached.
	gen uint64
}

func NewCartService(deps Deps, sess session.Session, storeID string) *CartService {
	s := &CartService{
		deps:    deps,
		storeID: storeID,
		cart:    cart.New(domain.CartKey{CustomerID: sess.CustomerID, StoreID: storeID}),
	}
	s.sess.Store(&sess)
	return s
}

// Session is the session backend calls are made with.
func (s *CartService) Session() session.Session {
	return *s.sess.Load()
}

// SetSession swaps in a refreshed token for the same customer.
func (s *CartService) SetSession(sess session.Session) {
	s.sess.Store(&sess)
}

func (s *CartService) Key() domain.CartKey {
	return s.cart.Key()
}

type loaded struct {
	snapshot *domain.CartSnapshot
	gen      uint64
}

// Load refreshes the local cart from the cache or the backend. Concurrent
// calls share one fetch. A write confirmed while the fetch was in flight
// wins over the fetched snapshot.
func (s *CartService) Load(ctx context.Context) (View, error) {
	if s.Session().CustomerID == "" {
		return View{}, session.ErrNoSession
	}

	key := s.cart.Key()
	v, err, _ := s.sfg.Do(key.CustomerID+":"+key.StoreID, func() (interface{}, error) {
		gen := s.generation()

		snapshot, err := s.deps.Cache.Get(ctx, key)
		if err == nil {
			return loaded{snapshot: snapshot, gen: gen}, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log(ctx).WithError(err).Warn("cart cache get failed")
		}

		snapshot, err = s.fetch(ctx)
		if err != nil {
			return nil, err
		}

		go s.writeBack(snapshot, gen)
		return loaded{snapshot: snapshot, gen: gen}, nil
	})
	if err != nil {
		return View{}, err
	}

	res := v.(loaded)
	s.mu.Lock()
	defer s.mu.Unlock()
	if res.gen != s.gen {
		return s.viewLocked(), nil
	}
	s.cart.Reconcile(res.snapshot.Lines)
	if res.snapshot.StoreName != "" {
		s.storeName = res.snapshot.StoreName
	}
	return s.viewLocked(), nil
}

func (s *CartService) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// writeBack caches a snapshot Load fetched, unless a write was confirmed
// after the fetch started. Holding mu orders it against refreshLocked.
func (s *CartService) writeBack(snapshot *domain.CartSnapshot, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.deps.Cache.Set(ctx, snapshot); err != nil {
		logger.L().WithError(err).Warn("cart cache set failed")
	}
}

// View returns the local cart without contacting the backend.
func (s *CartService) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *CartService) Add(ctx context.Context, productID, unitPrice int64, quantity int, notes string) error {
	if quantity <= 0 {
		return cart.ErrInvalidQuantity
	}
	return s.mutate(ctx, "add item", func() (remoteCall, error) {
		if _, err := s.cart.AddOrIncrement(productID, unitPrice, quantity); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return s.deps.Backend.AddItem(ctx, s.Session(), productID, quantity, notes)
		}, nil
	})
}

func (s *CartService) Increment(ctx context.Context, lineID string) error {
	return s.mutate(ctx, "increment", func() (remoteCall, error) {
		line, ok := s.cart.Line(lineID)
		if !ok {
			return nil, ErrLineNotFound
		}
		quantity := line.Quantity + 1
		if _, err := s.cart.SetQuantity(lineID, quantity); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return s.deps.Backend.UpdateQuantity(ctx, s.Session(), lineID, quantity)
		}, nil
	})
}

// Decrement lowers a line by one. At quantity 1 the line is removed and
// cart.EventLineRemoved is returned. A missing line is a no-op.
func (s *CartService) Decrement(ctx context.Context, lineID string) (cart.Event, error) {
	event := cart.EventNone
	err := s.mutate(ctx, "decrement", func() (remoteCall, error) {
		line, ok := s.cart.Line(lineID)
		if !ok {
			return nil, nil
		}
		event = s.cart.Decrement(lineID)
		if event == cart.EventLineRemoved {
			return func(ctx context.Context) error {
				return s.deps.Backend.RemoveItem(ctx, s.Session(), lineID)
			}, nil
		}
		quantity := line.Quantity - 1
		return func(ctx context.Context) error {
			return s.deps.Backend.UpdateQuantity(ctx, s.Session(), lineID, quantity)
		}, nil
	})
	if err != nil {
		return cart.EventNone, err
	}
	return event, nil
}

func (s *CartService) Remove(ctx context.Context, lineID string) error {
	return s.mutate(ctx, "remove item", func() (remoteCall, error) {
		if !s.cart.Remove(lineID) {
			return nil, nil
		}
		return func(ctx context.Context) error {
			return s.deps.Backend.RemoveItem(ctx, s.Session(), lineID)
		}, nil
	})
}

// Clear empties the cart for this store on the backend.
func (s *CartService) Clear(ctx context.Context) error {
	return s.mutate(ctx, "clear cart", func() (remoteCall, error) {
		s.cart.Clear()
		return func(ctx context.Context) error {
			return s.deps.Backend.RemoveCart(ctx, s.Session(), s.storeID)
		}, nil
	})
}

// Checkout builds the checkout payload from the current cart and the given
// estimate and asks the UI to open the checkout screen.
func (s *CartService) Checkout(ctx context.Context, est domain.DeliveryEstimate) (CheckoutIntent, error) {
	s.mu.Lock()
	if s.cart.Len() == 0 {
		s.mu.Unlock()
		return CheckoutIntent{}, ErrEmptyCart
	}
	intent := CheckoutIntent{
		StoreID:      s.storeID,
		Lines:        s.cart.Lines(),
		TotalPrice:   pricing.ChargeTotal(s.cart.TotalPrice()),
		DeliveryCost: est.CostMinorUnits,
		DeliveryTime: est.EtaMinutes,
	}
	s.mu.Unlock()

	if err := s.deps.Navigator.Navigate(ctx, navigation.Intent{Route: navigation.RouteCheckout, Payload: intent}); err != nil {
		return CheckoutIntent{}, fmt.Errorf("navigate to checkout: %w", err)
	}
	return intent, nil
}

// SaveForLater keeps the cart in the saved-carts list when the customer
// leaves the store. An empty cart removes any saved entry.
func (s *CartService) SaveForLater(ctx context.Context) error {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if len(snapshot.Lines) == 0 {
		return s.deleteSaved(ctx)
	}
	if err := s.deps.Saved.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// SavedCart returns the snapshot kept for this store by SaveForLater.
func (s *CartService) SavedCart(ctx context.Context) (*domain.CartSnapshot, error) {
	snapshot, err := s.deps.Saved.Get(ctx, s.cart.Key())
	if err != nil {
		return nil, fmt.Errorf("get saved cart: %w", err)
	}
	return snapshot, nil
}

// ForgetSaved drops the saved entry and leaves the live cart alone.
func (s *CartService) ForgetSaved(ctx context.Context) error {
	return s.deleteSaved(ctx)
}

// Discard clears the cart on the backend and drops the saved entry.
func (s *CartService) Discard(ctx context.Context) error {
	if err := s.Clear(ctx); err != nil {
		return err
	}
	return s.deleteSaved(ctx)
}

// Reorder re-adds the items of a past order to this store's cart and reloads
// it from the backend.
func (s *CartService) Reorder(ctx context.Context, items []domain.ReorderItem) (View, error) {
	sess := s.Session()
	if !sess.Authorized() {
		return View{}, session.ErrNoSession
	}
	if len(items) == 0 {
		return s.View(), nil
	}

	payload := make([]domain.ReorderItem, 0, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			return View{}, cart.ErrInvalidQuantity
		}
		it.CustomerID = sess.CustomerID
		it.StoreID = s.storeID
		payload = append(payload, it)
	}

	if err := s.deps.Backend.Reorder(ctx, sess, payload); err != nil {
		return View{}, retryable("reorder", err)
	}
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	s.invalidate(ctx)

	view, err := s.Load(ctx)
	if err != nil {
		return View{}, err
	}
	if err := s.deps.Navigator.Navigate(ctx, navigation.Intent{
		Route:   navigation.RouteCart,
		Payload: map[string]string{"storeId": s.storeID},
	}); err != nil {
		s.log(ctx).WithError(err).Warn("navigate to cart failed")
	}
	return view, nil
}

// remoteCall performs the backend side of a local edit.
type remoteCall func(ctx context.Context) error

// mutate applies a local edit, then the matching backend call. A failed call
// restores the lines captured before the edit. A nil remoteCall means the
// edit was a no-op.
func (s *CartService) mutate(ctx context.Context, op string, apply func() (remoteCall, error)) error {
	if !s.Session().Authorized() {
		return session.ErrNoSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.cart.Snapshot()
	call, err := apply()
	if err != nil {
		s.cart.Restore(before)
		return err
	}
	if call == nil {
		return nil
	}

	if err := call(ctx); err != nil {
		s.cart.Restore(before)
		s.log(ctx).WithError(err).WithField("op", op).Warn("cart update rolled back")
		return retryable(op, err)
	}

	s.gen++
	s.refreshLocked(ctx)
	return nil
}

// refreshLocked replaces local lines with the server's view after a
// successful mutation. If the refetch fails the optimistic state is kept and
// the cache entry dropped.
func (s *CartService) refreshLocked(ctx context.Context) {
	snapshot, err := s.fetch(ctx)
	if err != nil {
		s.log(ctx).WithError(err).Warn("cart refetch failed, keeping local state")
		s.invalidate(ctx)
		return
	}

	s.cart.Reconcile(snapshot.Lines)
	if snapshot.StoreName != "" {
		s.storeName = snapshot.StoreName
	}
	if err := s.deps.Cache.Set(ctx, snapshot); err != nil {
		s.log(ctx).WithError(err).Warn("cart cache set failed")
		s.invalidate(ctx)
	}
}

// fetch reads the server cart. A missing cart is an empty one.
func (s *CartService) fetch(ctx context.Context) (*domain.CartSnapshot, error) {
	sess := s.Session()
	snapshot, err := s.deps.Backend.GetCart(ctx, sess, s.storeID)
	if errors.Is(err, backend.ErrNotFound) {
		return &domain.CartSnapshot{
			CustomerID: sess.CustomerID,
			StoreID:    s.storeID,
			UpdatedAt:  time.Now(),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *CartService) invalidate(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := s.deps.Cache.Delete(ctx, s.cart.Key()); err != nil {
		s.log(ctx).WithError(err).Warn("cart cache invalidate failed")
	}
}

func (s *CartService) deleteSaved(ctx context.Context) error {
	err := s.deps.Saved.Delete(ctx, s.cart.Key())
	if err != nil && !errors.Is(err, repository.ErrSavedCartNotFound) {
		return fmt.Errorf("delete saved cart: %w", err)
	}
	return nil
}

func (s *CartService) snapshotLocked() *domain.CartSnapshot {
	return &domain.CartSnapshot{
		CustomerID: s.Session().CustomerID,
		StoreID:    s.storeID,
		StoreName:  s.storeName,
		Lines:      s.cart.Lines(),
		UpdatedAt:  time.Now(),
	}
}

func (s *CartService) viewLocked() View {
	total := s.cart.TotalPrice()
	return View{
		CustomerID:    s.Session().CustomerID,
		StoreID:       s.storeID,
		StoreName:     s.storeName,
		Lines:         s.cart.Lines(),
		TotalQuantity: s.cart.TotalQuantity(),
		TotalPrice:    total,
		ChargeTotal:   pricing.ChargeTotal(total),
	}
}

func (s *CartService) log(ctx context.Context) *logrus.Entry {
	return logger.FromContext(ctx).WithFields(logrus.Fields{
		"customer_id": s.Session().CustomerID,
		"store_id":    s.storeID,
	})
}
