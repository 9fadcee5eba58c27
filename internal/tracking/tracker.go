package tracking

import (
	"context"
	"errors"
	"sync"

	"github.com/Ibrahimalmari/storefront-core/internal/session"
)

var ErrNotOwner = errors.New("order is tracked for another customer")

// Tracker owns one Poller per tracked order and routes push events to it.
// A poller belongs to the customer who started it.
type Tracker struct {
	ctx  context.Context
	base Config

	mu      sync.Mutex
	pollers map[string]*Poller
}

// NewTracker creates a tracker whose pollers live until ctx ends or they are
// untracked. base supplies everything but the session.
func NewTracker(ctx context.Context, base Config) *Tracker {
	return &Tracker{
		ctx:     ctx,
		base:    base,
		pollers: make(map[string]*Poller),
	}
}

// Track starts polling orderID with sess. Tracking an order the same
// customer already follows returns the existing poller and ErrAlreadyStarted.
// Finished pollers are forgotten, so a delivered order can be tracked again.
func (t *Tracker) Track(sess session.Session, orderID string) (*Poller, error) {
	if !sess.Authorized() {
		return nil, session.ErrNoSession
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.pollers[orderID]; ok && p.State() == StatePolling {
		if p.CustomerID() != sess.CustomerID {
			return nil, ErrNotOwner
		}
		return p, ErrAlreadyStarted
	}

	cfg := t.base
	cfg.Session = sess
	p := NewPoller(cfg)
	if err := p.Start(t.ctx, orderID); err != nil {
		return nil, err
	}
	t.pollers[orderID] = p
	go t.forgetWhenDone(orderID, p)
	return p, nil
}

func (t *Tracker) forgetWhenDone(orderID string, p *Poller) {
	<-p.Done()
	t.mu.Lock()
	if t.pollers[orderID] == p {
		delete(t.pollers, orderID)
	}
	t.mu.Unlock()
}

// Untrack stops and forgets orderID. It reports whether the order was
// tracked, and refuses to stop another customer's poller.
func (t *Tracker) Untrack(sess session.Session, orderID string) (bool, error) {
	t.mu.Lock()
	p, ok := t.pollers[orderID]
	if !ok {
		t.mu.Unlock()
		return false, nil
	}
	if p.CustomerID() != sess.CustomerID {
		t.mu.Unlock()
		return false, ErrNotOwner
	}
	delete(t.pollers, orderID)
	t.mu.Unlock()

	p.Stop()
	return true, nil
}

func (t *Tracker) Get(orderID string) (*Poller, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pollers[orderID]
	return p, ok
}

// Push forwards ev to the poller for its order, if any.
func (t *Tracker) Push(ev PushEvent) {
	if p, ok := t.Get(ev.OrderID); ok {
		p.Push(ev)
	}
}

// StopAll stops every poller.
func (t *Tracker) StopAll() {
	t.mu.Lock()
	pollers := make([]*Poller, 0, len(t.pollers))
	for id, p := range t.pollers {
		pollers = append(pollers, p)
		delete(t.pollers, id)
	}
	t.mu.Unlock()

	for _, p := range pollers {
		p.Stop()
	}
}
