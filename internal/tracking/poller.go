// Package tracking follows an order until it is delivered and asks for
// feedback exactly once.
package tracking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/Ibrahimalmari/storefront-core/internal/logger"
	"github.com/Ibrahimalmari/storefront-core/internal/navigation"
	"github.com/Ibrahimalmari/storefront-core/internal/session"
	"github.com/sirupsen/logrus"
)

const DefaultInterval = 5 * time.Second

var (
	ErrAlreadyStarted = errors.New("poller already started")
	ErrStopped        = errors.New("poller stopped")
)

type State int32

const (
	StateIdle State = iota
	StatePolling
	StateDelivered
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateDelivered:
		return "delivered"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StatusFetcher reads the current status of an order from the backend.
type StatusFetcher interface {
	OrderStatus(ctx context.Context, sess session.Session, orderID string) (domain.OrderStatus, error)
}

// FeedbackLedger persists which orders already prompted for feedback.
type FeedbackLedger interface {
	MarkPrompted(ctx context.Context, orderID string) (first bool, err error)
}

// PushEvent is a status notification delivered outside of polling.
type PushEvent struct {
	OrderID string             `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
	Message string             `json:"message,omitempty"`
}

type FeedbackPrompt struct {
	OrderID     string    `json:"order_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

type Config struct {
	Fetcher  StatusFetcher
	Session  session.Session
	Interval time.Duration
	// Optional.
	Ledger    FeedbackLedger
	Navigator navigation.Navigator
}

// Poller tracks one order. It is single use: once stopped or delivered it
// cannot be restarted.
type Poller struct {
	cfg Config

	mu      sync.Mutex
	state   State
	orderID string
	status  domain.OrderStatus
	cancel  context.CancelFunc
	started bool

	delivered atomic.Bool
	feedback  chan FeedbackPrompt
	done      chan struct{}
	closeOnce sync.Once
}

func NewPoller(cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{
		cfg:      cfg,
		status:   domain.OrderStatusUnknown,
		feedback: make(chan FeedbackPrompt, 1),
		done:     make(chan struct{}),
	}
}

// Start fetches the status immediately and then every Interval until the
// order is delivered, Stop is called or ctx ends.
func (p *Poller) Start(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateIdle:
	case StateStopped:
		return ErrStopped
	default:
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.state = StatePolling
	p.orderID = orderID
	p.cancel = cancel
	p.started = true

	go p.run(runCtx)
	return nil
}

func (p *Poller) run(ctx context.Context) {
	defer p.closeDone()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ticker.C:
			p.poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	status, err := p.cfg.Fetcher.OrderStatus(ctx, p.cfg.Session, p.OrderID())
	if err != nil {
		if ctx.Err() == nil {
			p.log(ctx).WithError(err).Warn("order status fetch failed, retrying next tick")
		}
		return
	}
	p.apply(ctx, status, "poll")
}

// Push feeds a notification into the poller. Events for other orders, and
// events arriving while the poller is not polling, are ignored.
func (p *Poller) Push(ev PushEvent) {
	if ev.OrderID != p.OrderID() {
		return
	}
	p.apply(context.Background(), ev.Status, "push")
}

// apply records status if it moves the order forward.
func (p *Poller) apply(ctx context.Context, status domain.OrderStatus, source string) {
	p.mu.Lock()
	if p.state != StatePolling || status.Rank() <= p.status.Rank() {
		p.mu.Unlock()
		return
	}
	previous := p.status
	p.status = status
	p.mu.Unlock()

	p.log(ctx).WithFields(logrus.Fields{
		"from":   previous.String(),
		"to":     status.String(),
		"source": source,
	}).Info("order status changed")

	if status.IsTerminal() {
		p.deliver(ctx)
	}
}

// deliver runs once per poller, whichever source saw DELIVERED first.
func (p *Poller) deliver(ctx context.Context) {
	if !p.delivered.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()
	if p.state == StatePolling {
		p.state = StateDelivered
	}
	orderID := p.orderID
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer done()

	if p.cfg.Ledger != nil {
		first, err := p.cfg.Ledger.MarkPrompted(ctx, orderID)
		if err != nil {
			p.log(ctx).WithError(err).Warn("feedback ledger unavailable, prompting anyway")
		} else if !first {
			p.log(ctx).Info("feedback already requested for order")
			return
		}
	}

	select {
	case p.feedback <- FeedbackPrompt{OrderID: orderID, DeliveredAt: time.Now()}:
	default:
	}

	if p.cfg.Navigator != nil {
		intent := navigation.Intent{
			Route:   navigation.RouteFeedback,
			Payload: map[string]string{"orderId": orderID},
		}
		if err := p.cfg.Navigator.Navigate(ctx, intent); err != nil {
			p.log(ctx).WithError(err).Warn("navigate to feedback failed")
		}
	}
}

// Stop moves the poller to Stopped from any state and waits for the polling
// goroutine to exit. Calling it more than once is safe.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.state = StateStopped
	cancel := p.cancel
	started := p.started
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !started {
		p.closeDone()
	}
	<-p.done
}

func (p *Poller) Status() domain.OrderStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) OrderID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.orderID
}

// CustomerID is the customer whose session the poller fetches with.
func (p *Poller) CustomerID() string {
	return p.cfg.Session.CustomerID
}

// Feedback receives at most one prompt.
func (p *Poller) Feedback() <-chan FeedbackPrompt {
	return p.feedback
}

// Done is closed once the polling goroutine has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) closeDone() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *Poller) log(ctx context.Context) *logrus.Entry {
	return logger.FromContext(ctx).WithField("order_id", p.OrderID())
}
