package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Ibrahimalmari/storefront-core/internal/domain"
	"github.com/Ibrahimalmari/storefront-core/internal/navigation"
	"github.com/Ibrahimalmari/storefront-core/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchResult struct {
	status domain.OrderStatus
	err    error
}

// scriptedFetcher returns results in order and then repeats the last one.
// When hold is set, call number holdAt waits for it after closing held.
type scriptedFetcher struct {
	m       sync.RWMutex
	results []fetchResult
	calls   int

	holdAt int
	hold   chan struct{}
	held   chan struct{}
}

func (f *scriptedFetcher) OrderStatus(ctx context.Context, _ session.Session, _ string) (domain.OrderStatus, error) {
	f.m.Lock()
	i := f.calls
	hold := f.hold != nil && i == f.holdAt
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	r := f.results[i]
	f.m.Unlock()

	if hold {
		close(f.held)
		select {
		case <-f.hold:
		case <-ctx.Done():
			return domain.OrderStatusUnknown, ctx.Err()
		}
	}
	return r.status, r.err
}

func (f *scriptedFetcher) Calls() int {
	f.m.RLock()
	defer f.m.RUnlock()
	return f.calls
}

type mockLedger struct {
	m        sync.RWMutex
	prompted map[string]bool
	err      error
}

func (l *mockLedger) MarkPrompted(_ context.Context, orderID string) (bool, error) {
	l.m.Lock()
	defer l.m.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.prompted[orderID] {
		return false, nil
	}
	l.prompted[orderID] = true
	return true, nil
}

func statuses(ss ...domain.OrderStatus) []fetchResult {
	out := make([]fetchResult, 0, len(ss))
	for _, s := range ss {
		out = append(out, fetchResult{status: s})
	}
	return out
}

func newTestPoller(fetcher StatusFetcher, opts ...func(*Config)) *Poller {
	cfg := Config{
		Fetcher:  fetcher,
		Session:  session.Session{Token: "tok", CustomerID: "42"},
		Interval: 10 * time.Millisecond,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return NewPoller(cfg)
}

func countPrompts(p *Poller) int {
	n := 0
	for {
		select {
		case <-p.Feedback():
			n++
		default:
			return n
		}
	}
}

func TestPoller_DeliveredPromptsOnce(t *testing.T) {
	fetcher := &scriptedFetcher{results: statuses(
		domain.OrderStatusPlaced,
		domain.OrderStatusPreparing,
		domain.OrderStatusDelivered,
	)}
	nav := &navigation.Recorder{}
	p := newTestPoller(fetcher, func(c *Config) { c.Navigator = nav })

	require.NoError(t, p.Start(context.Background(), "order-1"))

	select {
	case prompt := <-p.Feedback():
		assert.Equal(t, "order-1", prompt.OrderID)
	case <-time.After(2 * time.Second):
		t.Fatal("no feedback prompt")
	}

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after delivery")
	}
	assert.Equal(t, StateDelivered, p.State())
	assert.Equal(t, domain.OrderStatusDelivered, p.Status())
	assert.Equal(t, 3, fetcher.Calls())

	// A late push for the same delivery is ignored.
	p.Push(PushEvent{OrderID: "order-1", Status: domain.OrderStatusDelivered})
	assert.Zero(t, countPrompts(p))
	assert.Equal(t, []string{navigation.RouteFeedback}, nav.Routes())
}

func TestPoller_FetchErrorKeepsStatus(t *testing.T) {
	fetcher := &scriptedFetcher{
		results: []fetchResult{
			{status: domain.OrderStatusPlaced},
			{err: errors.New("backend request failed")},
			{err: errors.New("backend request failed")},
			{status: domain.OrderStatusPreparing},
		},
		holdAt: 3,
		hold:   make(chan struct{}),
		held:   make(chan struct{}),
	}
	p := newTestPoller(fetcher)
	defer p.Stop()

	require.NoError(t, p.Start(context.Background(), "order-1"))

	select {
	case <-fetcher.held:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not get past the failing fetches")
	}
	// Both failed ticks have been handled.
	assert.Equal(t, domain.OrderStatusPlaced, p.Status())
	assert.Equal(t, StatePolling, p.State())

	close(fetcher.hold)
	require.Eventually(t, func() bool {
		return p.Status() == domain.OrderStatusPreparing
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatePolling, p.State())
}

func TestPoller_StatusIsMonotonic(t *testing.T) {
	fetcher := &scriptedFetcher{results: statuses(
		domain.OrderStatusOutForDelivery,
		domain.OrderStatusPlaced,
		domain.OrderStatusUnknown,
	)}
	p := newTestPoller(fetcher)
	defer p.Stop()

	require.NoError(t, p.Start(context.Background(), "order-1"))
	require.Eventually(t, func() bool {
		return fetcher.Calls() >= 4
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, domain.OrderStatusOutForDelivery, p.Status())
}

func TestPoller_PushDelivered(t *testing.T) {
	fetcher := &scriptedFetcher{results: statuses(domain.OrderStatusPreparing)}
	p := newTestPoller(fetcher, func(c *Config) { c.Interval = time.Hour })

	require.NoError(t, p.Start(context.Background(), "order-1"))
	require.Eventually(t, func() bool {
		return p.Status() == domain.OrderStatusPreparing
	}, time.Second, 5*time.Millisecond)

	p.Push(PushEvent{OrderID: "other", Status: domain.OrderStatusDelivered})
	assert.Equal(t, StatePolling, p.State())

	p.Push(PushEvent{OrderID: "order-1", Status: domain.OrderStatusDelivered})
	p.Push(PushEvent{OrderID: "order-1", Status: domain.OrderStatusDelivered})

	<-p.Done()
	assert.Equal(t, StateDelivered, p.State())
	assert.Equal(t, 1, countPrompts(p))
}

func TestPoller_ConcurrentDeliveredSignalsOnce(t *testing.T) {
	fetcher := &scriptedFetcher{results: statuses(domain.OrderStatusOutForDelivery)}
	p := newTestPoller(fetcher, func(c *Config) { c.Interval = time.Hour })

	require.NoError(t, p.Start(context.Background(), "order-1"))
	require.Eventually(t, func() bool {
		return p.Status() == domain.OrderStatusOutForDelivery
	}, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Push(PushEvent{OrderID: "order-1", Status: domain.OrderStatusDelivered})
		}()
	}
	wg.Wait()
	<-p.Done()

	assert.Equal(t, 1, countPrompts(p))
}

func TestPoller_LedgerSuppressesRepeatPrompt(t *testing.T) {
	ledger := &mockLedger{prompted: map[string]bool{"order-1": true}}
	nav := &navigation.Recorder{}
	fetcher := &scriptedFetcher{results: statuses(domain.OrderStatusDelivered)}
	p := newTestPoller(fetcher, func(c *Config) {
		c.Ledger = ledger
		c.Navigator = nav
	})

	require.NoError(t, p.Start(context.Background(), "order-1"))
	<-p.Done()

	assert.Equal(t, StateDelivered, p.State())
	assert.Zero(t, countPrompts(p))
	assert.Empty(t, nav.Routes())
}

func TestPoller_LedgerErrorStillPrompts(t *testing.T) {
	ledger := &mockLedger{prompted: map[string]bool{}, err: errors.New("disk I/O error")}
	fetcher := &scriptedFetcher{results: statuses(domain.OrderStatusDelivered)}
	p := newTestPoller(fetcher, func(c *Config) { c.Ledger = ledger })

	require.NoError(t, p.Start(context.Background(), "order-1"))

	require.Eventually(t, func() bool {
		return len(p.Feedback()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPoller_StartTwice(t *testing.T) {
	fetcher := &scriptedFetcher{results: statuses(domain.OrderStatusPlaced)}
	p := newTestPoller(fetcher)
	defer p.Stop()

	require.NoError(t, p.Start(context.Background(), "order-1"))
	assert.ErrorIs(t, p.Start(context.Background(), "order-1"), ErrAlreadyStarted)
}

func TestPoller_StopIsIdempotent(t *testing.T) {
	fetcher := &scriptedFetcher{results: statuses(domain.OrderStatusPlaced)}
	p := newTestPoller(fetcher)

	require.NoError(t, p.Start(context.Background(), "order-1"))
	p.Stop()
	p.Stop()

	assert.Equal(t, StateStopped, p.State())
	calls := fetcher.Calls()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, fetcher.Calls(), "no polling after Stop")

	assert.ErrorIs(t, p.Start(context.Background(), "order-1"), ErrStopped)

	p.Push(PushEvent{OrderID: "order-1", Status: domain.OrderStatusDelivered})
	assert.Zero(t, countPrompts(p))
}

func TestPoller_StopBeforeStart(t *testing.T) {
	p := newTestPoller(&scriptedFetcher{results: statuses(domain.OrderStatusPlaced)})

	p.Stop()
	assert.Equal(t, StateStopped, p.State())
	select {
	case <-p.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "polling", StatePolling.String())
	assert.Equal(t, "delivered", StateDelivered.String())
	assert.Equal(t, "stopped", StateStopped.String())
}
