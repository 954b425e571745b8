package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	basket "github.com/dmehra2102/checkout-orchestrator/internal/basket/domain"
	"github.com/dmehra2102/checkout-orchestrator/internal/orchestrator/domain"
	order "github.com/dmehra2102/checkout-orchestrator/internal/order/domain"
	payment "github.com/dmehra2102/checkout-orchestrator/internal/payment/domain"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type mockBasket struct {
	mu       sync.Mutex
	lines    map[string][]basket.Line
	consumed map[int64]bool
	nextID   int64
	readErr  error
}

func newMockBasket() *mockBasket {
	return &mockBasket{lines: map[string][]basket.Line{}, consumed: map[int64]bool{}}
}

func (b *mockBasket) Add(userID string, productID int64, qty int, unitPrice int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.lines[userID] = append(b.lines[userID], basket.Line{
		ID:             b.nextID,
		UserID:         userID,
		ProductID:      productID,
		Quantity:       qty,
		UnitPriceCents: unitPrice,
		ProductName:    "product",
	})
}

func (b *mockBasket) ReadUnconsumedLines(_ context.Context, userID string) ([]basket.Line, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil {
		return nil, b.readErr
	}
	var out []basket.Line
	for _, l := range b.lines[userID] {
		if !b.consumed[l.ID] {
			out = append(out, l)
		}
	}
	return out, nil
}

func (b *mockBasket) markConsumed(ids []int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		b.consumed[id] = true
	}
}

// mockAttempts mirrors the Postgres store: at most one non-failed attempt
// per user and key, and compare-and-swap status changes.
type mockAttempts struct {
	mu        sync.Mutex
	clock     *testClock
	basket    *mockBasket
	attempts  map[string]domain.Attempt
	orders    map[string]order.Order
	commitErr error
	commits   int
}

func newMockAttempts(clock *testClock, b *mockBasket) *mockAttempts {
	return &mockAttempts{
		clock:    clock,
		basket:   b,
		attempts: map[string]domain.Attempt{},
		orders:   map[string]order.Order{},
	}
}

func (s *mockAttempts) liveLocked(userID, key string) (domain.Attempt, bool) {
	for _, a := range s.attempts {
		if a.UserID == userID && a.IdempotencyKey == key && a.Status != domain.AttemptFailed {
			return a, true
		}
	}
	return domain.Attempt{}, false
}

func (s *mockAttempts) Find(_ context.Context, userID, key string) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.liveLocked(userID, key); ok {
		return a, nil
	}
	return domain.Attempt{}, domain.ErrAttemptNotFound
}

func (s *mockAttempts) Create(_ context.Context, a domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveLocked(a.UserID, a.IdempotencyKey); ok {
		return domain.ErrAttemptExists
	}
	s.attempts[a.ID] = a
	return nil
}

func (s *mockAttempts) swapLocked(id string, from domain.AttemptStatus, fn func(*domain.Attempt)) error {
	a, ok := s.attempts[id]
	if !ok || a.Status != from {
		return domain.ErrAttemptNotActive
	}
	fn(&a)
	a.UpdatedAt = s.clock.Now()
	s.attempts[id] = a
	return nil
}

func (s *mockAttempts) MarkReserved(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swapLocked(id, domain.AttemptInFlight, func(a *domain.Attempt) {
		a.ReservedAt = s.clock.Now()
	})
}

func (s *mockAttempts) MarkFailed(_ context.Context, id string, from domain.AttemptStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swapLocked(id, from, func(a *domain.Attempt) {
		a.Status = domain.AttemptFailed
		a.FailureReason = reason
	})
}

func (s *mockAttempts) MarkPendingReconciliation(_ context.Context, id, txID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swapLocked(id, domain.AttemptInFlight, func(a *domain.Attempt) {
		a.Status = domain.AttemptPendingReconciliation
		a.ProviderTransactionID = txID
		a.FailureReason = reason
	})
}

func (s *mockAttempts) commit(id string, from domain.AttemptStatus, o order.Order, lineIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	if s.commitErr != nil {
		return s.commitErr
	}
	err := s.swapLocked(id, from, func(a *domain.Attempt) {
		a.Status = domain.AttemptSuccess
		a.OrderID = o.ID
		a.ProviderTransactionID = o.ProviderTransactionID
	})
	if err != nil {
		return err
	}
	s.orders[o.ID] = o
	s.basket.markConsumed(lineIDs)
	return nil
}

func (s *mockAttempts) CommitOrder(_ context.Context, id string, o order.Order, lineIDs []int64) error {
	return s.commit(id, domain.AttemptInFlight, o, lineIDs)
}

func (s *mockAttempts) AppendReconciledOrder(_ context.Context, id string, from domain.AttemptStatus, o order.Order, lineIDs []int64) error {
	if from != domain.AttemptPendingReconciliation && from != domain.AttemptInFlight {
		return domain.ErrAttemptNotActive
	}
	return s.commit(id, from, o, lineIDs)
}

func (s *mockAttempts) ListPendingReconciliation(_ context.Context, olderThan time.Time, limit int) ([]domain.Attempt, error) {
	return s.listByStatus(domain.AttemptPendingReconciliation, olderThan, limit), nil
}

func (s *mockAttempts) ListStaleInFlight(_ context.Context, olderThan time.Time, limit int) ([]domain.Attempt, error) {
	return s.listByStatus(domain.AttemptInFlight, olderThan, limit), nil
}

func (s *mockAttempts) listByStatus(status domain.AttemptStatus, olderThan time.Time, limit int) []domain.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Attempt
	for _, a := range s.attempts {
		if a.Status == status && !a.UpdatedAt.After(olderThan) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b domain.Attempt) int { return a.UpdatedAt.Compare(b.UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *mockAttempts) byKey(key string) []domain.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Attempt
	for _, a := range s.attempts {
		if a.IdempotencyKey == key {
			out = append(out, a)
		}
	}
	return out
}

func (s *mockAttempts) get(id string) domain.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[id]
}

func (s *mockAttempts) only() domain.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.attempts) != 1 {
		panic("expected exactly one attempt")
	}
	for _, a := range s.attempts {
		return a
	}
	return domain.Attempt{}
}

func (s *mockAttempts) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *mockAttempts) order(id string) order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

type mockGateway struct {
	mu       sync.Mutex
	charge   func(ctx context.Context, req payment.Request) payment.Result
	lookup   func(ctx context.Context, reference string, since time.Time) payment.Result
	requests []payment.Request
	lookups  atomic.Int64
}

func succeedingGateway() *mockGateway {
	var n atomic.Int64
	return &mockGateway{charge: func(context.Context, payment.Request) payment.Result {
		return payment.Success(fmt.Sprintf("tx_%d", n.Add(1)))
	}}
}

func resultGateway(res payment.Result) *mockGateway {
	return &mockGateway{charge: func(context.Context, payment.Request) payment.Result { return res }}
}

func (g *mockGateway) Charge(ctx context.Context, req payment.Request) payment.Result {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return g.charge(ctx, req)
}

func (g *mockGateway) Lookup(ctx context.Context, reference string, since time.Time) payment.Result {
	g.lookups.Add(1)
	if g.lookup == nil {
		return payment.Indeterminate("no lookup configured")
	}
	return g.lookup(ctx, reference, since)
}

func (g *mockGateway) charges() []payment.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.requests)
}

type recordingSideEffects struct {
	mu     sync.Mutex
	orders []order.Order
}

func (r *recordingSideEffects) OrderCommitted(_ context.Context, o order.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o)
}

func (r *recordingSideEffects) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type failingCache struct{ calls atomic.Int64 }

func (c *failingCache) Invalidate(context.Context, ...string) error {
	c.calls.Add(1)
	return errors.New("redis: connection refused")
}

type recordingCache struct {
	mu   sync.Mutex
	keys []string
}

func (c *recordingCache) Invalidate(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, keys...)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []order.OrderCreated
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev order.OrderCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}
