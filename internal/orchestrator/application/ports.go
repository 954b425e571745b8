package application

import (
	"context"
	"time"

	basket "github.com/dmehra2102/checkout-orchestrator/internal/basket/domain"
	inventoryapp "github.com/dmehra2102/checkout-orchestrator/internal/inventory/application"
	inventory "github.com/dmehra2102/checkout-orchestrator/internal/inventory/domain"
	"github.com/dmehra2102/checkout-orchestrator/internal/orchestrator/domain"
	order "github.com/dmehra2102/checkout-orchestrator/internal/order/domain"
	payment "github.com/dmehra2102/checkout-orchestrator/internal/payment/domain"
)

type BasketReader interface {
	ReadUnconsumedLines(ctx context.Context, userID string) ([]basket.Line, error)
}

type StockReserver interface {
	Reserve(ctx context.Context, items []inventory.Item) (*inventoryapp.Reservation, error)
	Release(ctx context.Context, res *inventoryapp.Reservation) error
}

type PaymentGateway interface {
	Charge(ctx context.Context, req payment.Request) payment.Result
	// Lookup finds the charge sent under reference; since is the earliest
	// time it could have been created.
	Lookup(ctx context.Context, reference string, since time.Time) payment.Result
}

// AttemptStore persists checkout attempts. Every status change is a
// compare-and-swap that returns domain.ErrAttemptNotActive when the attempt is
// no longer in the expected status.
type AttemptStore interface {
	// Find returns the user's live (not failed) attempt for key, or
	// domain.ErrAttemptNotFound. Keys are scoped per user.
	Find(ctx context.Context, userID, key string) (domain.Attempt, error)
	// Create returns domain.ErrAttemptExists if a live attempt of the same
	// user holds the key.
	Create(ctx context.Context, a domain.Attempt) error
	// MarkReserved records that the in-flight attempt holds its stock.
	MarkReserved(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, from domain.AttemptStatus, reason string) error
	MarkPendingReconciliation(ctx context.Context, id, transactionID, reason string) error
	// CommitOrder atomically inserts the order, consumes the basket lines
	// and moves the attempt from in_flight to success.
	CommitOrder(ctx context.Context, attemptID string, o order.Order, basketLineIDs []int64) error
	// AppendReconciledOrder is CommitOrder for an attempt found by
	// reconciliation, still in status from. It succeeds at most once per
	// attempt.
	AppendReconciledOrder(ctx context.Context, attemptID string, from domain.AttemptStatus, o order.Order, basketLineIDs []int64) error
	ListPendingReconciliation(ctx context.Context, olderThan time.Time, limit int) ([]domain.Attempt, error)
	// ListStaleInFlight returns in_flight attempts not updated since
	// olderThan: their process died or lost its storage mid-checkout.
	ListStaleInFlight(ctx context.Context, olderThan time.Time, limit int) ([]domain.Attempt, error)
}

// SideEffects runs best-effort work after an order is committed.
type SideEffects interface {
	OrderCommitted(ctx context.Context, o order.Order)
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev order.OrderCreated) error
}
