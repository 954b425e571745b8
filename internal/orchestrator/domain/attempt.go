package domain

import (
	"errors"
	"time"

	basket "github.com/dmehra2102/checkout-orchestrator/internal/basket/domain"
	order "github.com/dmehra2102/checkout-orchestrator/internal/order/domain"
)

type AttemptStatus string

const (
	AttemptInFlight              AttemptStatus = "in_flight"
	AttemptSuccess               AttemptStatus = "success"
	AttemptFailed                AttemptStatus = "failed"
	AttemptPendingReconciliation AttemptStatus = "pending_reconciliation"
)

// IsTerminal reports whether the attempt can never change again.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptSuccess || s == AttemptFailed
}

var (
	// ErrAttemptExists means a live attempt already holds the idempotency key.
	ErrAttemptExists   = errors.New("checkout attempt already exists")
	ErrAttemptNotFound = errors.New("checkout attempt not found")
	// ErrAttemptNotActive means a compare-and-swap found the attempt in a
	// different status than expected.
	ErrAttemptNotActive = errors.New("checkout attempt not in expected status")
)

// Failure reasons recorded on failed attempts.
const (
	ReasonCancelled         = "cancelled"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonStockError        = "stock_error"
	ReasonAbandoned         = "abandoned"
)

// Attempt is the durable record of one checkout try. It keeps the basket
// snapshot and addresses so a later reconciliation can finish the order
// without the original request.
type Attempt struct {
	ID                    string
	IdempotencyKey        string
	UserID                string
	Status                AttemptStatus
	OrderID               string
	Lines                 []basket.Line
	TotalCents            int64
	Currency              string
	ShippingAddress       order.Address
	BillingAddress        order.Address
	ProviderTransactionID string
	FailureReason         string
	// ReservedAt is set once the stock reservation is complete, before the
	// charge is sent. Zero means no charge was ever attempted.
	ReservedAt            time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func NewAttempt(id, key, userID string, lines []basket.Line, currency string, shipping, billing order.Address, now time.Time) Attempt {
	now = now.UTC()
	return Attempt{
		ID:              id,
		IdempotencyKey:  key,
		UserID:          userID,
		Status:          AttemptInFlight,
		Lines:           lines,
		TotalCents:      basket.Total(lines),
		Currency:        currency,
		ShippingAddress: shipping,
		BillingAddress:  billing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// PaymentReference is sent to the processor as its idempotency reference and
// used by reconciliation to look the charge up. It is per attempt, not per
// key, so a retry after a decline is a new charge rather than a replay of the
// old decline.
func (a Attempt) PaymentReference() string {
	return a.ID
}

// Summary is what a replay of a successful attempt returns: the order as it
// was when checkout created it.
func (a Attempt) Summary() order.Summary {
	return order.Summary{
		OrderID:    a.OrderID,
		TotalCents: a.TotalCents,
		Currency:   a.Currency,
		Status:     order.StatusPending,
	}
}
