package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	basket "github.com/dmehra2102/checkout-orchestrator/internal/basket/domain"
	inventoryapp "github.com/dmehra2102/checkout-orchestrator/internal/inventory/application"
	inventory "github.com/dmehra2102/checkout-orchestrator/internal/inventory/domain"
	"github.com/dmehra2102/checkout-orchestrator/internal/orchestrator/domain"
	order "github.com/dmehra2102/checkout-orchestrator/internal/order/domain"
	payment "github.com/dmehra2102/checkout-orchestrator/internal/payment/domain"
	"github.com/dmehra2102/checkout-orchestrator/pkg/idempotency"
	"github.com/dmehra2102/checkout-orchestrator/pkg/metrics"
)

var tracer = otel.Tracer("checkout-orchestrator/checkout")

type Request struct {
	UserID string
	Email  string
	// IdempotencyKey is optional; without it the key is derived from the
	// user and basket contents.
	IdempotencyKey  string
	CardReference   string
	ShippingAddress order.Address
	BillingAddress  order.Address
}

type Deps struct {
	Basket      BasketReader
	Stock       StockReserver
	Payments    PaymentGateway
	Attempts    AttemptStore
	SideEffects SideEffects
	Metrics     *metrics.CheckoutMetrics
	Currency    string
	Now         func() time.Time
	NewID       func() string
}

// Coordinator runs the checkout saga: reserve stock, charge, commit the
// order, then notify. It holds no locks; concurrent safety comes from the
// conditional stock decrement and the unique live attempt per key.
type Coordinator struct {
	log *slog.Logger
	d   Deps
}

func NewCoordinator(log *slog.Logger, d Deps) *Coordinator {
	return &Coordinator{log: log, d: withDefaults(d)}
}

func withDefaults(d Deps) Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

func (c *Coordinator) Checkout(ctx context.Context, req Request) (order.Summary, error) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "checkout")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.user_id", req.UserID))

	summary, outcome, err := c.checkout(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("checkout.outcome", outcome))
	if c.d.Metrics != nil {
		c.d.Metrics.ObserveOutcome(outcome, started)
	}
	return summary, err
}

func (c *Coordinator) checkout(ctx context.Context, req Request) (order.Summary, string, error) {
	log := c.log.With("user_id", req.UserID)
	key := req.IdempotencyKey

	// Without a client key the basket decides the key, so it is read first.
	var lines []basket.Line
	if key == "" {
		var err error
		if lines, err = c.readBasket(ctx, req.UserID); err != nil {
			return order.Summary{}, outcomeOf(err), err
		}
		key = idempotency.Fingerprint(req.UserID, fingerprintItems(lines))
	}
	log = log.With("idempotency_key", key)

	existing, err := c.d.Attempts.Find(ctx, req.UserID, key)
	switch {
	case err == nil:
		return c.replay(log, existing)
	case !errors.Is(err, domain.ErrAttemptNotFound):
		return order.Summary{}, string(domain.KindUnexpected), domain.Unexpected(fmt.Errorf("find attempt: %w", err))
	}

	if lines == nil {
		if lines, err = c.readBasket(ctx, req.UserID); err != nil {
			return order.Summary{}, outcomeOf(err), err
		}
	}

	attempt := domain.NewAttempt(c.d.NewID(), key, req.UserID, lines, c.d.Currency,
		req.ShippingAddress, req.BillingAddress, c.d.Now())
	if err := c.d.Attempts.Create(ctx, attempt); err != nil {
		if !errors.Is(err, domain.ErrAttemptExists) {
			return order.Summary{}, string(domain.KindUnexpected), domain.Unexpected(fmt.Errorf("create attempt: %w", err))
		}
		// Lost the race for this key; report whatever the winner has reached.
		if winner, findErr := c.d.Attempts.Find(ctx, req.UserID, key); findErr == nil {
			return c.replay(log, winner)
		}
		return order.Summary{}, string(domain.KindAlreadyInProgress), domain.ErrAlreadyInProgress
	}
	log = log.With("attempt_id", attempt.ID)
	log.Info("checkout attempt started", "total_cents", attempt.TotalCents, "lines", len(lines))

	return c.run(ctx, log, req, attempt)
}

func (c *Coordinator) run(ctx context.Context, log *slog.Logger, req Request, attempt domain.Attempt) (order.Summary, string, error) {
	if err := ctx.Err(); err != nil {
		return c.abandon(ctx, log, attempt, nil, err)
	}

	reservation, err := c.d.Stock.Reserve(ctx, reservationItems(attempt.Lines))
	if err != nil {
		var insufficient *inventory.InsufficientStockError
		if errors.As(err, &insufficient) {
			c.fail(ctx, log, attempt, domain.ReasonInsufficientStock)
			log.Info("checkout rejected", "reason", "insufficient_stock", "product_id", insufficient.ProductID)
			return order.Summary{}, string(domain.KindInsufficientStock), domain.InsufficientStock(insufficient.ProductID)
		}
		if ctx.Err() != nil {
			return c.abandon(ctx, log, attempt, nil, ctx.Err())
		}
		c.fail(ctx, log, attempt, domain.ReasonStockError)
		return order.Summary{}, string(domain.KindUnexpected), domain.Unexpected(fmt.Errorf("reserve stock: %w", err))
	}

	// Last point at which cancellation is honoured.
	if err := ctx.Err(); err != nil {
		return c.abandon(ctx, log, attempt, reservation, err)
	}
	ctx = context.WithoutCancel(ctx)

	// Reconciliation restocks a stale attempt only if this marker exists, so
	// it must be durable before any charge is sent.
	if err := c.d.Attempts.MarkReserved(ctx, attempt.ID); err != nil {
		c.release(ctx, log, reservation, domain.ReasonStockError)
		c.fail(ctx, log, attempt, domain.ReasonStockError)
		return order.Summary{}, string(domain.KindUnexpected), domain.Unexpected(fmt.Errorf("mark attempt reserved: %w", err))
	}

	result := c.d.Payments.Charge(ctx, paymentRequest(req, attempt))

	switch result.Outcome {
	case payment.OutcomeDeclined:
		c.release(ctx, log, reservation, "declined")
		if err := c.d.Attempts.MarkFailed(ctx, attempt.ID, domain.AttemptInFlight, "declined:"+result.ReasonCode); err != nil {
			log.Error("failed to record declined attempt", "err", err)
			return order.Summary{}, string(domain.KindUnexpected), domain.Unexpected(fmt.Errorf("mark attempt failed: %w", err))
		}
		log.Info("checkout rejected", "reason", "payment_declined", "reason_code", result.ReasonCode)
		return order.Summary{}, string(domain.KindPaymentDeclined), domain.PaymentDeclined(result.ReasonCode)

	case payment.OutcomeSuccess:
		return c.commit(ctx, log, attempt, result.TransactionID)

	default:
		// Reversing an unknown charge is unsafe: keep the stock reserved and
		// let reconciliation find out what happened.
		if err := c.d.Attempts.MarkPendingReconciliation(ctx, attempt.ID, "", result.Reason); err != nil {
			log.Error("failed to record indeterminate payment", "err", err, "reason", result.Reason)
			return order.Summary{}, string(domain.KindUnexpected), domain.Unexpected(fmt.Errorf("mark attempt pending: %w", err))
		}
		log.Warn("payment outcome unknown, attempt left for reconciliation", "reason", result.Reason)
		return order.Summary{}, string(domain.KindPaymentPending), domain.PaymentPending(errors.New(result.Reason))
	}
}

func (c *Coordinator) commit(ctx context.Context, log *slog.Logger, attempt domain.Attempt, transactionID string) (order.Summary, string, error) {
	o := order.NewOrder(c.d.NewID(), attempt.UserID, order.LinesFromBasket(attempt.Lines),
		attempt.ShippingAddress, attempt.BillingAddress, attempt.Currency, transactionID, c.d.Now())

	if err := c.d.Attempts.CommitOrder(ctx, attempt.ID, o, basket.IDs(attempt.Lines)); err != nil {
		// Money has moved. Never refund or re-charge here; reconciliation
		// replays the commit using the recorded transaction id.
		log.Error("order commit failed after payment", "transaction_id", transactionID, "err", err)
		if markErr := c.d.Attempts.MarkPendingReconciliation(ctx, attempt.ID, transactionID, "commit: "+err.Error()); markErr != nil {
			log.Error("failed to record pending reconciliation", "transaction_id", transactionID, "err", markErr)
		}
		return order.Summary{}, string(domain.KindOrderPersistenceFailed), domain.OrderPersistenceFailed(err)
	}

	log.Info("checkout succeeded", "order_id", o.ID, "total_cents", o.TotalCents, "transaction_id", transactionID)
	if c.d.SideEffects != nil {
		c.d.SideEffects.OrderCommitted(ctx, o)
	}
	return o.Summary(), "success", nil
}

func (c *Coordinator) replay(log *slog.Logger, a domain.Attempt) (order.Summary, string, error) {
	switch a.Status {
	case domain.AttemptSuccess:
		log.Info("checkout replayed", "order_id", a.OrderID)
		return a.Summary(), "replayed", nil
	case domain.AttemptPendingReconciliation:
		return order.Summary{}, string(domain.KindPaymentPending), domain.ErrPaymentPending
	default:
		return order.Summary{}, string(domain.KindAlreadyInProgress), domain.ErrAlreadyInProgress
	}
}

// abandon ends an attempt cancelled before the payment call.
func (c *Coordinator) abandon(ctx context.Context, log *slog.Logger, attempt domain.Attempt, res *inventoryapp.Reservation, cause error) (order.Summary, string, error) {
	ctx = context.WithoutCancel(ctx)
	c.release(ctx, log, res, domain.ReasonCancelled)
	c.fail(ctx, log, attempt, domain.ReasonCancelled)
	log.Info("checkout abandoned before payment", "err", cause)
	return order.Summary{}, string(domain.KindUnexpected), domain.Unexpected(cause)
}

func (c *Coordinator) fail(ctx context.Context, log *slog.Logger, attempt domain.Attempt, reason string) {
	if err := c.d.Attempts.MarkFailed(context.WithoutCancel(ctx), attempt.ID, domain.AttemptInFlight, reason); err != nil {
		log.Error("failed to record failed attempt", "reason", reason, "err", err)
	}
}

func (c *Coordinator) release(ctx context.Context, log *slog.Logger, res *inventoryapp.Reservation, reason string) {
	if res == nil {
		return
	}
	if c.d.Metrics != nil {
		c.d.Metrics.Compensations.WithLabelValues(reason).Inc()
	}
	if err := c.d.Stock.Release(ctx, res); err != nil {
		log.Error("stock compensation incomplete", "reason", reason, "err", err)
	}
}

func (c *Coordinator) readBasket(ctx context.Context, userID string) ([]basket.Line, error) {
	lines, err := c.d.Basket.ReadUnconsumedLines(ctx, userID)
	if err != nil {
		return nil, domain.Unexpected(fmt.Errorf("read basket: %w", err))
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyBasket
	}
	return lines, nil
}

func outcomeOf(err error) string {
	return string(domain.KindOf(err))
}

func reservationItems(lines []basket.Line) []inventory.Item {
	items := make([]inventory.Item, 0, len(lines))
	for _, l := range lines {
		items = append(items, inventory.Item{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return items
}

func fingerprintItems(lines []basket.Line) []idempotency.Item {
	items := make([]idempotency.Item, 0, len(lines))
	for _, l := range lines {
		items = append(items, idempotency.Item{ProductID: l.ProductID, Quantity: l.Quantity, UnitPriceCents: l.UnitPriceCents})
	}
	return items
}

func paymentRequest(req Request, a domain.Attempt) payment.Request {
	lines := make([]payment.LineItem, 0, len(a.Lines))
	for _, l := range a.Lines {
		lines = append(lines, payment.LineItem{
			ProductID:      l.ProductID,
			Description:    l.ProductName,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
		})
	}
	return payment.Request{
		Reference:     a.PaymentReference(),
		AmountCents:   a.TotalCents,
		Currency:      a.Currency,
		CardReference: req.CardReference,
		Buyer:         payment.Buyer{UserID: req.UserID, Email: req.Email},
		Lines:         lines,
	}
}
