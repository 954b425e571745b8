package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	basket "github.com/dmehra2102/checkout-orchestrator/internal/basket/domain"
	inventoryapp "github.com/dmehra2102/checkout-orchestrator/internal/inventory/application"
	"github.com/dmehra2102/checkout-orchestrator/internal/orchestrator/domain"
	order "github.com/dmehra2102/checkout-orchestrator/internal/order/domain"
	payment "github.com/dmehra2102/checkout-orchestrator/internal/payment/domain"
	"github.com/dmehra2102/checkout-orchestrator/pkg/metrics"
)

const (
	ResolutionCompleted  = "completed"
	ResolutionRestocked  = "restocked"
	ResolutionUnresolved = "unresolved"
	ResolutionSkipped    = "skipped"
	ResolutionAbandoned  = "abandoned"
)

type ReconcilerConfig struct {
	Interval   time.Duration
	MinAge     time.Duration
	// StaleAfter is how long an attempt may stay in_flight before it is
	// treated as orphaned. It must exceed the payment timeout.
	StaleAfter time.Duration
	BatchSize  int
}

// Reconciler resolves attempts left in pending_reconciliation, and in_flight
// attempts orphaned by a crash: it finishes the order when the charge went
// through and restocks when it did not.
type Reconciler struct {
	log         *slog.Logger
	attempts    AttemptStore
	payments    PaymentGateway
	stock       StockReserver
	sideEffects SideEffects
	metrics     *metrics.CheckoutMetrics
	cfg         ReconcilerConfig
	now         func() time.Time
	newID       func() string
}

func NewReconciler(log *slog.Logger, d Deps, cfg ReconcilerConfig) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	d = withDefaults(d)
	return &Reconciler{
		log:         log,
		attempts:    d.Attempts,
		payments:    d.Payments,
		stock:       d.Stock,
		sideEffects: d.SideEffects,
		metrics:     d.Metrics,
		cfg:         cfg,
		now:         d.Now,
		newID:       d.NewID,
	}
}

func (r *Reconciler) Run(ctx context.Context) error {
	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopping")
			return nil
		case <-t.C:
			if _, err := r.Tick(ctx); err != nil {
				r.log.Error("reconcile tick failed", "err", err)
			}
		}
	}
}

// Tick resolves one batch and reports how many attempts reached a terminal
// status.
func (r *Reconciler) Tick(ctx context.Context) (int, error) {
	now := r.now()
	pending, err := r.attempts.ListPendingReconciliation(ctx, now.Add(-r.cfg.MinAge), r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending attempts: %w", err)
	}
	stale, err := r.attempts.ListStaleInFlight(ctx, now.Add(-r.cfg.StaleAfter), r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale attempts: %w", err)
	}
	pending = append(pending, stale...)

	resolved := 0
	for _, a := range pending {
		if ctx.Err() != nil {
			break
		}
		resolution, err := r.Resolve(ctx, a)
		if err != nil {
			r.log.Error("reconcile attempt failed", "attempt_id", a.ID, "err", err)
			continue
		}
		if r.metrics != nil {
			r.metrics.Reconciled.WithLabelValues(resolution).Inc()
		}
		switch resolution {
		case ResolutionCompleted, ResolutionRestocked, ResolutionAbandoned:
			resolved++
		}
	}
	return resolved, nil
}

func (r *Reconciler) Resolve(ctx context.Context, a domain.Attempt) (string, error) {
	log := r.log.With("attempt_id", a.ID, "idempotency_key", a.IdempotencyKey, "status", a.Status)

	// The charge is only sent after the reservation marker is written, so
	// without it there is nothing to look up and nothing to restock.
	if a.Status == domain.AttemptInFlight && a.ReservedAt.IsZero() {
		return r.abandon(ctx, log, a)
	}

	// A recorded transaction id means the charge succeeded and only the order
	// write failed. Never ask the processor again, never re-charge.
	if a.ProviderTransactionID != "" {
		return r.complete(ctx, log, a, a.ProviderTransactionID)
	}

	result := r.payments.Lookup(ctx, a.PaymentReference(), a.CreatedAt)
	switch result.Outcome {
	case payment.OutcomeSuccess:
		return r.complete(ctx, log, a, result.TransactionID)
	case payment.OutcomeDeclined:
		return r.restock(ctx, log, a, result.ReasonCode)
	}

	log.Info("payment still unknown", "reason", result.Reason)
	if a.Status == domain.AttemptInFlight {
		// Hand it to the regular pending path so retries see PaymentPending
		// instead of AlreadyInProgress.
		err := r.attempts.MarkPendingReconciliation(ctx, a.ID, "", "stale in_flight: "+result.Reason)
		if errors.Is(err, domain.ErrAttemptNotActive) {
			return ResolutionSkipped, nil
		}
		if err != nil {
			return "", fmt.Errorf("mark attempt pending: %w", err)
		}
	}
	return ResolutionUnresolved, nil
}

// abandon fails an orphaned attempt that never reached the charge.
func (r *Reconciler) abandon(ctx context.Context, log *slog.Logger, a domain.Attempt) (string, error) {
	err := r.attempts.MarkFailed(ctx, a.ID, domain.AttemptInFlight, domain.ReasonAbandoned)
	if errors.Is(err, domain.ErrAttemptNotActive) {
		return ResolutionSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("mark attempt abandoned: %w", err)
	}
	log.Warn("abandoned orphaned attempt that never reached payment")
	return ResolutionAbandoned, nil
}

func (r *Reconciler) complete(ctx context.Context, log *slog.Logger, a domain.Attempt, transactionID string) (string, error) {
	o := order.NewOrder(r.newID(), a.UserID, order.LinesFromBasket(a.Lines),
		a.ShippingAddress, a.BillingAddress, a.Currency, transactionID, r.now())

	err := r.attempts.AppendReconciledOrder(ctx, a.ID, a.Status, o, basket.IDs(a.Lines))
	if errors.Is(err, domain.ErrAttemptNotActive) {
		log.Info("attempt already resolved elsewhere")
		return ResolutionSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("append reconciled order: %w", err)
	}

	log.Info("reconciled attempt into order", "order_id", o.ID, "transaction_id", transactionID)
	if r.sideEffects != nil {
		r.sideEffects.OrderCommitted(ctx, o)
	}
	return ResolutionCompleted, nil
}

// restock claims the attempt as failed before returning stock, so two
// reconcilers can never restock the same attempt twice.
func (r *Reconciler) restock(ctx context.Context, log *slog.Logger, a domain.Attempt, reasonCode string) (string, error) {
	err := r.attempts.MarkFailed(ctx, a.ID, a.Status, "reconciled_declined:"+reasonCode)
	if errors.Is(err, domain.ErrAttemptNotActive) {
		return ResolutionSkipped, nil
	}
	if err != nil {
		return "", fmt.Errorf("mark attempt failed: %w", err)
	}

	if r.metrics != nil {
		r.metrics.Compensations.WithLabelValues("reconciled_declined").Inc()
	}
	if err := r.stock.Release(ctx, inventoryapp.Restore(reservationItems(a.Lines))); err != nil {
		// The attempt is already final; this stock needs a manual fix.
		log.Error("restock after reconciliation incomplete", "err", err)
	}
	log.Info("reconciled attempt as declined, stock returned", "reason_code", reasonCode)
	return ResolutionRestocked, nil
}
