package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	basketpg "github.com/dmehra2102/checkout-orchestrator/internal/basket/infrastructure/postgres"
	"github.com/dmehra2102/checkout-orchestrator/internal/orchestrator/domain"
	order "github.com/dmehra2102/checkout-orchestrator/internal/order/domain"
	orderpg "github.com/dmehra2102/checkout-orchestrator/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/checkout-orchestrator/internal/platform/postgres"
)

const attemptColumns = `id, idempotency_key, user_id, status, order_id, lines, total_cents, currency,
	shipping_address, billing_address, provider_transaction_id, failure_reason, reserved_at, created_at, updated_at`

// Store keeps checkout attempts and commits orders together with the attempt
// status change. The partial unique index on (user_id, idempotency_key),
// excluding failed rows, is what makes Create safe under concurrent
// submissions.
type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{log: log, pool: pool}
}

func (s *Store) Find(ctx context.Context, userID, key string) (domain.Attempt, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+attemptColumns+`
		FROM checkout_attempts
		WHERE user_id = $1 AND idempotency_key = $2 AND status <> 'failed'`, userID, key)
	a, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("find attempt: %w", err)
	}
	return a, nil
}

func (s *Store) Create(ctx context.Context, a domain.Attempt) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO checkout_attempts
		(id, idempotency_key, user_id, status, lines, total_cents, currency, shipping_address, billing_address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.IdempotencyKey, a.UserID, a.Status, a.Lines, a.TotalCents, a.Currency,
		a.ShippingAddress, a.BillingAddress, a.CreatedAt, a.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return domain.ErrAttemptExists
	}
	if err != nil {
		return fmt.Errorf("create attempt: %w", err)
	}
	return nil
}

func (s *Store) MarkReserved(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx, `UPDATE checkout_attempts
		SET reserved_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'in_flight'`, id)
	if err != nil {
		return fmt.Errorf("mark attempt reserved: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrAttemptNotActive
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id string, from domain.AttemptStatus, reason string) error {
	ct, err := s.pool.Exec(ctx, `UPDATE checkout_attempts
		SET status = 'failed', failure_reason = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, id, from, reason)
	if err != nil {
		return fmt.Errorf("mark attempt failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrAttemptNotActive
	}
	return nil
}

func (s *Store) MarkPendingReconciliation(ctx context.Context, id, transactionID, reason string) error {
	ct, err := s.pool.Exec(ctx, `UPDATE checkout_attempts
		SET status = 'pending_reconciliation', provider_transaction_id = NULLIF($2, ''),
			failure_reason = $3, updated_at = now()
		WHERE id = $1 AND status = 'in_flight'`, id, transactionID, reason)
	if err != nil {
		return fmt.Errorf("mark attempt pending: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrAttemptNotActive
	}
	return nil
}

func (s *Store) CommitOrder(ctx context.Context, attemptID string, o order.Order, basketLineIDs []int64) error {
	return s.commit(ctx, attemptID, domain.AttemptInFlight, o, basketLineIDs)
}

func (s *Store) AppendReconciledOrder(ctx context.Context, attemptID string, from domain.AttemptStatus, o order.Order, basketLineIDs []int64) error {
	if from != domain.AttemptPendingReconciliation && from != domain.AttemptInFlight {
		return domain.ErrAttemptNotActive
	}
	return s.commit(ctx, attemptID, from, o, basketLineIDs)
}

// commit claims the attempt first so a lost race aborts before any order row
// is written.
func (s *Store) commit(ctx context.Context, attemptID string, from domain.AttemptStatus, o order.Order, basketLineIDs []int64) error {
	return postgres.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `UPDATE checkout_attempts
			SET status = 'success', order_id = $3, provider_transaction_id = NULLIF($4, ''), updated_at = now()
			WHERE id = $1 AND status = $2`, attemptID, from, o.ID, o.ProviderTransactionID)
		if err != nil {
			return fmt.Errorf("finalise attempt: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return domain.ErrAttemptNotActive
		}

		if err := orderpg.InsertOrder(ctx, tx, o); err != nil {
			return err
		}

		consumed, err := basketpg.MarkConsumed(ctx, tx, basketLineIDs)
		if err != nil {
			return err
		}
		if consumed != int64(len(basketLineIDs)) {
			// Another order already took some of these lines. The charge
			// for this one went through, so the order still stands.
			s.log.Warn("basket lines already consumed", "attempt_id", attemptID, "order_id", o.ID,
				"expected", len(basketLineIDs), "consumed", consumed)
		}
		return nil
	})
}

func (s *Store) ListPendingReconciliation(ctx context.Context, olderThan time.Time, limit int) ([]domain.Attempt, error) {
	return s.listByStatus(ctx, domain.AttemptPendingReconciliation, olderThan, limit)
}

func (s *Store) ListStaleInFlight(ctx context.Context, olderThan time.Time, limit int) ([]domain.Attempt, error) {
	return s.listByStatus(ctx, domain.AttemptInFlight, olderThan, limit)
}

func (s *Store) listByStatus(ctx context.Context, status domain.AttemptStatus, olderThan time.Time, limit int) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+attemptColumns+`
		FROM checkout_attempts
		WHERE status = $1 AND updated_at <= $2
		ORDER BY updated_at
		LIMIT $3`, status, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s attempts: %w", status, err)
	}
	attempts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Attempt, error) {
		return scanAttempt(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s attempts: %w", status, err)
	}
	return attempts, nil
}

func scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var a domain.Attempt
	var orderID, txID, reason *string
	var reservedAt *time.Time
	err := row.Scan(&a.ID, &a.IdempotencyKey, &a.UserID, &a.Status, &orderID, &a.Lines, &a.TotalCents, &a.Currency,
		&a.ShippingAddress, &a.BillingAddress, &txID, &reason, &reservedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Attempt{}, err
	}
	if orderID != nil {
		a.OrderID = *orderID
	}
	if txID != nil {
		a.ProviderTransactionID = *txID
	}
	if reason != nil {
		a.FailureReason = *reason
	}
	if reservedAt != nil {
		a.ReservedAt = *reservedAt
	}
	return a, nil
}
