package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/checkout-orchestrator/internal/order/domain"
	"github.com/dmehra2102/checkout-orchestrator/internal/platform/postgres"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// InsertOrder writes the order and its lines through q, normally the
// transaction that also finalises the checkout attempt.
func InsertOrder(ctx context.Context, q postgres.Querier, o domain.Order) error {
	_, err := q.Exec(ctx, `INSERT INTO orders
		(id, user_id, status, total_cents, currency, shipping_address, billing_address, provider_transaction_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,$10)`,
		o.ID, o.UserID, o.Status, o.TotalCents, o.Currency, o.ShippingAddress, o.BillingAddress,
		o.ProviderTransactionID, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if len(o.Lines) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, l := range o.Lines {
		batch.Queue(`INSERT INTO order_lines (order_id, line_no, product_id, product_name, quantity, unit_price_cents)
			VALUES ($1,$2,$3,$4,$5,$6)`, o.ID, i+1, l.ProductID, l.ProductName, l.Quantity, l.UnitPriceCents)
	}
	if err := q.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order lines: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	var txID *string
	err := r.pool.QueryRow(ctx, `SELECT id, user_id, status, total_cents, currency, shipping_address, billing_address,
			provider_transaction_id, created_at, updated_at
		FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.UserID, &o.Status, &o.TotalCents, &o.Currency, &o.ShippingAddress, &o.BillingAddress,
			&txID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	if txID != nil {
		o.ProviderTransactionID = *txID
	}

	rows, err := r.pool.Query(ctx, `SELECT product_id, product_name, quantity, unit_price_cents
		FROM order_lines WHERE order_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order lines: %w", err)
	}
	o.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderLine, error) {
		var l domain.OrderLine
		err := row.Scan(&l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPriceCents)
		return l, err
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order lines: %w", err)
	}
	return o, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	ct, err := r.pool.Exec(ctx, `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrStatusChanged
	}
	return nil
}
