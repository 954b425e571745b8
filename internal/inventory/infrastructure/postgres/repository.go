package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/checkout-orchestrator/internal/inventory/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{
		log:  log,
		pool: pool,
	}
}

// Decrement is a single conditional update; the row lock taken by UPDATE makes
// concurrent decrements on the same product serialize in the database.
func (r *Repository) Decrement(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	ct, err := r.pool.Exec(ctx, `UPDATE stock_entries
		SET available_quantity = available_quantity - $2, updated_at = now()
		WHERE product_id = $1 AND available_quantity >= $2`, productID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrInsufficientStock
	}
	return nil
}

func (r *Repository) Increment(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	ct, err := r.pool.Exec(ctx, `UPDATE stock_entries
		SET available_quantity = available_quantity + $2, updated_at = now()
		WHERE product_id = $1`, productID, qty)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	if ct.RowsAffected() == 0 {
		r.log.Warn("increment on missing stock entry", "product_id", productID, "quantity", qty)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, productID int64) (domain.Entry, error) {
	e := domain.Entry{ProductID: productID}
	err := r.pool.QueryRow(ctx, `SELECT available_quantity FROM stock_entries WHERE product_id = $1`, productID).
		Scan(&e.AvailableQuantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Entry{}, fmt.Errorf("product %d: %w", productID, domain.ErrInsufficientStock)
	}
	if err != nil {
		return domain.Entry{}, fmt.Errorf("get stock: %w", err)
	}
	return e, nil
}

// SetStock upserts the available quantity of a product.
func (r *Repository) SetStock(ctx context.Context, productID int64, qty int) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stock_entries (product_id, available_quantity)
		VALUES ($1, $2)
		ON CONFLICT (product_id) DO UPDATE SET available_quantity = $2, updated_at = now()`, productID, qty)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	return nil
}
