package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/checkout-orchestrator/internal/basket/domain"
	"github.com/dmehra2102/checkout-orchestrator/internal/platform/postgres"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) ReadUnconsumedLines(ctx context.Context, userID string) ([]domain.Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, product_id, quantity, unit_price_cents, product_name
		FROM basket_lines
		WHERE user_id = $1 AND consumed_at IS NULL
		ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query basket lines: %w", err)
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Line, error) {
		var l domain.Line
		err := row.Scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &l.UnitPriceCents, &l.ProductName)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan basket lines: %w", err)
	}
	return lines, nil
}

// MarkConsumed flags lines as ordered using q, which may be a transaction.
// It reports how many lines were still unconsumed.
func MarkConsumed(ctx context.Context, q postgres.Querier, lineIDs []int64) (int64, error) {
	if len(lineIDs) == 0 {
		return 0, nil
	}
	ct, err := q.Exec(ctx, `UPDATE basket_lines SET consumed_at = now()
		WHERE id = ANY($1) AND consumed_at IS NULL`, lineIDs)
	if err != nil {
		return 0, fmt.Errorf("mark basket consumed: %w", err)
	}
	return ct.RowsAffected(), nil
}
