package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/checkout-orchestrator/internal/inventory/domain"
)

// Reservation records the decrements applied for one checkout attempt so they
// can be undone exactly once.
type Reservation struct {
	items    []domain.Item
	released bool
}

// Restore rebuilds a reservation whose decrements were applied by an earlier
// process, so the reconciler can compensate it.
func Restore(items []domain.Item) *Reservation {
	return &Reservation{items: domain.Normalize(items)}
}

func (r *Reservation) Items() []domain.Item {
	return append([]domain.Item(nil), r.items...)
}

type Service struct {
	log    *slog.Logger
	ledger Ledger
}

func NewService(log *slog.Logger, ledger Ledger) *Service {
	return &Service{log: log, ledger: ledger}
}

// Reserve decrements every item in ascending product order. If any decrement
// fails the ones already applied are incremented back before returning.
func (s *Service) Reserve(ctx context.Context, items []domain.Item) (*Reservation, error) {
	res := &Reservation{}
	for _, it := range domain.Normalize(items) {
		if it.Quantity <= 0 {
			s.compensate(ctx, res)
			return nil, fmt.Errorf("product %d: %w", it.ProductID, domain.ErrInvalidQuantity)
		}
		if err := s.ledger.Decrement(ctx, it.ProductID, it.Quantity); err != nil {
			s.compensate(ctx, res)
			if errors.Is(err, domain.ErrInsufficientStock) {
				return nil, &domain.InsufficientStockError{ProductID: it.ProductID}
			}
			return nil, fmt.Errorf("decrement product %d: %w", it.ProductID, err)
		}
		res.items = append(res.items, it)
	}
	return res, nil
}

// Release returns reserved stock. A second call on the same reservation is a
// no-op. Every item is attempted even if an earlier increment fails.
func (s *Service) Release(ctx context.Context, res *Reservation) error {
	if res == nil || res.released {
		return nil
	}
	res.released = true

	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(res.items) - 1; i >= 0; i-- {
		it := res.items[i]
		if err := s.ledger.Increment(ctx, it.ProductID, it.Quantity); err != nil {
			s.log.Error("stock increment failed", "product_id", it.ProductID, "quantity", it.Quantity, "err", err)
			errs = append(errs, fmt.Errorf("increment product %d: %w", it.ProductID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) compensate(ctx context.Context, res *Reservation) {
	if len(res.items) == 0 {
		return
	}
	if err := s.Release(ctx, res); err != nil {
		s.log.Error("reservation rollback incomplete", "err", err)
	}
}
