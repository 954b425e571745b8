package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmehra2102/checkout-orchestrator/internal/order/domain"
)

type Service struct {
	log  *slog.Logger
	repo OrderRepository
}

func NewService(log *slog.Logger, repo OrderRepository) *Service {
	return &Service{log: log, repo: repo}
}

func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.Get(ctx, id)
}

// Transition applies one step of the order status machine. Checkout never
// calls this; it only ever creates pending orders.
func (s *Service) Transition(ctx context.Context, id string, next domain.OrderStatus) (domain.Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !o.Status.CanTransitionTo(next) {
		return domain.Order{}, fmt.Errorf("%s -> %s: %w", o.Status, next, domain.ErrIllegalTransition)
	}
	if err := s.repo.UpdateStatus(ctx, id, o.Status, next); err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order status changed", "order_id", id, "from", o.Status, "to", next)
	o.Status = next
	return o, nil
}
