package application

import (
	"context"

	"github.com/dmehra2102/checkout-orchestrator/internal/order/domain"
)

type OrderRepository interface {
	Get(ctx context.Context, id string) (domain.Order, error)
	// UpdateStatus moves an order from one status to the next only if it is
	// still in from; otherwise it returns domain.ErrStatusChanged.
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) error
}
