package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmehra2102/checkout-orchestrator/internal/cache"
	order "github.com/dmehra2102/checkout-orchestrator/internal/order/domain"
)

// Notifier invalidates caches and publishes OrderCreated in the background.
// Failures are logged and never reach the caller.
type Notifier struct {
	log     *slog.Logger
	cache   CacheInvalidator
	events  EventPublisher
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewNotifier(log *slog.Logger, c CacheInvalidator, events EventPublisher, timeout time.Duration) *Notifier {
	return &Notifier{log: log, cache: c, events: events, timeout: timeout}
}

func (n *Notifier) OrderCommitted(ctx context.Context, o order.Order) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		n.run(ctx, o)
	}()
}

// Wait blocks until every side effect started so far has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) run(ctx context.Context, o order.Order) {
	if n.cache != nil {
		keys := []string{cache.BasketKey(o.UserID), cache.OrdersKey(o.UserID)}
		seen := make(map[int64]bool, len(o.Lines))
		for _, l := range o.Lines {
			if !seen[l.ProductID] {
				seen[l.ProductID] = true
				keys = append(keys, cache.StockKey(l.ProductID))
			}
		}
		if err := n.cache.Invalidate(ctx, keys...); err != nil {
			n.log.Warn("cache invalidation failed", "order_id", o.ID, "err", err)
		}
	}
	if n.events != nil {
		if err := n.events.Publish(ctx, order.NewOrderCreated(o)); err != nil {
			n.log.Warn("order event publish failed", "order_id", o.ID, "err", err)
		}
	}
}
