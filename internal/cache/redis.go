package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

func BasketKey(userID string) string  { return "basket:" + userID }
func OrdersKey(userID string) string  { return "orders:" + userID }
func StockKey(productID int64) string { return fmt.Sprintf("stock:%d", productID) }

// Invalidator drops read-model cache entries after a checkout changes them.
type Invalidator struct {
	log    *slog.Logger
	client redis.UniversalClient
}

func NewInvalidator(log *slog.Logger, client redis.UniversalClient) *Invalidator {
	return &Invalidator{log: log, client: client}
}

func (i *Invalidator) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	n, err := i.client.Del(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("redis del %v: %w", keys, err)
	}
	i.log.Debug("cache invalidated", "keys", keys, "removed", n)
	return nil
}
