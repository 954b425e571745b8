package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/checkout-orchestrator/pkg/logging"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestInvalidate_RemovesKeys(t *testing.T) {
	mr, client := setupTestRedis(t)
	require.NoError(t, mr.Set(BasketKey("u1"), "cached"))
	require.NoError(t, mr.Set(StockKey(42), "7"))
	require.NoError(t, mr.Set(OrdersKey("u2"), "keep"))

	inv := NewInvalidator(logging.Discard(), client)
	require.NoError(t, inv.Invalidate(context.Background(), BasketKey("u1"), StockKey(42), OrdersKey("u1")))

	assert.False(t, mr.Exists("basket:u1"))
	assert.False(t, mr.Exists("stock:42"))
	assert.True(t, mr.Exists("orders:u2"))
}

func TestInvalidate_NoKeys(t *testing.T) {
	_, client := setupTestRedis(t)
	assert.NoError(t, NewInvalidator(logging.Discard(), client).Invalidate(context.Background()))
}

func TestInvalidate_RedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	err := NewInvalidator(logging.Discard(), client).Invalidate(context.Background(), BasketKey("u1"))
	assert.Error(t, err)
}
