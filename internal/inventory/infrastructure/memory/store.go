package memory

import (
	"context"
	"sync"

	"github.com/dmehra2102/checkout-orchestrator/internal/inventory/domain"
)

// Store is an in-process ledger. Each operation holds the lock only for the
// compare-and-swap on a single entry.
type Store struct {
	mu    sync.Mutex
	stock map[int64]int
}

func NewStore() *Store {
	return &Store{stock: make(map[int64]int)}
}

func (s *Store) SetStock(productID int64, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[productID] = qty
}

func (s *Store) Available(productID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stock[productID]
}

func (s *Store) Decrement(ctx context.Context, productID int64, qty int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	available, ok := s.stock[productID]
	if !ok || available < qty {
		return domain.ErrInsufficientStock
	}
	s.stock[productID] = available - qty
	return nil
}

func (s *Store) Increment(_ context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[productID] += qty
	return nil
}
