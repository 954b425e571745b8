package domain

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

type Entry struct {
	ProductID         int64
	AvailableQuantity int
}

type Item struct {
	ProductID int64
	Quantity  int
}

// InsufficientStockError names the product whose conditional decrement failed.
type InsufficientStockError struct {
	ProductID int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d", e.ProductID)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Normalize merges lines for the same product and sorts by ascending product
// id, the order every reservation takes its decrements in.
func Normalize(items []Item) []Item {
	byProduct := make(map[int64]int, len(items))
	for _, it := range items {
		byProduct[it.ProductID] += it.Quantity
	}
	out := make([]Item, 0, len(byProduct))
	for id, qty := range byProduct {
		out = append(out, Item{ProductID: id, Quantity: qty})
	}
	slices.SortFunc(out, func(a, b Item) int {
		switch {
		case a.ProductID < b.ProductID:
			return -1
		case a.ProductID > b.ProductID:
			return 1
		}
		return 0
	})
	return out
}
