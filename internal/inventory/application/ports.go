package application

import "context"

// Ledger is the per-product stock counter. Decrement must be a single atomic
// conditional update returning domain.ErrInsufficientStock when the available
// quantity is below qty; Increment is its unconditional inverse.
type Ledger interface {
	Decrement(ctx context.Context, productID int64, qty int) error
	Increment(ctx context.Context, productID int64, qty int) error
}
