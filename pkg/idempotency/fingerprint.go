package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Item is the part of a basket line that identifies what is being bought.
type Item struct {
	ProductID      int64
	Quantity       int
	UnitPriceCents int64
}

// Fingerprint derives a stable key for a user's basket. Line order does not
// affect the result.
func Fingerprint(userID string, items []Item) string {
	sorted := slices.Clone(items)
	slices.SortFunc(sorted, func(a, b Item) int {
		if a.ProductID != b.ProductID {
			if a.ProductID < b.ProductID {
				return -1
			}
			return 1
		}
		if a.Quantity != b.Quantity {
			return a.Quantity - b.Quantity
		}
		switch {
		case a.UnitPriceCents < b.UnitPriceCents:
			return -1
		case a.UnitPriceCents > b.UnitPriceCents:
			return 1
		}
		return 0
	})

	h := sha256.New()
	for _, it := range sorted {
		fmt.Fprintf(h, "%d:%d:%d;", it.ProductID, it.Quantity, it.UnitPriceCents)
	}
	return fmt.Sprintf("basket:%s:%s", userID, hex.EncodeToString(h.Sum(nil)))
}
