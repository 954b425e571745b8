package domain

// Line is one unordered basket entry. Price and name are captured when the
// product was added and are not re-read from the catalogue at checkout.
type Line struct {
	ID             int64  `json:"id"`
	UserID         string `json:"user_id"`
	ProductID      int64  `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	ProductName    string `json:"product_name"`
}

func (l Line) SubtotalCents() int64 {
	return int64(l.Quantity) * l.UnitPriceCents
}

func Total(lines []Line) int64 {
	var total int64
	for _, l := range lines {
		total += l.SubtotalCents()
	}
	return total
}

func IDs(lines []Line) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ID)
	}
	return ids
}
