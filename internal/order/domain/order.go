package domain

import (
	"errors"
	"time"

	basket "github.com/dmehra2102/checkout-orchestrator/internal/basket/domain"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrIllegalTransition = errors.New("illegal order status transition")
	ErrStatusChanged     = errors.New("order status changed concurrently")
)

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending: {StatusShipped, StatusCancelled},
	StatusShipped: {StatusDelivered},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Address struct {
	Name       string `json:"name" validate:"required"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required,len=2"`
}

// OrderLine is a copy of a basket line taken at commit time.
type OrderLine struct {
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type Order struct {
	ID                    string
	UserID                string
	Lines                 []OrderLine
	ShippingAddress       Address
	BillingAddress        Address
	Status                OrderStatus
	TotalCents            int64
	Currency              string
	ProviderTransactionID string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func LinesFromBasket(lines []basket.Line) []OrderLine {
	out := make([]OrderLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, OrderLine{
			ProductID:      l.ProductID,
			ProductName:    l.ProductName,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
		})
	}
	return out
}

// NewOrder builds a pending order whose total is derived from its lines.
func NewOrder(id, userID string, lines []OrderLine, shipping, billing Address, currency, transactionID string, now time.Time) Order {
	var total int64
	for _, l := range lines {
		total += int64(l.Quantity) * l.UnitPriceCents
	}
	now = now.UTC()
	return Order{
		ID:                    id,
		UserID:                userID,
		Lines:                 lines,
		ShippingAddress:       shipping,
		BillingAddress:        billing,
		Status:                StatusPending,
		TotalCents:            total,
		Currency:              currency,
		ProviderTransactionID: transactionID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

type Summary struct {
	OrderID    string      `json:"order_id"`
	TotalCents int64       `json:"total_cents"`
	Currency   string      `json:"currency"`
	Status     OrderStatus `json:"status"`
}

func (o Order) Summary() Summary {
	return Summary{OrderID: o.ID, TotalCents: o.TotalCents, Currency: o.Currency, Status: o.Status}
}
