package domain

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindEmptyBasket            Kind = "empty_basket"
	KindInsufficientStock      Kind = "insufficient_stock"
	KindPaymentDeclined        Kind = "payment_declined"
	KindPaymentPending         Kind = "payment_pending"
	KindOrderPersistenceFailed Kind = "order_persistence_failed"
	KindAlreadyInProgress      Kind = "already_in_progress"
	KindUnexpected             Kind = "unexpected"
)

// CheckoutError is the only error Checkout returns. Match a kind with
// errors.Is against the Err* values, or use errors.As for ProductID and
// ReasonCode.
type CheckoutError struct {
	Kind       Kind
	ProductID  int64
	ReasonCode string
	Err        error
}

var (
	ErrEmptyBasket            = &CheckoutError{Kind: KindEmptyBasket}
	ErrInsufficientStock      = &CheckoutError{Kind: KindInsufficientStock}
	ErrPaymentDeclined        = &CheckoutError{Kind: KindPaymentDeclined}
	ErrPaymentPending         = &CheckoutError{Kind: KindPaymentPending}
	ErrOrderPersistenceFailed = &CheckoutError{Kind: KindOrderPersistenceFailed}
	ErrAlreadyInProgress      = &CheckoutError{Kind: KindAlreadyInProgress}
	ErrUnexpected             = &CheckoutError{Kind: KindUnexpected}
)

func (e *CheckoutError) Error() string {
	var msg string
	switch e.Kind {
	case KindEmptyBasket:
		msg = "basket is empty"
	case KindInsufficientStock:
		msg = fmt.Sprintf("insufficient stock for product %d", e.ProductID)
	case KindPaymentDeclined:
		msg = fmt.Sprintf("payment declined: %s", e.ReasonCode)
	case KindPaymentPending:
		msg = "payment outcome pending reconciliation"
	case KindOrderPersistenceFailed:
		msg = "order could not be saved after payment"
	case KindAlreadyInProgress:
		msg = "checkout already in progress"
	default:
		msg = "unexpected checkout failure"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *CheckoutError) Unwrap() error { return e.Err }

func (e *CheckoutError) Is(target error) bool {
	t, ok := target.(*CheckoutError)
	return ok && t.Kind == e.Kind
}

func InsufficientStock(productID int64) *CheckoutError {
	return &CheckoutError{Kind: KindInsufficientStock, ProductID: productID}
}

func PaymentDeclined(reasonCode string) *CheckoutError {
	return &CheckoutError{Kind: KindPaymentDeclined, ReasonCode: reasonCode}
}

func PaymentPending(cause error) *CheckoutError {
	return &CheckoutError{Kind: KindPaymentPending, Err: cause}
}

func OrderPersistenceFailed(cause error) *CheckoutError {
	return &CheckoutError{Kind: KindOrderPersistenceFailed, Err: cause}
}

func Unexpected(cause error) *CheckoutError {
	return &CheckoutError{Kind: KindUnexpected, Err: cause}
}

// KindOf returns the checkout kind of err, or KindUnexpected for errors that
// did not come from Checkout.
func KindOf(err error) Kind {
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnexpected
}
