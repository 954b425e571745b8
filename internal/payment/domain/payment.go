package domain

import "errors"

type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeDeclined      Outcome = "declined"
	OutcomeIndeterminate Outcome = "indeterminate"
)

var ErrAmountMismatch = errors.New("payment amount does not match line items")

type Buyer struct {
	UserID string
	Email  string
}

type LineItem struct {
	ProductID      int64
	Description    string
	Quantity       int
	UnitPriceCents int64
}

// Request is built fresh for each attempt. CardReference is a processor token,
// never raw card data. Reference is the checkout attempt id. It is sent to the
// processor as its idempotency key so a lookup can find the charge later.
type Request struct {
	Reference     string
	AmountCents   int64
	Currency      string
	CardReference string
	Buyer         Buyer
	Lines         []LineItem
}

func (r Request) Validate() error {
	var sum int64
	for _, l := range r.Lines {
		sum += int64(l.Quantity) * l.UnitPriceCents
	}
	if sum != r.AmountCents {
		return ErrAmountMismatch
	}
	return nil
}

// Result is the classified outcome of one gateway call. Exactly one of
// TransactionID (success), ReasonCode (declined) or Reason (indeterminate) is
// meaningful, according to Outcome.
type Result struct {
	Outcome       Outcome
	TransactionID string
	ReasonCode    string
	Reason        string
}

func Success(transactionID string) Result {
	return Result{Outcome: OutcomeSuccess, TransactionID: transactionID}
}

func Declined(reasonCode string) Result {
	if reasonCode == "" {
		reasonCode = "declined"
	}
	return Result{Outcome: OutcomeDeclined, ReasonCode: reasonCode}
}

func Indeterminate(reason string) Result {
	return Result{Outcome: OutcomeIndeterminate, Reason: reason}
}

func (r Result) IsSuccess() bool       { return r.Outcome == OutcomeSuccess }
func (r Result) IsDeclined() bool      { return r.Outcome == OutcomeDeclined }
func (r Result) IsIndeterminate() bool { return r.Outcome == OutcomeIndeterminate }
