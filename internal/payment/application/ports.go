package application

import (
	"context"
	"time"

	"github.com/dmehra2102/checkout-orchestrator/internal/payment/domain"
)

// Gateway is one payment processor. Implementations classify every outcome
// into a domain.Result and never retry a charge on their own.
type Gateway interface {
	Charge(ctx context.Context, req domain.Request) domain.Result
	// Lookup reports the outcome of an earlier charge by its reference; since
	// is the earliest time the charge could have been created. Declined is
	// returned for a missing reference only once the processor's answer is
	// authoritative, otherwise Indeterminate.
	Lookup(ctx context.Context, reference string, since time.Time) domain.Result
}
