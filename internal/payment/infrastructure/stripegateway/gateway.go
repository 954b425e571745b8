package stripegateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"

	"github.com/dmehra2102/checkout-orchestrator/internal/payment/domain"
)

const referenceKey = "checkout_reference"

// clockSkew widens the created filter of a list lookup.
const clockSkew = 5 * time.Minute

// Gateway charges through Stripe PaymentIntents, confirming server side with a
// saved payment method. The checkout reference doubles as the Stripe
// idempotency key and is stored in metadata so Lookup can search for it.
type Gateway struct {
	log    *slog.Logger
	client *paymentintent.Client
}

type Option func(*stripe.BackendConfig)

// WithURL points the backend at another API host, used in tests.
func WithURL(url string) Option {
	return func(c *stripe.BackendConfig) { c.URL = stripe.String(url) }
}

func New(log *slog.Logger, key string, httpClient *http.Client, opts ...Option) *Gateway {
	cfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Gateway{
		log: log,
		client: &paymentintent.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
			Key: key,
		},
	}
}

func (g *Gateway) Charge(ctx context.Context, req domain.Request) domain.Result {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(req.CardReference),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if req.Buyer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Buyer.Email)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.Reference)
	params.AddMetadata(referenceKey, req.Reference)
	params.AddMetadata("user_id", req.Buyer.UserID)

	pi, err := g.client.New(params)
	if err != nil {
		res := classifyError(err)
		g.log.Warn("stripe charge error", "reference", req.Reference, "outcome", res.Outcome, "err", err)
		return res
	}
	return classifyIntent(pi)
}

// Lookup searches intents by reference metadata. Search is eventually
// consistent, so an empty search is checked against the list endpoint for
// intents created since the attempt started before reporting not_found.
func (g *Gateway) Lookup(ctx context.Context, reference string, since time.Time) domain.Result {
	params := &stripe.PaymentIntentSearchParams{}
	params.Context = ctx
	params.Query = fmt.Sprintf("metadata['%s']:'%s'", referenceKey, reference)

	iter := g.client.Search(params)
	var found *stripe.PaymentIntent
	for iter.Next() {
		found = prefer(found, iter.PaymentIntent())
	}
	if err := iter.Err(); err != nil {
		return domain.Indeterminate(fmt.Sprintf("stripe search: %v", err))
	}
	if found != nil {
		return classifyIntent(found)
	}

	found, err := g.listSince(ctx, reference, since)
	if err != nil {
		return domain.Indeterminate(fmt.Sprintf("stripe list: %v", err))
	}
	if found == nil {
		g.log.Info("stripe has no intent for reference", "reference", reference, "since", since)
		return domain.Declined("not_found")
	}
	return classifyIntent(found)
}

func (g *Gateway) listSince(ctx context.Context, reference string, since time.Time) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(100)
	if !since.IsZero() {
		params.CreatedRange = &stripe.RangeQueryParams{GreaterThanOrEqual: since.Add(-clockSkew).Unix()}
	}

	iter := g.client.List(params)
	var found *stripe.PaymentIntent
	for iter.Next() {
		if pi := iter.PaymentIntent(); pi.Metadata[referenceKey] == reference {
			found = prefer(found, pi)
		}
	}
	return found, iter.Err()
}

// prefer keeps a succeeded intent over any other for the same reference.
func prefer(cur, next *stripe.PaymentIntent) *stripe.PaymentIntent {
	if cur == nil || next.Status == stripe.PaymentIntentStatusSucceeded {
		return next
	}
	return cur
}

func classifyIntent(pi *stripe.PaymentIntent) domain.Result {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return domain.Success(pi.ID)
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusCanceled:
		code := string(pi.Status)
		if pi.LastPaymentError != nil {
			code = declineCode(pi.LastPaymentError)
		}
		return domain.Declined(code)
	default:
		// processing, requires_action, requires_capture, requires_confirmation
		return domain.Indeterminate(fmt.Sprintf("payment intent %s is %s", pi.ID, pi.Status))
	}
}

// classifyError treats only card and request rejections as declines. Anything
// the API could have processed (rate limits, API errors, idempotency
// conflicts, transport failures) is indeterminate.
func classifyError(err error) domain.Result {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return domain.Indeterminate(err.Error())
	}
	if serr.HTTPStatusCode == http.StatusTooManyRequests || serr.HTTPStatusCode >= 500 {
		return domain.Indeterminate(string(serr.Type))
	}
	switch serr.Type {
	case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
		return domain.Declined(declineCode(serr))
	default:
		return domain.Indeterminate(string(serr.Type))
	}
}

func declineCode(serr *stripe.Error) string {
	if serr.DeclineCode != "" {
		return string(serr.DeclineCode)
	}
	if serr.Code != "" {
		return string(serr.Code)
	}
	return string(serr.Type)
}
