package stripegateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"

	"github.com/dmehra2102/checkout-orchestrator/internal/payment/domain"
	"github.com/dmehra2102/checkout-orchestrator/pkg/logging"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name string
		pi   *stripe.PaymentIntent
		want domain.Result
	}{
		{"succeeded", &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded}, domain.Success("pi_1")},
		{"needs new method", &stripe.PaymentIntent{
			ID:               "pi_2",
			Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
			LastPaymentError: &stripe.Error{Type: stripe.ErrorTypeCard, DeclineCode: "insufficient_funds"},
		}, domain.Declined("insufficient_funds")},
		{"canceled", &stripe.PaymentIntent{ID: "pi_3", Status: stripe.PaymentIntentStatusCanceled}, domain.Declined("canceled")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyIntent(tt.pi))
		})
	}

	for _, status := range []stripe.PaymentIntentStatus{
		stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture,
	} {
		res := classifyIntent(&stripe.PaymentIntent{ID: "pi", Status: status})
		assert.True(t, res.IsIndeterminate(), status)
	}
}

func TestClassifyError(t *testing.T) {
	card := &stripe.Error{Type: stripe.ErrorTypeCard, Code: stripe.ErrorCodeCardDeclined, DeclineCode: "stolen_card", HTTPStatusCode: 402}
	assert.Equal(t, domain.Declined("stolen_card"), classifyError(card))

	invalid := &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Code: "resource_missing", HTTPStatusCode: 400}
	assert.Equal(t, domain.Declined("resource_missing"), classifyError(invalid))

	assert.True(t, classifyError(&stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: 429}).IsIndeterminate())
	assert.True(t, classifyError(&stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: 500}).IsIndeterminate())
	assert.True(t, classifyError(&stripe.Error{Type: stripe.ErrorTypeIdempotency, HTTPStatusCode: 400}).IsIndeterminate())
	assert.True(t, classifyError(errors.New("dial tcp: connection refused")).IsIndeterminate())
}

func TestCharge_AgainstFakeAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "100", r.PostForm.Get("amount"))
		assert.Equal(t, "key-1", r.PostForm.Get("metadata[checkout_reference]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","status":"succeeded","amount":100,"currency":"usd"}`))
	}))
	defer srv.Close()

	g := New(logging.Discard(), "sk_test_123", &http.Client{Timeout: time.Second}, WithURL(srv.URL))
	res := g.Charge(context.Background(), domain.Request{
		Reference:     "key-1",
		AmountCents:   100,
		Currency:      "usd",
		CardReference: "pm_card_visa",
		Buyer:         domain.Buyer{UserID: "u1"},
	})

	assert.Equal(t, domain.Success("pi_123"), res)
}

func TestCharge_CardErrorFromAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","decline_code":"generic_decline","message":"Your card was declined."}}`))
	}))
	defer srv.Close()

	g := New(logging.Discard(), "sk_test_123", &http.Client{Timeout: time.Second}, WithURL(srv.URL))
	res := g.Charge(context.Background(), domain.Request{Reference: "key-2", AmountCents: 100, Currency: "usd"})

	assert.Equal(t, domain.Declined("generic_decline"), res)
}

func fakeLookupAPI(t *testing.T, search, list string, listCalls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/payment_intents/search":
			assert.Equal(t, "metadata['checkout_reference']:'att-1'", r.URL.Query().Get("query"))
			_, _ = w.Write([]byte(search))
		case "/v1/payment_intents":
			*listCalls++
			assert.Equal(t, "1772366100", r.URL.Query().Get("created[gte]"))
			if list == "" {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
				return
			}
			_, _ = w.Write([]byte(list))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
}

const emptySearch = `{"object":"search_result","data":[],"has_more":false,"url":"/v1/payment_intents/search"}`

// 2026-03-01T12:00:00Z; the list filter starts five minutes earlier.
var attemptCreated = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestLookup_EmptySearchFallsBackToList(t *testing.T) {
	var listCalls int
	srv := fakeLookupAPI(t, emptySearch, `{"object":"list","has_more":false,"url":"/v1/payment_intents","data":[
		{"id":"pi_other","object":"payment_intent","status":"succeeded","metadata":{"checkout_reference":"att-2"}},
		{"id":"pi_9","object":"payment_intent","status":"succeeded","metadata":{"checkout_reference":"att-1"}}]}`, &listCalls)
	defer srv.Close()

	g := New(logging.Discard(), "sk_test_123", &http.Client{Timeout: time.Second}, WithURL(srv.URL))
	res := g.Lookup(context.Background(), "att-1", attemptCreated)

	assert.Equal(t, domain.Success("pi_9"), res)
	assert.Equal(t, 1, listCalls)
}

func TestLookup_NotFoundOnlyAfterListConfirms(t *testing.T) {
	var listCalls int
	srv := fakeLookupAPI(t, emptySearch, `{"object":"list","has_more":false,"url":"/v1/payment_intents","data":[
		{"id":"pi_other","object":"payment_intent","status":"succeeded","metadata":{"checkout_reference":"att-2"}}]}`, &listCalls)
	defer srv.Close()

	g := New(logging.Discard(), "sk_test_123", &http.Client{Timeout: time.Second}, WithURL(srv.URL))
	assert.Equal(t, domain.Declined("not_found"), g.Lookup(context.Background(), "att-1", attemptCreated))
	assert.Equal(t, 1, listCalls)
}

func TestLookup_ListFailureIsIndeterminate(t *testing.T) {
	var listCalls int
	srv := fakeLookupAPI(t, emptySearch, "", &listCalls)
	defer srv.Close()

	g := New(logging.Discard(), "sk_test_123", &http.Client{Timeout: time.Second}, WithURL(srv.URL))
	res := g.Lookup(context.Background(), "att-1", attemptCreated)

	assert.True(t, res.IsIndeterminate(), res)
	assert.Equal(t, 1, listCalls)
}

func TestLookup_SearchHitSkipsList(t *testing.T) {
	var listCalls int
	srv := fakeLookupAPI(t, `{"object":"search_result","has_more":false,"url":"/v1/payment_intents/search","data":[
		{"id":"pi_1","object":"payment_intent","status":"requires_payment_method","metadata":{"checkout_reference":"att-1"}},
		{"id":"pi_2","object":"payment_intent","status":"succeeded","metadata":{"checkout_reference":"att-1"}}]}`, "", &listCalls)
	defer srv.Close()

	g := New(logging.Discard(), "sk_test_123", &http.Client{Timeout: time.Second}, WithURL(srv.URL))
	assert.Equal(t, domain.Success("pi_2"), g.Lookup(context.Background(), "att-1", attemptCreated))
	assert.Zero(t, listCalls)
}
