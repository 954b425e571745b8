package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	account "github.com/dmehra2102/checkout-orchestrator/internal/account/domain"
	"github.com/dmehra2102/checkout-orchestrator/internal/orchestrator/application"
	"github.com/dmehra2102/checkout-orchestrator/internal/orchestrator/domain"
	order "github.com/dmehra2102/checkout-orchestrator/internal/order/domain"
	"github.com/dmehra2102/checkout-orchestrator/pkg/logging"
)

type fakeCheckout struct {
	got     application.Request
	summary order.Summary
	err     error
	calls   int
}

func (f *fakeCheckout) Checkout(_ context.Context, req application.Request) (order.Summary, error) {
	f.calls++
	f.got = req
	return f.summary, f.err
}

type fakeAccounts map[string]account.Account

func (f fakeAccounts) Get(_ context.Context, userID string) (account.Account, error) {
	if userID == "broken" {
		return account.Account{}, errors.New("db down")
	}
	a, ok := f[userID]
	if !ok {
		return account.Account{}, account.ErrAccountNotFound
	}
	return a, nil
}

var accounts = fakeAccounts{
	"u1":     {UserID: "u1", Email: "u1@example.com"},
	"banned": {UserID: "banned", Banned: true},
}

const validBody = `{
	"card_reference": "tok_visa",
	"shipping_address": {"name":"Ada","line1":"1 Main St","city":"Oslo","postal_code":"0150","country":"NO"}
}`

func do(t *testing.T, h *Handler, user, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCheckout_Created(t *testing.T) {
	fc := &fakeCheckout{summary: order.Summary{OrderID: "o1", TotalCents: 100, Currency: "USD", Status: order.StatusPending}}
	h := NewHandler(logging.Discard(), fc, accounts)

	rec := do(t, h, "u1", "key-1", validBody)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "o1", body["order_id"])
	assert.Equal(t, float64(100), body["total_cents"])

	assert.Equal(t, "key-1", fc.got.IdempotencyKey)
	assert.Equal(t, "u1@example.com", fc.got.Email)
	assert.Equal(t, fc.got.ShippingAddress, fc.got.BillingAddress)
}

func TestCheckout_AccountChecks(t *testing.T) {
	fc := &fakeCheckout{}
	h := NewHandler(logging.Discard(), fc, accounts)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, "", "", validBody).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, "ghost", "", validBody).Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, "banned", "", validBody).Code)
	assert.Equal(t, http.StatusInternalServerError, do(t, h, "broken", "", validBody).Code)
	assert.Zero(t, fc.calls)
}

func TestCheckout_RejectsBadInput(t *testing.T) {
	fc := &fakeCheckout{}
	h := NewHandler(logging.Discard(), fc, accounts)

	rec := do(t, h, "u1", "", `{"card_reference": ""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "validation_failed", body["error"])
	fields := body["fields"].(map[string]any)
	assert.Contains(t, fields, "checkoutReq.card_reference")

	assert.Equal(t, http.StatusBadRequest, do(t, h, "u1", "", `{not json`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "u1", "bad key with spaces", validBody).Code)
	assert.Zero(t, fc.calls)
}

func TestCheckout_ErrorMapping(t *testing.T) {
	tests := []struct {
		err   error
		code  int
		field string
		value any
	}{
		{domain.ErrEmptyBasket, http.StatusUnprocessableEntity, "", nil},
		{domain.InsufficientStock(7), http.StatusConflict, "product_id", float64(7)},
		{domain.PaymentDeclined("insufficient_funds"), http.StatusPaymentRequired, "reason_code", "insufficient_funds"},
		{domain.ErrPaymentPending, http.StatusAccepted, "status", "payment_pending"},
		{domain.ErrAlreadyInProgress, http.StatusConflict, "error", "already_in_progress"},
		{domain.OrderPersistenceFailed(errors.New("tx aborted")), http.StatusInternalServerError, "error", "order_persistence_failed"},
		{domain.Unexpected(errors.New("boom")), http.StatusInternalServerError, "error", "unexpected"},
		{errors.New("raw"), http.StatusInternalServerError, "error", "unexpected"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := NewHandler(logging.Discard(), &fakeCheckout{err: tt.err}, accounts)
			rec := do(t, h, "u1", "", validBody)
			assert.Equal(t, tt.code, rec.Code)
			if tt.field != "" {
				assert.Equal(t, tt.value, decode(t, rec)[tt.field])
			}
		})
	}
}
