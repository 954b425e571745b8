package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/checkout-orchestrator/internal/order/application"
	"github.com/dmehra2102/checkout-orchestrator/internal/order/domain"
	"github.com/dmehra2102/checkout-orchestrator/pkg/logging"
)

type memRepo map[string]domain.Order

func (m memRepo) Get(_ context.Context, id string) (domain.Order, error) {
	o, ok := m[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (m memRepo) UpdateStatus(_ context.Context, id string, from, to domain.OrderStatus) error {
	o := m[id]
	if o.Status != from {
		return domain.ErrStatusChanged
	}
	o.Status = to
	m[id] = o
	return nil
}

func newTestHandler() (*Handler, memRepo) {
	repo := memRepo{
		"o1": domain.NewOrder("o1", "u1", []domain.OrderLine{{ProductID: 1, ProductName: "mug", Quantity: 2, UnitPriceCents: 50}},
			domain.Address{City: "Oslo"}, domain.Address{City: "Oslo"}, "USD", "tx_1", time.Now()),
	}
	return NewHandler(logging.Discard(), application.NewService(logging.Discard(), repo)), repo
}

func serve(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestGetOrder(t *testing.T) {
	h, _ := newTestHandler()

	rec := serve(h, http.MethodGet, "/orders/o1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got orderResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(100), got.TotalCents)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Len(t, got.Lines, 1)

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/orders/missing", "").Code)
}

func TestTransitionOrder(t *testing.T) {
	h, repo := newTestHandler()

	rec := serve(h, http.MethodPost, "/orders/o1/status", `{"status":"shipped"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusShipped, repo["o1"].Status)

	rec = serve(h, http.MethodPost, "/orders/o1/status", `{"status":"cancelled"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(h, http.MethodPost, "/orders/o1/status", `{"status":"paid"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/orders/missing/status", `{"status":"shipped"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
