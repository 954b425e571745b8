package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/checkout-orchestrator/internal/order/domain"
	"github.com/dmehra2102/checkout-orchestrator/internal/platform/httpio"
)

type Orders interface {
	Get(ctx context.Context, id string) (domain.Order, error)
	Transition(ctx context.Context, id string, next domain.OrderStatus) (domain.Order, error)
}

type Handler struct {
	log      *slog.Logger
	orders   Orders
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, orders Orders) *Handler {
	return &Handler{
		log:      log,
		orders:   orders,
		validate: httpio.NewValidator(),
		tracer:   otel.Tracer("order-http"),
	}
}

type orderResp struct {
	ID                    string             `json:"id"`
	UserID                string             `json:"user_id"`
	Status                domain.OrderStatus `json:"status"`
	TotalCents            int64              `json:"total_cents"`
	Currency              string             `json:"currency"`
	Lines                 []domain.OrderLine `json:"lines"`
	ShippingAddress       domain.Address     `json:"shipping_address"`
	BillingAddress        domain.Address     `json:"billing_address"`
	ProviderTransactionID string             `json:"provider_transaction_id,omitempty"`
	CreatedAt             string             `json:"created_at"`
}

type transitionReq struct {
	Status domain.OrderStatus `json:"status" validate:"required,oneof=shipped delivered cancelled"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/status", h.transition)
	return r
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("order.id", id))

	o, err := h.orders.Get(ctx, id)
	if err != nil {
		h.writeError(w, id, err)
		return
	}
	httpio.WriteJSON(w, http.StatusOK, toResp(o))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "TransitionOrder")
	defer span.End()

	id := chi.URLParam(r, "id")
	var req transitionReq
	if err := httpio.Bind(w, r, h.validate, &req); err != nil {
		return
	}
	span.SetAttributes(attribute.String("order.id", id), attribute.String("order.next_status", string(req.Status)))

	o, err := h.orders.Transition(ctx, id, req.Status)
	if err != nil {
		h.writeError(w, id, err)
		return
	}
	httpio.WriteJSON(w, http.StatusOK, toResp(o))
}

func (h *Handler) writeError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		httpio.WriteError(w, http.StatusNotFound, "order_not_found", nil)
	case errors.Is(err, domain.ErrIllegalTransition):
		httpio.WriteError(w, http.StatusUnprocessableEntity, "illegal_transition", map[string]any{"msg": err.Error()})
	case errors.Is(err, domain.ErrStatusChanged):
		httpio.WriteError(w, http.StatusConflict, "status_changed", nil)
	default:
		h.log.Error("order request failed", "order_id", id, "err", err)
		httpio.WriteError(w, http.StatusInternalServerError, "internal", nil)
	}
}

func toResp(o domain.Order) orderResp {
	return orderResp{
		ID:                    o.ID,
		UserID:                o.UserID,
		Status:                o.Status,
		TotalCents:            o.TotalCents,
		Currency:              o.Currency,
		Lines:                 o.Lines,
		ShippingAddress:       o.ShippingAddress,
		BillingAddress:        o.BillingAddress,
		ProviderTransactionID: o.ProviderTransactionID,
		CreatedAt:             o.CreatedAt.Format(time.RFC3339),
	}
}
