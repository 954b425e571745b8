package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	account "github.com/dmehra2102/checkout-orchestrator/internal/account/domain"
	"github.com/dmehra2102/checkout-orchestrator/internal/orchestrator/application"
	"github.com/dmehra2102/checkout-orchestrator/internal/orchestrator/domain"
	order "github.com/dmehra2102/checkout-orchestrator/internal/order/domain"
	"github.com/dmehra2102/checkout-orchestrator/internal/platform/httpio"
	"github.com/dmehra2102/checkout-orchestrator/pkg/idempotency"
)

// UserHeader carries the caller identity set by the authenticating gateway.
const UserHeader = "X-User-ID"

type Checkouter interface {
	Checkout(ctx context.Context, req application.Request) (order.Summary, error)
}

type Accounts interface {
	Get(ctx context.Context, userID string) (account.Account, error)
}

type Handler struct {
	log      *slog.Logger
	checkout Checkouter
	accounts Accounts
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, checkout Checkouter, accounts Accounts) *Handler {
	return &Handler{
		log:      log,
		checkout: checkout,
		accounts: accounts,
		validate: httpio.NewValidator(),
		tracer:   otel.Tracer("checkout-http"),
	}
}

type checkoutReq struct {
	CardReference   string         `json:"card_reference" validate:"required"`
	ShippingAddress order.Address  `json:"shipping_address"`
	BillingAddress  *order.Address `json:"billing_address,omitempty"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.With(idempotency.Middleware).Post("/checkout", h.createCheckout)
	return r
}

func (h *Handler) createCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Checkout")
	defer span.End()

	userID := r.Header.Get(UserHeader)
	if userID == "" {
		httpio.WriteError(w, http.StatusUnauthorized, "unauthenticated", nil)
		return
	}
	span.SetAttributes(attribute.String("user.id", userID))

	acct, err := h.accounts.Get(ctx, userID)
	switch {
	case errors.Is(err, account.ErrAccountNotFound):
		httpio.WriteError(w, http.StatusUnauthorized, "unknown_account", nil)
		return
	case err != nil:
		h.log.Error("account lookup failed", "user_id", userID, "err", err)
		httpio.WriteError(w, http.StatusInternalServerError, "internal", nil)
		return
	}
	if err := acct.InGoodStanding(); err != nil {
		httpio.WriteError(w, http.StatusForbidden, "account_banned", nil)
		return
	}

	var req checkoutReq
	if err := httpio.Bind(w, r, h.validate, &req); err != nil {
		return
	}
	billing := req.ShippingAddress
	if req.BillingAddress != nil {
		billing = *req.BillingAddress
	}

	summary, err := h.checkout.Checkout(ctx, application.Request{
		UserID:          acct.UserID,
		Email:           acct.Email,
		IdempotencyKey:  idempotency.FromContext(r.Context()),
		CardReference:   req.CardReference,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
	})
	if err != nil {
		h.writeCheckoutError(w, userID, err)
		return
	}
	httpio.WriteJSON(w, http.StatusCreated, summary)
}

func (h *Handler) writeCheckoutError(w http.ResponseWriter, userID string, err error) {
	var ce *domain.CheckoutError
	if !errors.As(err, &ce) {
		ce = domain.Unexpected(err)
	}

	switch ce.Kind {
	case domain.KindEmptyBasket:
		httpio.WriteError(w, http.StatusUnprocessableEntity, string(ce.Kind), nil)
	case domain.KindInsufficientStock:
		httpio.WriteError(w, http.StatusConflict, string(ce.Kind), map[string]any{"product_id": ce.ProductID})
	case domain.KindPaymentDeclined:
		httpio.WriteError(w, http.StatusPaymentRequired, string(ce.Kind), map[string]any{"reason_code": ce.ReasonCode})
	case domain.KindPaymentPending:
		httpio.WriteJSON(w, http.StatusAccepted, map[string]string{"status": string(ce.Kind)})
	case domain.KindAlreadyInProgress:
		httpio.WriteError(w, http.StatusConflict, string(ce.Kind), nil)
	default:
		h.log.Error("checkout failed", "user_id", userID, "kind", ce.Kind, "err", err)
		httpio.WriteError(w, http.StatusInternalServerError, string(ce.Kind), nil)
	}
}
