package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/checkout-orchestrator/internal/payment/domain"
	"github.com/dmehra2102/checkout-orchestrator/pkg/metrics"
)

var tracer = otel.Tracer("checkout-orchestrator/payment")

// Service bounds each gateway call with a timeout and turns anything the
// gateway could not classify (deadline, panic, invalid request) into a Result.
type Service struct {
	log     *slog.Logger
	gateway Gateway
	timeout time.Duration
	metrics *metrics.CheckoutMetrics
}

func NewService(log *slog.Logger, gateway Gateway, timeout time.Duration, m *metrics.CheckoutMetrics) *Service {
	return &Service{log: log, gateway: gateway, timeout: timeout, metrics: m}
}

func (s *Service) Charge(ctx context.Context, req domain.Request) domain.Result {
	ctx, span := tracer.Start(ctx, "payment.charge")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.reference", req.Reference),
		attribute.Int64("payment.amount_cents", req.AmountCents),
		attribute.String("payment.currency", req.Currency),
	)

	if err := req.Validate(); err != nil {
		// Nothing was sent, so the processor cannot have charged.
		s.log.Error("payment request rejected locally", "reference", req.Reference, "err", err)
		return s.record(span, domain.Declined("invalid_request"))
	}

	res := s.call(ctx, req.Reference, func(ctx context.Context) domain.Result {
		return s.gateway.Charge(ctx, req)
	})
	return s.record(span, res)
}

func (s *Service) Lookup(ctx context.Context, reference string, since time.Time) domain.Result {
	ctx, span := tracer.Start(ctx, "payment.lookup")
	defer span.End()
	span.SetAttributes(attribute.String("payment.reference", reference))

	res := s.call(ctx, reference, func(ctx context.Context) domain.Result {
		return s.gateway.Lookup(ctx, reference, since)
	})
	span.SetAttributes(attribute.String("payment.outcome", string(res.Outcome)))
	return res
}

func (s *Service) call(ctx context.Context, reference string, fn func(context.Context) domain.Result) (res domain.Result) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			s.log.Error("payment gateway panicked", "reference", reference, "panic", p)
			res = domain.Indeterminate(fmt.Sprintf("gateway panic: %v", p))
		}
	}()

	res = fn(ctx)
	if res.Outcome == "" {
		return domain.Indeterminate("gateway returned no outcome")
	}
	// A result produced after our deadline still stands; only log it.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.log.Warn("payment gateway exceeded timeout", "reference", reference, "outcome", res.Outcome)
	}
	return res
}

func (s *Service) record(span trace.Span, res domain.Result) domain.Result {
	span.SetAttributes(attribute.String("payment.outcome", string(res.Outcome)))
	if res.IsIndeterminate() {
		span.SetStatus(codes.Error, res.Reason)
	}
	if s.metrics != nil {
		s.metrics.PaymentResults.WithLabelValues(string(res.Outcome)).Inc()
	}
	switch res.Outcome {
	case domain.OutcomeSuccess:
		s.log.Info("payment succeeded", "transaction_id", res.TransactionID)
	case domain.OutcomeDeclined:
		s.log.Info("payment declined", "reason_code", res.ReasonCode)
	default:
		s.log.Warn("payment outcome unknown", "reason", res.Reason)
	}
	return res
}
