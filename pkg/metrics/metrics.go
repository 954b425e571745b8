package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type CheckoutMetrics struct {
	Outcomes       *prometheus.CounterVec
	PaymentResults *prometheus.CounterVec
	Compensations  *prometheus.CounterVec
	Reconciled     *prometheus.CounterVec
	LatencyMS      prometheus.Histogram
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	m := &CheckoutMetrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "outcomes_total",
			Help:      "Checkout attempts by terminal outcome.",
		}, []string{"outcome"}),
		PaymentResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "payment_results_total",
			Help:      "Payment gateway results by classification.",
		}, []string{"result"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "compensations_total",
			Help:      "Stock compensations by trigger.",
		}, []string{"reason"}),
		Reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "reconciled_total",
			Help:      "Reconciliation outcomes for pending attempts.",
		}, []string{"resolution"}),
		LatencyMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "checkout",
			Name:      "duration_ms",
			Help:      "Checkout latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
	}
	reg.MustRegister(m.Outcomes, m.PaymentResults, m.Compensations, m.Reconciled, m.LatencyMS)
	return m
}

func (m *CheckoutMetrics) ObserveOutcome(outcome string, started time.Time) {
	m.Outcomes.WithLabelValues(outcome).Inc()
	m.LatencyMS.Observe(float64(time.Since(started).Milliseconds()))
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
