package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	accountpg "github.com/dmehra2102/checkout-orchestrator/internal/account/infrastructure/postgres"
	basketpg "github.com/dmehra2102/checkout-orchestrator/internal/basket/infrastructure/postgres"
	"github.com/dmehra2102/checkout-orchestrator/internal/cache"
	"github.com/dmehra2102/checkout-orchestrator/internal/config"
	inventoryapp "github.com/dmehra2102/checkout-orchestrator/internal/inventory/application"
	inventorypg "github.com/dmehra2102/checkout-orchestrator/internal/inventory/infrastructure/postgres"
	checkoutapp "github.com/dmehra2102/checkout-orchestrator/internal/orchestrator/application"
	checkouthttp "github.com/dmehra2102/checkout-orchestrator/internal/orchestrator/infrastructure/http"
	checkoutpg "github.com/dmehra2102/checkout-orchestrator/internal/orchestrator/infrastructure/postgres"
	orderapp "github.com/dmehra2102/checkout-orchestrator/internal/order/application"
	orderhttp "github.com/dmehra2102/checkout-orchestrator/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/checkout-orchestrator/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/checkout-orchestrator/internal/order/infrastructure/postgres"
	paymentapp "github.com/dmehra2102/checkout-orchestrator/internal/payment/application"
	"github.com/dmehra2102/checkout-orchestrator/internal/payment/infrastructure/httpgateway"
	"github.com/dmehra2102/checkout-orchestrator/internal/payment/infrastructure/stripegateway"
	"github.com/dmehra2102/checkout-orchestrator/internal/platform/postgres"
	"github.com/dmehra2102/checkout-orchestrator/pkg/logging"
	"github.com/dmehra2102/checkout-orchestrator/pkg/metrics"
	"github.com/dmehra2102/checkout-orchestrator/pkg/outbox"
	"github.com/dmehra2102/checkout-orchestrator/pkg/ratelimit"
	"github.com/dmehra2102/checkout-orchestrator/pkg/shutdown"
	"github.com/dmehra2102/checkout-orchestrator/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "checkout-service", cfg.OTelURL, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	if err := postgres.Migrate(cfg.PGURL); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	pool, err := postgres.Connect(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	writer := orderkafka.NewWriter(cfg.Brokers)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCheckoutMetrics(reg)

	var gateway paymentapp.Gateway
	gatewayHTTP := &http.Client{Timeout: cfg.PaymentTimeout}
	switch cfg.PaymentProvider {
	case "stripe":
		gateway = stripegateway.New(log, cfg.StripeKey, gatewayHTTP)
	default:
		gateway = httpgateway.New(log, gatewayHTTP, cfg.PaymentURL)
	}
	payments := paymentapp.NewService(log, gateway, cfg.PaymentTimeout, m)

	notifier := checkoutapp.NewNotifier(log,
		cache.NewInvalidator(log, rdb),
		orderpg.NewEventPublisher(log, pool),
		cfg.SideEffectTimeout)

	deps := checkoutapp.Deps{
		Basket:      basketpg.NewRepository(log, pool),
		Stock:       inventoryapp.NewService(log, inventorypg.NewRepository(log, pool)),
		Payments:    payments,
		Attempts:    checkoutpg.NewStore(log, pool),
		SideEffects: notifier,
		Metrics:     m,
		Currency:    cfg.Currency,
	}
	coordinator := checkoutapp.NewCoordinator(log, deps)
	reconciler := checkoutapp.NewReconciler(log, deps, checkoutapp.ReconcilerConfig{
		Interval:   cfg.ReconcileInterval,
		MinAge:     cfg.ReconcileMinAge,
		StaleAfter: cfg.ReconcileStaleAge,
	})

	hostname, _ := os.Hostname()
	relay := outbox.NewRelay(log,
		orderpg.NewOutboxStore(log, pool),
		outbox.NewDispatcher(log, writer, cfg.OutboxTopic),
		"checkout-relay-"+hostname,
		cfg.RelayInterval)

	r := chi.NewRouter()
	checkoutRoutes := checkouthttp.NewHandler(log, coordinator, accountpg.NewRepository(pool)).Routes()
	if cfg.CheckoutPerMinute > 0 {
		limiter := ratelimit.New(cfg.CheckoutPerMinute, max(cfg.CheckoutBurst, 1))
		go limiter.SweepEvery(ctx, time.Minute)
		checkoutRoutes = limiter.Middleware(func(r *http.Request) string {
			return r.Header.Get(checkouthttp.UserHeader)
		})(checkoutRoutes)
	}

	// Both handlers route on full paths.
	r.Handle("/checkout", checkoutRoutes)
	r.Handle("/orders/*", orderhttp.NewHandler(log, orderapp.NewService(log, orderpg.NewRepository(log, pool))).Routes())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      otelhttp.NewHandler(r, "checkout-service"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.PaymentTimeout + 10*time.Second,
	}

	workers := make(chan struct{}, 2)
	go func() {
		defer func() { workers <- struct{}{} }()
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()
	go func() {
		defer func() { workers <- struct{}{} }()
		if err := reconciler.Run(ctx); err != nil {
			log.Error("reconciler stopped with error", "err", err)
		}
	}()

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "payment_provider", cfg.PaymentProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	err = shutdown.Drain(30*time.Second,
		srv.Shutdown,
		func(ctx context.Context) error {
			for i := 0; i < cap(workers); i++ {
				select {
				case <-workers:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		},
		func(context.Context) error { notifier.Wait(); return nil },
		func(context.Context) error { return writer.Close() },
		func(context.Context) error { return rdb.Close() },
		func(context.Context) error { pool.Close(); return nil },
		tp.Shutdown,
	)
	if err != nil {
		log.Error("shutdown incomplete", "err", err)
		os.Exit(1)
	}
	log.Info("checkout-service shutdown complete")
}
