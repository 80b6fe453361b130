package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/craftconnect/marketplace-backend/api/controllers"
	"github.com/craftconnect/marketplace-backend/api/routes"
	"github.com/craftconnect/marketplace-backend/internal/commission"
	"github.com/craftconnect/marketplace-backend/internal/ledger"
	"github.com/craftconnect/marketplace-backend/internal/orders"
	"github.com/craftconnect/marketplace-backend/internal/reporting"
	"github.com/craftconnect/marketplace-backend/internal/webhooks/payments"
	"github.com/craftconnect/marketplace-backend/pkg/config"
	"github.com/craftconnect/marketplace-backend/pkg/db"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
	"github.com/craftconnect/marketplace-backend/pkg/metrics"
	"github.com/craftconnect/marketplace-backend/pkg/migrate"
	"github.com/craftconnect/marketplace-backend/pkg/outbox"
	"github.com/craftconnect/marketplace-backend/pkg/pubsub"
	"github.com/craftconnect/marketplace-backend/pkg/redis"
	pkgstripe "github.com/craftconnect/marketplace-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ledgerParams := ledger.ServiceParams{
		Transactions:      ledger.NewRepository(dbClient.DB()),
		Balances:          ledger.NewBalanceRepository(dbClient.DB()),
		Orders:            orders.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Logger:            logg,
		Metrics:           metrics.NewLedgerMetrics(registry),
		Retry: ledger.RetryPolicy{
			MaxAttempts: cfg.Ledger.MaxAttempts,
			BaseBackoff: cfg.Ledger.BaseBackoff,
		},
	}
	// With the outbox on, cmd/outbox-publisher owns delivery and the
	// in-process notifier only logs.
	if cfg.Outbox.Enabled {
		ledgerParams.Outbox = outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	}
	ledgerSvc, err := ledger.NewService(ledgerParams)
	if err != nil {
		return err
	}

	reports, err := reporting.NewService(reporting.NewRepository(dbClient.DB()))
	if err != nil {
		return err
	}

	var notifier payments.Notifier = payments.NewLogNotifier(logg)
	var pubsubPinger controllers.Pinger
	if !cfg.Outbox.Enabled && cfg.PubSub.Enabled(cfg.GCP) {
		psClient, psErr := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if psErr != nil {
			return psErr
		}
		defer func() { err = multierr.Append(err, psClient.Close()) }()
		pubsubPinger = psClient

		notifier, psErr = payments.NewPubSubNotifier(psClient.PaymentEventsPublisher())
		if psErr != nil {
			return psErr
		}
	}

	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Ledger:   ledgerSvc,
		Rates:    commission.EnvRateSource{},
		Notifier: notifier,
		Logger:   logg,
		Metrics:  metrics.NewWebhookMetrics(registry),
	})
	if err != nil {
		return err
	}

	callbackGuard, err := payments.NewIdempotencyGuard(redisClient, cfg.Gateway.IdempotencyTTL, "payments-callback")
	if err != nil {
		return err
	}

	params := routes.RouterParams{
		DB:             dbClient,
		Redis:          redisClient,
		PubSub:         pubsubPinger,
		Idempotency:    redisClient,
		RateLimits:     redisClient,
		Ledger:         ledgerSvc,
		Reports:        reports,
		Payments:       paymentsSvc,
		CallbackGuard:  callbackGuard,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	}

	if cfg.Gateway.StripeWebhookSecret != "" {
		stripeClient, err := pkgstripe.NewClient(ctx, cfg.Gateway, logg)
		if err != nil {
			return err
		}
		stripeGuard, err := payments.NewIdempotencyGuard(redisClient, cfg.Gateway.IdempotencyTTL, "stripe-webhook")
		if err != nil {
			return err
		}
		params.Stripe = stripeClient
		params.StripeGuard = stripeGuard
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
