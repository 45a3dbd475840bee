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

	"github.com/tmakori/sokohub-backend/api/routes"
	"github.com/tmakori/sokohub-backend/internal/address"
	"github.com/tmakori/sokohub-backend/internal/cart"
	"github.com/tmakori/sokohub-backend/internal/checkout"
	"github.com/tmakori/sokohub-backend/internal/inventory"
	"github.com/tmakori/sokohub-backend/internal/notifications"
	"github.com/tmakori/sokohub-backend/internal/orders"
	"github.com/tmakori/sokohub-backend/internal/payments"
	"github.com/tmakori/sokohub-backend/internal/shipments"
	"github.com/tmakori/sokohub-backend/pkg/config"
	"github.com/tmakori/sokohub-backend/pkg/db"
	"github.com/tmakori/sokohub-backend/pkg/logger"
	"github.com/tmakori/sokohub-backend/pkg/metrics"
	"github.com/tmakori/sokohub-backend/pkg/migrate"
	"github.com/tmakori/sokohub-backend/pkg/outbox"
	"github.com/tmakori/sokohub-backend/pkg/paystack"
	"github.com/tmakori/sokohub-backend/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
)

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

	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	paystackClient, err := paystack.NewClient(ctx, cfg.Provider, logg)
	if err != nil {
		logg.Error(ctx, "failed to build payment provider client", err)
		os.Exit(1)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ordersSvc, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, outboxSvc, inventory.NewLedger())
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	checkoutSvc, err := checkout.NewService(
		dbClient,
		cart.NewRepository(dbClient.DB()),
		shipments.NewRepository(dbClient.DB()),
		address.NewRepository(dbClient.DB()),
		ordersSvc,
		outboxSvc,
	)
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	paymentsSvc, err := payments.NewService(
		payments.NewRepository(dbClient.DB()),
		dbClient,
		outboxSvc,
		paystackClient,
		cfg.Payments,
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to create payments service", err)
		os.Exit(1)
	}

	shipmentsSvc, err := shipments.NewService(
		shipments.NewRepository(dbClient.DB()),
		shipments.NewOrderAdvancer(),
		dbClient,
		outboxSvc,
	)
	if err != nil {
		logg.Error(ctx, "failed to create shipments service", err)
		os.Exit(1)
	}

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
		os.Exit(1)
	}

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			ordersSvc,
			checkoutSvc,
			paymentsSvc,
			shipmentsSvc,
			notificationsSvc,
			paystackClient,
			webhookMetrics,
		),
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logg.Info(logg.WithField(ctx, "signal", sig.String()), "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
