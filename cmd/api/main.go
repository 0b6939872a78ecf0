package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/gatepass-backend/api/controllers"
	"github.com/angelmondragon/gatepass-backend/api/routes"
	"github.com/angelmondragon/gatepass-backend/internal/activity"
	"github.com/angelmondragon/gatepass-backend/internal/checkout"
	"github.com/angelmondragon/gatepass-backend/internal/eventdata"
	"github.com/angelmondragon/gatepass-backend/internal/inventory"
	"github.com/angelmondragon/gatepass-backend/internal/notifications"
	"github.com/angelmondragon/gatepass-backend/internal/qrcode"
	"github.com/angelmondragon/gatepass-backend/internal/tickets"
	stripewebhook "github.com/angelmondragon/gatepass-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/gatepass-backend/pkg/config"
	"github.com/angelmondragon/gatepass-backend/pkg/db"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
	"github.com/angelmondragon/gatepass-backend/pkg/metrics"
	"github.com/angelmondragon/gatepass-backend/pkg/migrate"
	"github.com/angelmondragon/gatepass-backend/pkg/outbox"
	"github.com/angelmondragon/gatepass-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/gatepass-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/gatepass-backend/pkg/stripe"
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
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, db.Options{UseSQLite: cfg.FeatureFlags.UseSQLite}, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	params, err := buildRouterParams(cfg, logg, dbClient, redisClient, stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
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
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   id,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

func buildRouterParams(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, stripeClient *pkgstripe.Client) (routes.Params, error) {
	conn := dbClient.DB()

	signer, err := qrcode.New(cfg.Checkout.QRSecret, cfg.Checkout.QRVersion)
	if err != nil {
		return routes.Params{}, err
	}
	holds, err := inventory.NewManager(inventory.ManagerParams{
		DB:      conn,
		Logger:  logg,
		Metrics: metrics.NewHoldMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return routes.Params{}, err
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)
	auditSink := activity.NewSink(conn, logg)
	notificationsRepo := notifications.NewRepository(conn)
	publicURL := strings.TrimRight(cfg.App.PublicURL, "/")
	receipts, err := notifications.NewNotifier(notifications.NotifierParams{
		Tx:     dbClient,
		Repo:   notificationsRepo,
		Outbox: outboxSvc,
		OrderLink: func(orderID uuid.UUID) string {
			return publicURL + "/orders/" + orderID.String()
		},
	})
	if err != nil {
		return routes.Params{}, err
	}

	checkoutRepo := checkout.NewRepository(conn)
	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Tx:       dbClient,
		Repo:     checkoutRepo,
		Holds:    holds,
		Gateway:  checkout.NewStripeGateway(stripeClient),
		Signer:   signer,
		Outbox:   outboxSvc,
		Receipts: receipts,
		Activity: auditSink,
		Metrics:  metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
		URLs: checkout.URLBuilder{
			BaseURL:     publicURL,
			SuccessPath: cfg.Checkout.SuccessPath,
			CancelPath:  cfg.Checkout.CancelPath,
		},
		HoldTTL:  cfg.Checkout.HoldTTL,
		Currency: cfg.Checkout.Currency,
	})
	if err != nil {
		return routes.Params{}, err
	}

	fulfiller, err := checkout.NewFulfiller(checkout.FulfillerParams{
		Tx:       dbClient,
		Repo:     checkoutRepo,
		Holds:    holds,
		Signer:   signer,
		Outbox:   outboxSvc,
		Receipts: receipts,
		Refunds:  receipts,
		Activity: auditSink,
		Logger:   logg,
		Currency: cfg.Checkout.Currency,
	})
	if err != nil {
		return routes.Params{}, err
	}
	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{Fulfiller: fulfiller, Logger: logg})
	if err != nil {
		return routes.Params{}, err
	}
	webhookManager, err := idempotency.NewManager(redisClient, cfg.Checkout.WebhookIdempotency)
	if err != nil {
		return routes.Params{}, err
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(webhookManager, stripewebhook.Consumer)
	if err != nil {
		return routes.Params{}, err
	}

	ticketSvc, err := tickets.NewService(tickets.ServiceParams{
		Tx:       dbClient,
		Repo:     tickets.NewRepository(conn),
		Verifier: signer,
		Outbox:   outboxSvc,
		Activity: auditSink,
		Metrics:  metrics.NewScanMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
	})
	if err != nil {
		return routes.Params{}, err
	}

	factory, err := eventdata.NewFactory(conn, logg)
	if err != nil {
		return routes.Params{}, err
	}
	notificationsSvc, err := notifications.NewService(notifications.ServiceParams{
		Repo: notificationsRepo,
		TicketLink: func(ticketID uuid.UUID) string {
			return publicURL + "/tickets/" + ticketID.String()
		},
	})
	if err != nil {
		return routes.Params{}, err
	}

	return routes.Params{
		Config: cfg,
		Logger: logg,
		Store:  redisClient,
		Ready: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		Checkout:      checkoutSvc,
		Tickets:       ticketSvc,
		Events:        eventdata.NewService(factory),
		Notifications: notificationsSvc,
		StripeWebhook: webhookSvc,
		StripeClient:  stripeClient,
		WebhookGuard:  webhookGuard,
	}, nil
}
