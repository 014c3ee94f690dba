package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement/internal/config"
	"github.com/ariefcatur/go-order-settlement/internal/gateway/razorpaygw"
	"github.com/ariefcatur/go-order-settlement/internal/gateway/stripegw"
	"github.com/ariefcatur/go-order-settlement/internal/httpx"
	"github.com/ariefcatur/go-order-settlement/internal/inventory"
	kafkax "github.com/ariefcatur/go-order-settlement/internal/kafka"
	"github.com/ariefcatur/go-order-settlement/internal/logx"
	"github.com/ariefcatur/go-order-settlement/internal/orders"
	"github.com/ariefcatur/go-order-settlement/internal/payments"
	"github.com/ariefcatur/go-order-settlement/internal/postgres"
	"github.com/ariefcatur/go-order-settlement/internal/redisx"
	"github.com/ariefcatur/go-order-settlement/internal/telemetry"
	"github.com/ariefcatur/go-order-settlement/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logx.New(cfg.LogLevel, cfg.AppEnv, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.SetupTracer(ctx, telemetry.Options{
		Enabled:     cfg.OtelEnabled,
		ServiceName: cfg.ServiceName,
		Environment: cfg.AppEnv,
		Endpoint:    cfg.OtelEndpoint,
		SampleRatio: cfg.OtelSample,
	})
	if err != nil {
		logger.Fatal("tracer setup", zap.Error(err))
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers: order lifecycle and payment outcomes
	lifecycle := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderLifecycle, 1024, logger)
	lifecycle.Start(ctx)
	settled := kafkax.NewProducer(cfg.KafkaBrokers, payments.TopicPaymentSettled, 1024, logger)
	settled.Start(ctx)

	// Orders & inventory
	ledger := inventory.NewLedger(db, logger.Named("inventory"))
	orderSvc := &orders.Service{
		Store:       &orders.Repo{DB: db, Ledger: ledger, Log: logger.Named("orders")},
		Redis:       rdb,
		Events:      lifecycle,
		Log:         logger.Named("orders"),
		ServiceName: cfg.ServiceName,
	}

	// Gateways are only registered when their credentials are configured.
	gateways := map[string]payments.Gateway{}
	var verifiers []webhook.Verifier
	if cfg.StripeSecretKey != "" {
		gateways[stripegw.Name] = stripegw.New(cfg.StripeSecretKey, "", logger)
	}
	if cfg.StripeWebhookSecret != "" {
		verifiers = append(verifiers, webhook.NewStripeVerifier(cfg.StripeWebhookSecret))
	}
	if cfg.RazorpayKeyID != "" {
		gateways[razorpaygw.Name] = razorpaygw.New(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	}
	if cfg.RazorpayWebhookSecret != "" {
		verifiers = append(verifiers, &webhook.RazorpayVerifier{Secret: cfg.RazorpayWebhookSecret})
	}
	if len(gateways) == 0 {
		logger.Warn("no payment gateway configured; payment creation will fail")
	}

	var notifier payments.OrderNotifier = payments.NewDirectNotifier(orderSvc, logger.Named("notifier"))
	if cfg.OrderNotifyMode == "kafka" {
		notifier = &payments.KafkaNotifier{Events: settled, ServiceName: cfg.ServiceName}
	}
	paySvc := &payments.Service{
		Store:          &payments.Repo{DB: db},
		Orders:         orderSvc,
		Gateways:       gateways,
		Notifier:       notifier,
		DefaultGateway: cfg.DefaultGateway,
		Currency:       cfg.Currency,
		Log:            logger.Named("payments"),
	}

	router := httpx.NewRouter(logger.Named("http"),
		&httpx.OrdersHandler{Service: orderSvc, Log: logger.Named("http")},
		&httpx.InventoryHandler{Ledger: ledger, Log: logger.Named("http")},
		&httpx.PaymentsHandler{Service: paySvc, Log: logger.Named("http")},
		webhook.NewHandler(paySvc, rdb, logger.Named("webhook"), verifiers...),
	)

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("notify_mode", cfg.OrderNotifyMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	lifecycle.Close()
	settled.Close()
	lifecycle.WaitClosed()
	settled.WaitClosed()
	cancel()
	if err := shutdownTracer(ctx2); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}
}
