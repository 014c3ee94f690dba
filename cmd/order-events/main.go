package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-settlement/internal/config"
	"github.com/ariefcatur/go-order-settlement/internal/inventory"
	kafkax "github.com/ariefcatur/go-order-settlement/internal/kafka"
	"github.com/ariefcatur/go-order-settlement/internal/logx"
	"github.com/ariefcatur/go-order-settlement/internal/orderevents"
	"github.com/ariefcatur/go-order-settlement/internal/orders"
	"github.com/ariefcatur/go-order-settlement/internal/payments"
	"github.com/ariefcatur/go-order-settlement/internal/postgres"
	"github.com/ariefcatur/go-order-settlement/internal/redisx"
	"github.com/ariefcatur/go-order-settlement/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logx.New(cfg.LogLevel, cfg.AppEnv, cfg.ServiceName+"-order-events")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.SetupTracer(ctx, telemetry.Options{
		Enabled:     cfg.OtelEnabled,
		ServiceName: cfg.ServiceName + "-order-events",
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

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Confirmed orders are re-announced on the lifecycle topic.
	lifecycle := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderLifecycle, 1024, logger)
	lifecycle.Start(ctx)

	ledger := inventory.NewLedger(db, logger.Named("inventory"))
	orderSvc := &orders.Service{
		Store:       &orders.Repo{DB: db, Ledger: ledger, Log: logger.Named("orders")},
		Redis:       rdb,
		Events:      lifecycle,
		Log:         logger.Named("orders"),
		ServiceName: cfg.ServiceName + "-order-events",
	}
	h := &orderevents.Handler{
		Orders: payments.NewDirectNotifier(orderSvc, logger.Named("notifier")),
		Redis:  rdb,
		Log:    logger.Named("order-events"),
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.OrderEventsGroup, payments.TopicPaymentSettled, cfg.OrderEventsWorkers, logger)
	go func() {
		logger.Info("order-events consumer started",
			zap.String("group", cfg.OrderEventsGroup),
			zap.String("topic", payments.TopicPaymentSettled),
			zap.Int("workers", cfg.OrderEventsWorkers))
		if err := cons.Start(ctx, h.Handle); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
	lifecycle.Close()
	lifecycle.WaitClosed()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := shutdownTracer(ctx2); err != nil {
		logger.Warn("tracer shutdown", zap.Error(err))
	}
}
