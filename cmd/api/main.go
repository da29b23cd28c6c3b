package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bidhaaline/fulfillment/internal/cart"
	"github.com/bidhaaline/fulfillment/internal/catalog"
	"github.com/bidhaaline/fulfillment/internal/config"
	"github.com/bidhaaline/fulfillment/internal/httpx"
	kafkax "github.com/bidhaaline/fulfillment/internal/kafka"
	"github.com/bidhaaline/fulfillment/internal/metrics"
	"github.com/bidhaaline/fulfillment/internal/mpesa"
	"github.com/bidhaaline/fulfillment/internal/orders"
	"github.com/bidhaaline/fulfillment/internal/payments"
	"github.com/bidhaaline/fulfillment/internal/postgres"
	"github.com/bidhaaline/fulfillment/internal/redisx"
	"github.com/bidhaaline/fulfillment/internal/tracking"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer (shared, topic per message)
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(ctx)

	// Metrics
	m, metricsHandler := metrics.Default()

	// Repos
	cartRepo := &cart.Repo{DB: db}
	catalogRepo := &catalog.Repo{DB: db}
	trackingRepo := &tracking.Repo{DB: db}
	orderRepo := &orders.Repo{DB: db, Cart: cartRepo}
	paymentRepo := &payments.Repo{DB: db}

	// Gateway + payment services
	gateway := mpesa.NewClient(cfg.Mpesa)
	initiator := &payments.Initiator{
		Orders:  orderRepo,
		Store:   paymentRepo,
		Gateway: gateway,
		Redis:   rdb,
		Metrics: m,
		Log:     log,
	}
	reconciler := &payments.Reconciler{
		Store:    paymentRepo,
		Redis:    rdb,
		Producer: prod,
		Metrics:  m,
		Log:      log,
		Service:  cfg.ServiceName,
	}

	// HTTP
	router := httpx.NewRouter(log, metricsHandler)
	(&httpx.OrdersHandler{
		Store: orderRepo, Producer: prod, Redis: rdb,
		Metrics: m, Log: log, Service: cfg.ServiceName,
	}).Register(router)
	(&httpx.CartHandler{Store: cartRepo, Log: log}).Register(router)
	(&httpx.ProductsHandler{Store: catalogRepo}).Register(router)
	(&httpx.PaymentsHandler{
		Initiator: initiator, Reconciler: reconciler,
		Store: paymentRepo, Orders: orderRepo, Gateway: gateway, Log: log,
	}).Register(router)
	(&httpx.TrackingHandler{Orders: orderRepo, Tracking: trackingRepo, Redis: rdb}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close() // stop intake, flush buffered events
	cancel()
	prod.WaitClosed()
}
