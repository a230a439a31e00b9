package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RaikyD/bookstore-orders-service/internal/application"
	"github.com/RaikyD/bookstore-orders-service/internal/config"
	"github.com/RaikyD/bookstore-orders-service/internal/gateway"
	"github.com/RaikyD/bookstore-orders-service/internal/kafka"
	"github.com/RaikyD/bookstore-orders-service/internal/logger"
	"github.com/RaikyD/bookstore-orders-service/internal/migrate"
	"github.com/RaikyD/bookstore-orders-service/internal/presentation"
	"github.com/RaikyD/bookstore-orders-service/internal/repository"
	"github.com/RaikyD/bookstore-orders-service/internal/repository/memory"
	"github.com/RaikyD/bookstore-orders-service/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	logger.Init()
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Warn("config load failed", "err", err)
		os.Exit(1)
	}
	logger.InitWith(cfg.APP_ENV, cfg.LOG_LEVEL)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTEL_EXPORTER_OTLP_ENDPOINT, cfg.SERVICE_NAME)
	if err != nil {
		logger.Warn("tracer init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	shutdownMeter, err := telemetry.InitMeter(ctx, cfg.OTEL_EXPORTER_OTLP_ENDPOINT, cfg.SERVICE_NAME)
	if err != nil {
		logger.Warn("meter init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownMeter(sctx)
	}()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Warn("storage init failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	gw := gateway.NewRazorpay(gateway.Config{
		KeyID:         cfg.RAZORPAY_KEY_ID,
		KeySecret:     cfg.RAZORPAY_KEY_SECRET,
		WebhookSecret: cfg.RAZORPAY_WEBHOOK_SECRET,
		BaseURL:       cfg.RAZORPAY_BASE_URL,
		Timeout:       cfg.GATEWAY_TIMEOUT,
	})

	opts := []application.Option{application.WithCurrency(cfg.CURRENCY)}
	brokers := cfg.Brokers()
	if len(brokers) > 0 {
		prod := kafka.NewProducer(brokers, cfg.KAFKA_TOPIC)
		defer prod.Close()
		opts = append(opts, application.WithPublisher(prod))
	}

	svc := application.NewOrdersService(store, gw, opts...)
	hooks := application.NewWebhookReconciler(svc)

	// webhooks forwarded through kafka by the edge relay, same contract as the HTTP route
	if len(brokers) > 0 && cfg.KAFKA_WEBHOOK_TOPIC != "" {
		reader, err := kafka.StartWebhookConsumer(ctx, hooks, kafka.ConsumerConfig{
			Brokers: brokers,
			Topic:   cfg.KAFKA_WEBHOOK_TOPIC,
			GroupID: cfg.KAFKA_GROUP_ID,
		})
		if err != nil {
			logger.Warn("webhook consumer start failed", "err", err)
			os.Exit(1)
		}
		defer reader.Close()
	}

	application.NewPendingSweeper(svc, cfg.PENDING_ORDER_TTL, cfg.SWEEP_INTERVAL).Start(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	presentation.NewOrdersHandler(svc, hooks, presentation.HandlerConfig{
		AdminKey:      cfg.ADMIN_API_KEY,
		RazorpayKeyID: cfg.RAZORPAY_KEY_ID,
	}).Register(r)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP_PORT,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting http", "addr", srv.Addr, "storage", cfg.STORAGE_DRIVER)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server crashed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown failed", "err", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	if cfg.STORAGE_DRIVER == config.DriverMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	if err := migrate.Up(cfg.DB_STRING); err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DB_STRING)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("db connected")
	return repository.NewPostgresStore(pool), pool.Close, nil
}
