package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pos-service/config"
	"pos-service/internal/api"
	"pos-service/internal/auth"
	"pos-service/internal/broker"
	"pos-service/internal/lock"
	"pos-service/internal/redisclient"
	"pos-service/internal/service"
	"pos-service/internal/settings"
	"pos-service/internal/store"
	"pos-service/internal/store/memstore"
	"pos-service/internal/util"
	"pos-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	logger.Info("Starting pos service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer("pos-service", cfg.Observ.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	ctx := context.Background()
	checks := map[string]api.ReadinessCheck{}

	backend, err := openBackend(ctx, cfg, checks)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer backend.Close()

	var (
		locker lock.Locker = lock.NewKeyedMutex(cfg.Business.LockTimeout)
		cache  service.StockCache
	)
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()

		locker = lock.NewRedisLocker(redisClient, cfg.Business.LockTimeout, cfg.Redis.LockTTL)
		cache = redisClient
		checks["redis"] = redisClient.Ping
		logger.Info("Redis connected, using distributed order locks", zap.String("addr", cfg.Redis.Addr))
	}

	var producer broker.Publisher = broker.NewLogProducer()
	if cfg.Kafka.Enabled {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)

	registry := settings.NewRegistry(backend, time.Now)
	if err := registry.SeedDefaults(ctx); err != nil {
		logger.Fatal("Failed to seed settings", zap.Error(err))
	}

	inventory := service.NewInventoryLedger(backend, cache, cfg.Business.StockCacheTTL, nil)
	payments := service.NewPaymentLedger(nil)
	orderService := service.NewOrderService(backend, locker, inventory, payments, eventPublisher, nil)
	catalogService := service.NewCatalogService(backend, inventory, nil)
	commissions := service.NewCommissionCalculator(backend, locker, eventPublisher, cfg.Business.CommissionWorkers, nil)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	commissionWorker := worker.NewCommissionWorker(commissions, registry, cfg.Business.CommissionRate, cfg.Business.CommissionInterval, nil)
	go func() {
		if err := commissionWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Commission worker error", zap.Error(err))
		}
	}()

	var receiptWorker *worker.ReceiptWorker
	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		receiptWorker = worker.NewReceiptWorker(consumer, backend, registry, cfg.Business.ReceiptSpoolDir)
		go func() {
			if err := receiptWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Receipt worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Orders:                orderService,
		Catalog:               catalogService,
		Inventory:             inventory,
		Commissions:           commissions,
		Settings:              registry,
		Issuer:                auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, nil),
		DefaultCommissionRate: cfg.Business.CommissionRate,
	}, checks)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if receiptWorker != nil {
		if err := receiptWorker.Stop(); err != nil {
			logger.Error("Failed to stop receipt worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// openBackend returns the in-memory store for memory:// and Postgres otherwise
func openBackend(ctx context.Context, cfg *config.Config, checks map[string]api.ReadinessCheck) (store.Backend, error) {
	logger := util.GetLogger()

	if cfg.InMemory() {
		logger.Warn("Using in-memory store; data is lost on restart")
		return memstore.New(), nil
	}

	db, err := store.NewStore(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.LockTimeout)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	checks["postgres"] = db.GetDB().PingContext

	logger.Info("Database connected")
	return db, nil
}
