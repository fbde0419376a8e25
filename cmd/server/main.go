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

	"stock-sync/config"
	"stock-sync/internal/api"
	"stock-sync/internal/broker"
	"stock-sync/internal/redisclient"
	"stock-sync/internal/service"
	"stock-sync/internal/store"
	"stock-sync/internal/stream"
	"stock-sync/internal/util"
	"stock-sync/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.ReplicaID); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting stock sync service")

	tp, err := util.InitTracer("stock-sync", cfg.Server.ReplicaID, cfg.Observ.JaegerEndpoint)
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

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.StockTTL)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	eventBus := redisclient.NewEventBus(redisClient, cfg.Redis.StockChannel, logger)

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPurchases, cfg.Kafka.BatchTimeout)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	inventory := service.NewInventoryService(db, redisClient, eventBus, cfg.Server.ReplicaID)
	processor := service.NewProcessor(db, inventory)
	acceptor := service.NewOrderAcceptor(db, inventory, producer, redisClient, service.AcceptorConfig{
		MaxQuantity:    cfg.Business.MaxPurchaseQuantity,
		IdempotencyTTL: cfg.Business.IdempotencyTTL,
	})

	if err := inventory.SyncInventoryToRedis(ctx); err != nil {
		logger.Error("Failed to sync inventory to Redis", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	retry := broker.RetryPolicy{
		Initial:  cfg.Worker.RetryInitial,
		Max:      cfg.Worker.RetryMax,
		Attempts: cfg.Worker.RetryAttempts,
	}
	newConsumer := func() worker.IntentConsumer {
		return broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPurchases, cfg.Kafka.ConsumerGroup, retry)
	}
	workers := worker.NewPool(cfg.Kafka.Consumers, newConsumer, processor.Handle, cfg.Worker.RedeliveryDelay)
	workers.Start(workerCtx)
	logger.Info("Order workers started", zap.Int("count", workers.Size()))

	broadcaster := stream.NewBroadcaster(eventBus, cfg.Stream.BufferSize)
	broadcasterDone := make(chan struct{})
	go func() {
		defer close(broadcasterDone)
		if err := broadcaster.Run(workerCtx); err != nil {
			logger.Error("Stream broadcaster stopped", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(acceptor, inventory, broadcaster,
		api.StreamOptions{
			KeepAlive: cfg.Stream.KeepAlive,
			RetryMs:   cfg.Stream.RetryMs,
		},
		map[string]api.Pinger{
			"database": db,
			"redis":    redisClient,
		})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
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

	// ending the broadcaster first releases streaming handlers so Shutdown can drain
	workerCancel()
	<-broadcasterDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workers.Stop()

	logger.Info("Server exited")
}
