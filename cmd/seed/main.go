package main

import (
	"context"
	"log"

	"stock-sync/config"
	"stock-sync/internal/models"
	"stock-sync/internal/redisclient"
	"stock-sync/internal/service"
	"stock-sync/internal/store"
	"stock-sync/internal/util"

	"go.uber.org/zap"
)

var sampleProducts = []models.Product{
	{Name: "Laptop Pro 14", Stock: 20, Price: 149900},
	{Name: "Wireless Mouse", Stock: 150, Price: 2499},
	{Name: "Mechanical Keyboard", Stock: 80, Price: 8999},
	{Name: "USB-C Hub", Stock: 120, Price: 3999},
	{Name: "Noise-cancelling Headphones", Stock: 35, Price: 19999},
	{Name: "4K Monitor 27\"", Stock: 25, Price: 32999},
	{Name: "Portable SSD 1TB", Stock: 60, Price: 9999},
	{Name: "Smartphone Charger 65W", Stock: 200, Price: 1999},
	{Name: "Webcam 1080p", Stock: 75, Price: 4999},
	{Name: "Bluetooth Speaker", Stock: 40, Price: 5999},
}

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.ReplicaID); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()
	logger := util.GetLogger()

	ctx := context.Background()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}

	for i := range sampleProducts {
		p := &sampleProducts[i]
		if err := db.UpsertProduct(ctx, p); err != nil {
			logger.Fatal("Failed to seed product", zap.String("name", p.Name), zap.Error(err))
		}
		logger.Info("Seeded product",
			zap.Int64("product_id", p.ID),
			zap.String("name", p.Name),
			zap.Int("stock", p.Stock))
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.StockTTL)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	eventBus := redisclient.NewEventBus(redisClient, cfg.Redis.StockChannel, logger)
	inventory := service.NewInventoryService(db, redisClient, eventBus, cfg.Server.ReplicaID)
	if err := inventory.SyncInventoryToRedis(ctx); err != nil {
		logger.Fatal("Failed to warm cache", zap.Error(err))
	}

	logger.Info("Seed complete", zap.Int("products", len(sampleProducts)))
}
