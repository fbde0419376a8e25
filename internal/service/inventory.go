package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-sync/internal/models"
	"stock-sync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InventoryService owns every stock mutation outside the purchase pipeline
// and the read-through path used by request handlers
type InventoryService struct {
	store     StockStore
	cache     StockCache
	publisher EventPublisher
	origin    string
	logger    *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store StockStore, cache StockCache, publisher EventPublisher, origin string) *InventoryService {
	return &InventoryService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		origin:    origin,
		logger:    util.GetLogger(),
	}
}

// GetProduct returns catalog data, from the cache when possible
func (is *InventoryService) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	if product, found, err := is.cache.GetProduct(ctx, productID); err == nil && found {
		return product, nil
	}

	product, err := is.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if err := is.cache.SetProduct(ctx, product); err != nil {
		is.logger.Warn("Failed to cache product",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
	return product, nil
}

// ListProducts returns the catalog straight from the store
func (is *InventoryService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return is.store.GetProducts(ctx)
}

// GetStock reads the cache and falls back to the store on a miss or cache failure,
// repopulating the cache with the committed value
func (is *InventoryService) GetStock(ctx context.Context, productID int64) (*models.StockLevel, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.GetStock", productID)
	defer span.End()

	lvl, found, err := is.cache.GetStock(ctx, productID)
	switch {
	case err != nil:
		util.CacheLookupsTotal.WithLabelValues("error").Inc()
		is.logger.Warn("Stock cache unavailable, reading store",
			zap.Int64("product_id", productID),
			zap.Error(err))
	case found:
		util.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return lvl, nil
	default:
		util.CacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	lvl, err = is.store.GetStock(ctx, productID)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	is.refreshCache(ctx, lvl)
	return lvl, nil
}

// Restock adds units to a product and announces the new level
func (is *InventoryService) Restock(ctx context.Context, productID int64, quantity int) (*models.StockChangeEvent, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Restock", productID)
	defer span.End()

	if quantity <= 0 {
		return nil, fmt.Errorf("restock quantity must be positive: %w", models.ErrInvalidArgument)
	}

	lvl, err := is.store.Restock(ctx, productID, quantity)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	is.logger.Info("Product restocked",
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int("stock", lvl.Stock))

	return is.announce(ctx, lvl, quantity, models.CauseRestock), nil
}

// SetStock corrects the stock of a product to an absolute value
func (is *InventoryService) SetStock(ctx context.Context, productID int64, stock int) (*models.StockChangeEvent, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.SetStock", productID)
	defer span.End()

	if stock < 0 {
		return nil, fmt.Errorf("stock must not be negative: %w", models.ErrInvalidArgument)
	}

	previous, lvl, err := is.store.SetStock(ctx, productID, stock)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	is.logger.Info("Product stock corrected",
		zap.Int64("product_id", productID),
		zap.Int("previous", previous),
		zap.Int("stock", lvl.Stock))

	return is.announce(ctx, lvl, lvl.Stock-previous, models.CauseCorrection), nil
}

// SyncInventoryToRedis overwrites the cache with the stock of every product
func (is *InventoryService) SyncInventoryToRedis(ctx context.Context) error {
	is.logger.Info("Starting inventory sync to Redis")

	products, err := is.store.GetProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to get products: %w", err)
	}

	for i := range products {
		product := &products[i]
		if err := is.cache.SetProduct(ctx, product); err != nil {
			is.logger.Error("Failed to cache product",
				zap.Int64("product_id", product.ID),
				zap.Error(err))
			continue
		}
		is.refreshCache(ctx, &models.StockLevel{
			ProductID: product.ID,
			Stock:     product.Stock,
			Version:   product.Version,
		})
	}

	is.logger.Info("Inventory sync completed", zap.Int("count", len(products)))
	return nil
}

// announce writes the committed level to the cache and publishes the change.
// Neither failure is returned: the store mutation is already durable.
func (is *InventoryService) announce(ctx context.Context, lvl *models.StockLevel, delta int, cause string) *models.StockChangeEvent {
	is.refreshCache(ctx, lvl)

	event := &models.StockChangeEvent{
		EventID:   uuid.New().String(),
		ProductID: lvl.ProductID,
		NewStock:  lvl.Stock,
		Delta:     delta,
		Cause:     cause,
		Version:   lvl.Version,
		Origin:    is.origin,
		Timestamp: time.Now().UTC(),
	}

	if err := is.publisher.PublishStockChange(ctx, event); err != nil {
		util.BusPublishFailuresTotal.Inc()
		is.logger.Error("Failed to publish stock change",
			zap.Int64("product_id", lvl.ProductID),
			zap.String("cause", cause),
			zap.Error(err))
		return event
	}

	util.StockEventsPublishedTotal.WithLabelValues(cause).Inc()
	return event
}

// refreshCache overwrites the cached stock with a committed store value
func (is *InventoryService) refreshCache(ctx context.Context, lvl *models.StockLevel) {
	written, err := is.cache.SetStock(ctx, lvl)
	if err != nil {
		util.CacheWriteFailuresTotal.Inc()
		is.logger.Error("Failed to write stock cache",
			zap.Int64("product_id", lvl.ProductID),
			zap.Int("stock", lvl.Stock),
			zap.Error(err))
		return
	}
	if !written {
		is.logger.Debug("Stock cache already holds a newer version",
			zap.Int64("product_id", lvl.ProductID),
			zap.Int64("version", lvl.Version))
	}
}

// IsNotFound reports whether err means the product or receipt does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
