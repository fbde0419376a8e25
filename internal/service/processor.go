package service

import (
	"context"
	"fmt"
	"time"

	"stock-sync/internal/models"
	"stock-sync/internal/util"

	"go.uber.org/zap"
)

// Processor applies purchase intents taken off the queue. It is the only
// code path that decrements stock.
type Processor struct {
	store     StockStore
	inventory *InventoryService
	logger    *zap.Logger
}

// NewProcessor creates a new purchase processor
func NewProcessor(store StockStore, inventory *InventoryService) *Processor {
	return &Processor{
		store:     store,
		inventory: inventory,
		logger:    util.GetLogger(),
	}
}

// Process evaluates one intent against the store. Insufficient stock and
// unknown products are terminal outcomes and return a nil error; a non-nil
// error means the store could not be reached and the intent must be retried.
func (p *Processor) Process(ctx context.Context, intent *models.PurchaseIntent) (models.Outcome, error) {
	ctx, span := util.StartSpan(ctx, "Processor.Process", intent.ProductID)
	defer span.End()

	start := time.Now()
	defer func() {
		util.IntentProcessLatency.Observe(time.Since(start).Seconds())
	}()

	log := p.logger.With(
		zap.String("intent_id", intent.IntentID),
		zap.String("receipt_id", intent.ReceiptID),
		zap.Int64("product_id", intent.ProductID),
		zap.Int("quantity", intent.Quantity))

	result, err := p.store.ApplyPurchase(ctx, intent)
	if err != nil {
		util.RecordError(span, err)
		log.Warn("Failed to apply purchase intent", zap.Error(err))
		return "", fmt.Errorf("apply intent %s: %w", intent.IntentID, err)
	}

	if result.Duplicate {
		util.IntentsProcessedTotal.WithLabelValues(string(models.OutcomeDuplicate)).Inc()
		log.Info("Purchase intent already applied, skipping",
			zap.String("previous_outcome", string(result.Outcome)))

		// an earlier delivery may have committed and died before the cache write
		if lvl, err := p.store.GetStock(ctx, intent.ProductID); err == nil {
			p.inventory.refreshCache(ctx, lvl)
		} else {
			log.Warn("Failed to re-read stock for duplicate intent", zap.Error(err))
		}
		return models.OutcomeDuplicate, nil
	}

	util.IntentsProcessedTotal.WithLabelValues(string(result.Outcome)).Inc()

	switch result.Outcome {
	case models.OutcomeApplied:
		log.Info("Purchase applied",
			zap.Int("stock", result.Stock),
			zap.Int64("version", result.Version))
		p.inventory.announce(ctx, &models.StockLevel{
			ProductID: intent.ProductID,
			Stock:     result.Stock,
			Version:   result.Version,
		}, -intent.Quantity, models.CausePurchase)
	case models.OutcomeInsufficientStock:
		log.Info("Purchase rejected, insufficient stock", zap.Int("stock", result.Stock))
	case models.OutcomeNotFound:
		log.Warn("Purchase rejected, unknown product")
	}

	return result.Outcome, nil
}

// Handle adapts Process to the queue consumer, which only needs the error
func (p *Processor) Handle(ctx context.Context, intent *models.PurchaseIntent) error {
	_, err := p.Process(ctx, intent)
	return err
}
