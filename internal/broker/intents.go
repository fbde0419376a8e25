package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"stock-sync/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// IntentProcessor applies one purchase intent
type IntentProcessor func(ctx context.Context, intent *models.PurchaseIntent) error

// IntentHandler decodes purchase intents off the queue
type IntentHandler struct {
	process IntentProcessor
	logger  *zap.Logger
}

// NewIntentHandler creates a handler that forwards decoded intents to process
func NewIntentHandler(process IntentProcessor, logger *zap.Logger) *IntentHandler {
	return &IntentHandler{process: process, logger: logger}
}

// HandleMessage decodes and processes a queue message. Undecodable messages are
// reported as invalid so the consumer acknowledges them instead of retrying.
func (h *IntentHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var intent models.PurchaseIntent
	if err := json.Unmarshal(msg.Value, &intent); err != nil {
		return fmt.Errorf("failed to unmarshal purchase intent: %w: %w", models.ErrInvalidArgument, err)
	}
	if intent.IntentID == "" || intent.ProductID <= 0 || intent.Quantity <= 0 {
		return fmt.Errorf("malformed purchase intent at offset %d: %w", msg.Offset, models.ErrInvalidArgument)
	}

	h.logger.Debug("Handling purchase intent",
		zap.String("intent_id", intent.IntentID),
		zap.Int64("product_id", intent.ProductID),
		zap.Int("quantity", intent.Quantity))

	return h.process(ctx, &intent)
}
