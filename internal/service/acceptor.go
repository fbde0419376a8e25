package service

import (
	"context"
	"fmt"
	"time"

	"stock-sync/internal/models"
	"stock-sync/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const pendingClaimTTL = 30 * time.Second

// SubmitRequest is a purchase request received from a client
type SubmitRequest struct {
	ProductID        int64  `json:"product_id" binding:"required"`
	Quantity         int    `json:"quantity" binding:"required"`
	CorrelationToken string `json:"correlation_token,omitempty"`
}

// Receipt acknowledges that a purchase intent was durably enqueued. It says
// nothing about whether stock will be available when the intent is applied.
type Receipt struct {
	ReceiptID  string    `json:"receipt_id"`
	ProductID  int64     `json:"product_id"`
	Quantity   int       `json:"quantity"`
	Status     string    `json:"status"`
	Duplicate  bool      `json:"duplicate,omitempty"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// AcceptorConfig holds the limits applied at accept time
type AcceptorConfig struct {
	MaxQuantity    int
	IdempotencyTTL time.Duration
}

// OrderAcceptor validates purchase requests and hands them to the queue
// without touching stock
type OrderAcceptor struct {
	store     StockStore
	inventory *InventoryService
	queue     IntentQueue
	keys      IdempotencyKeys
	cfg       AcceptorConfig
	logger    *zap.Logger
}

// NewOrderAcceptor creates a new order acceptor
func NewOrderAcceptor(store StockStore, inventory *InventoryService, queue IntentQueue, keys IdempotencyKeys, cfg AcceptorConfig) *OrderAcceptor {
	return &OrderAcceptor{
		store:     store,
		inventory: inventory,
		queue:     queue,
		keys:      keys,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// Submit validates the request, records a pending order and enqueues the intent
func (oa *OrderAcceptor) Submit(ctx context.Context, req *SubmitRequest) (*Receipt, error) {
	ctx, span := util.StartSpan(ctx, "OrderAcceptor.Submit", req.ProductID)
	defer span.End()

	if err := oa.validate(req); err != nil {
		util.PurchasesRejectedTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	// ids are assigned from 1, so a non-positive id names no product
	if req.ProductID <= 0 {
		util.PurchasesRejectedTotal.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("product %d: %w", req.ProductID, models.ErrNotFound)
	}

	if _, err := oa.inventory.GetProduct(ctx, req.ProductID); err != nil {
		util.RecordError(span, err)
		if IsNotFound(err) {
			util.PurchasesRejectedTotal.WithLabelValues("not_found").Inc()
		} else {
			util.PurchasesRejectedTotal.WithLabelValues("unavailable").Inc()
		}
		return nil, err
	}

	receiptID := uuid.New().String()

	if req.CorrelationToken != "" {
		existing, claimed, err := oa.keys.ClaimIdempotencyKey(ctx, req.CorrelationToken, receiptID, oa.pendingClaimTTL())
		if err != nil {
			util.PurchasesRejectedTotal.WithLabelValues("unavailable").Inc()
			return nil, err
		}
		if !claimed {
			oa.logger.Info("Duplicate purchase submission",
				zap.String("correlation_token", req.CorrelationToken),
				zap.String("receipt_id", existing))
			receipt, err := oa.existingReceipt(ctx, existing)
			if err != nil {
				util.PurchasesRejectedTotal.WithLabelValues("unavailable").Inc()
			}
			return receipt, err
		}
	}

	order := &models.Order{
		ReceiptID:        receiptID,
		ProductID:        req.ProductID,
		Quantity:         req.Quantity,
		Status:           models.OrderStatusPending,
		CorrelationToken: req.CorrelationToken,
	}
	if err := oa.store.CreateOrder(ctx, order); err != nil {
		util.RecordError(span, err)
		util.PurchasesRejectedTotal.WithLabelValues("unavailable").Inc()
		oa.releaseToken(ctx, req.CorrelationToken)
		return nil, err
	}

	intent := &models.PurchaseIntent{
		IntentID:         uuid.New().String(),
		ReceiptID:        receiptID,
		ProductID:        req.ProductID,
		Quantity:         req.Quantity,
		CorrelationToken: req.CorrelationToken,
		CreatedAt:        time.Now().UTC(),
	}
	if err := oa.queue.EnqueueIntent(ctx, intent); err != nil {
		util.RecordError(span, err)
		util.PurchasesRejectedTotal.WithLabelValues("unavailable").Inc()
		oa.logger.Error("Failed to enqueue purchase intent",
			zap.String("receipt_id", receiptID),
			zap.Int64("product_id", req.ProductID),
			zap.Error(err))

		if uerr := oa.store.UpdateOrderStatus(ctx, receiptID, models.OrderStatusRejected); uerr != nil {
			oa.logger.Error("Failed to mark order rejected",
				zap.String("receipt_id", receiptID),
				zap.Error(uerr))
		}
		oa.releaseToken(ctx, req.CorrelationToken)
		return nil, fmt.Errorf("enqueue purchase: %w", err)
	}

	if req.CorrelationToken != "" {
		if err := oa.keys.ConfirmIdempotencyKey(ctx, req.CorrelationToken, oa.cfg.IdempotencyTTL); err != nil {
			oa.logger.Warn("Failed to extend idempotency key",
				zap.String("correlation_token", req.CorrelationToken),
				zap.Error(err))
		}
	}

	util.PurchasesAcceptedTotal.Inc()
	oa.logger.Info("Purchase accepted",
		zap.String("receipt_id", receiptID),
		zap.String("intent_id", intent.IntentID),
		zap.Int64("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity))

	return &Receipt{
		ReceiptID:  receiptID,
		ProductID:  req.ProductID,
		Quantity:   req.Quantity,
		Status:     order.Status,
		AcceptedAt: intent.CreatedAt,
	}, nil
}

// GetReceipt returns the order recorded under a receipt, including its outcome
// once a worker has applied it
func (oa *OrderAcceptor) GetReceipt(ctx context.Context, receiptID string) (*models.Order, error) {
	if receiptID == "" {
		return nil, fmt.Errorf("receipt id is required: %w", models.ErrInvalidArgument)
	}
	return oa.store.GetOrderByReceipt(ctx, receiptID)
}

func (oa *OrderAcceptor) validate(req *SubmitRequest) error {
	if req.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive: %w", models.ErrInvalidArgument)
	}
	if oa.cfg.MaxQuantity > 0 && req.Quantity > oa.cfg.MaxQuantity {
		return fmt.Errorf("quantity exceeds limit of %d: %w", oa.cfg.MaxQuantity, models.ErrInvalidArgument)
	}
	return nil
}

// existingReceipt answers a duplicate submission from the order the token points at.
// A token without an order belongs to a submission still in flight, or one that
// died before recording it; the short pending claim lets the client retry either way.
func (oa *OrderAcceptor) existingReceipt(ctx context.Context, receiptID string) (*Receipt, error) {
	order, err := oa.store.GetOrderByReceipt(ctx, receiptID)
	if IsNotFound(err) {
		return nil, fmt.Errorf("submission for receipt %s still in progress: %w", receiptID, models.ErrUnavailable)
	}
	if err != nil {
		return nil, err
	}

	return &Receipt{
		ReceiptID:  receiptID,
		ProductID:  order.ProductID,
		Quantity:   order.Quantity,
		Status:     order.Status,
		Duplicate:  true,
		AcceptedAt: order.CreatedAt,
	}, nil
}

// pendingClaimTTL is how long a token is held before its submission is confirmed
func (oa *OrderAcceptor) pendingClaimTTL() time.Duration {
	if oa.cfg.IdempotencyTTL > 0 && oa.cfg.IdempotencyTTL < pendingClaimTTL {
		return oa.cfg.IdempotencyTTL
	}
	return pendingClaimTTL
}

func (oa *OrderAcceptor) releaseToken(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := oa.keys.ReleaseIdempotencyKey(ctx, token); err != nil {
		oa.logger.Warn("Failed to release idempotency key",
			zap.String("correlation_token", token),
			zap.Error(err))
	}
}
