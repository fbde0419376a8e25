package service

import (
	"context"
	"time"

	"stock-sync/internal/models"
)

// StockStore is the durable, authoritative owner of products and stock
type StockStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetStock(ctx context.Context, productID int64) (*models.StockLevel, error)
	ApplyPurchase(ctx context.Context, intent *models.PurchaseIntent) (*models.PurchaseResult, error)
	Restock(ctx context.Context, productID int64, quantity int) (*models.StockLevel, error)
	SetStock(ctx context.Context, productID int64, stock int) (int, *models.StockLevel, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByReceipt(ctx context.Context, receiptID string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, receiptID, status string) error
}

// StockCache mirrors committed stock for fast reads; it is never ground truth
type StockCache interface {
	GetStock(ctx context.Context, productID int64) (*models.StockLevel, bool, error)
	SetStock(ctx context.Context, lvl *models.StockLevel) (bool, error)
	GetProduct(ctx context.Context, productID int64) (*models.Product, bool, error)
	SetProduct(ctx context.Context, product *models.Product) error
}

// IdempotencyKeys deduplicates submissions carrying the same correlation token
type IdempotencyKeys interface {
	ClaimIdempotencyKey(ctx context.Context, token, receiptID string, ttl time.Duration) (string, bool, error)
	ConfirmIdempotencyKey(ctx context.Context, token string, ttl time.Duration) error
	ReleaseIdempotencyKey(ctx context.Context, token string) error
}

// IntentQueue is the ordered, durable channel purchase intents travel through
type IntentQueue interface {
	EnqueueIntent(ctx context.Context, intent *models.PurchaseIntent) error
}

// EventPublisher broadcasts stock changes to every replica
type EventPublisher interface {
	PublishStockChange(ctx context.Context, event *models.StockChangeEvent) error
}
