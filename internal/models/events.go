package models

import "time"

// Stock change causes
const (
	CausePurchase   = "purchase"
	CauseRestock    = "restock"
	CauseCorrection = "correction"
)

// AllProducts is the subscription interest that matches every product
const AllProducts int64 = 0

// PurchaseIntent is the queue payload carried from an acceptor to a worker
type PurchaseIntent struct {
	IntentID         string    `json:"intent_id"`
	ReceiptID        string    `json:"receipt_id"`
	ProductID        int64     `json:"product_id"`
	Quantity         int       `json:"quantity"`
	CorrelationToken string    `json:"correlation_token,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// StockChangeEvent is broadcast to every replica after a committed mutation
type StockChangeEvent struct {
	EventID   string    `json:"event_id"`
	ProductID int64     `json:"product_id"`
	NewStock  int       `json:"new_stock"`
	Delta     int       `json:"delta"`
	Cause     string    `json:"cause"`
	Version   int64     `json:"version"`
	Origin    string    `json:"origin,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Matches reports whether a subscriber with the given interest should see the event
func (e *StockChangeEvent) Matches(interest int64) bool {
	return interest == AllProducts || interest == e.ProductID
}
