package models

import "time"

// Product represents a product in the catalog together with its authoritative stock
type Product struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	Stock     int       `db:"stock" json:"stock"`
	Version   int64     `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Order is the durable record behind a purchase receipt
type Order struct {
	ID               int64     `db:"id" json:"id"`
	ReceiptID        string    `db:"receipt_id" json:"receipt_id"`
	ProductID        int64     `db:"product_id" json:"product_id"`
	Quantity         int       `db:"quantity" json:"quantity"`
	Status           string    `db:"status" json:"status"`
	CorrelationToken string    `db:"correlation_token" json:"correlation_token,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending           = "PENDING"
	OrderStatusApplied           = "APPLIED"
	OrderStatusInsufficientStock = "INSUFFICIENT_STOCK"
	OrderStatusRejected          = "REJECTED"
	OrderStatusFailed            = "FAILED"
)

// Outcome is the terminal result of processing one purchase intent
type Outcome string

const (
	OutcomeApplied           Outcome = "APPLIED"
	OutcomeInsufficientStock Outcome = "INSUFFICIENT_STOCK"
	OutcomeNotFound          Outcome = "NOT_FOUND"
	OutcomeDuplicate         Outcome = "DUPLICATE"
)

// AppliedIntent marks an intent as handled so redelivery never mutates stock twice
type AppliedIntent struct {
	IntentID  string    `db:"intent_id"`
	ProductID int64     `db:"product_id"`
	Outcome   string    `db:"outcome"`
	Stock     int       `db:"stock"`
	AppliedAt time.Time `db:"applied_at"`
}

// PurchaseResult is what StockStore reports after evaluating an intent
type PurchaseResult struct {
	Outcome   Outcome
	Stock     int
	Version   int64
	Duplicate bool
}

// StockLevel is a committed stock value with the row version it was read at
type StockLevel struct {
	ProductID int64 `db:"id" json:"product_id"`
	Stock     int   `db:"stock" json:"stock"`
	Version   int64 `db:"version" json:"version"`
}
