package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stock-sync/internal/models"
)

// CreateOrder records an accepted purchase under its receipt id
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (receipt_id, product_id, quantity, status, correlation_token)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		order.ReceiptID, order.ProductID, order.Quantity, order.Status, order.CorrelationToken)
	if err := row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return unavailable("create order", err)
	}
	return nil
}

// GetOrderByReceipt retrieves an order by its receipt id
func (s *Store) GetOrderByReceipt(ctx context.Context, receiptID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		`SELECT id, receipt_id, product_id, quantity, status, correlation_token, created_at, updated_at
		FROM orders WHERE receipt_id = $1`, receiptID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt %s: %w", receiptID, models.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get order", err)
	}
	return &order, nil
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, receiptID, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE receipt_id = $2",
		status, receiptID)
	if err != nil {
		return unavailable("update order status", err)
	}
	return nil
}
