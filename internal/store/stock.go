package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stock-sync/internal/models"

	"github.com/jmoiron/sqlx"
)

const decrementStockQuery = `
	UPDATE products
	SET stock = stock - $1, version = version + 1, updated_at = NOW()
	WHERE id = $2 AND stock >= $1
	RETURNING id, stock, version`

// GetStock reads the committed stock of a product
func (s *Store) GetStock(ctx context.Context, productID int64) (*models.StockLevel, error) {
	var lvl models.StockLevel
	err := s.db.GetContext(ctx, &lvl, "SELECT id, stock, version FROM products WHERE id = $1", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", productID, models.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get stock", err)
	}
	return &lvl, nil
}

// TryDecrement takes quantity units in one conditional update.
// ok is false when the product is missing or holds fewer than quantity units.
func (s *Store) TryDecrement(ctx context.Context, productID int64, quantity int) (*models.StockLevel, bool, error) {
	return tryDecrement(ctx, s.db, productID, quantity)
}

func tryDecrement(ctx context.Context, q sqlx.QueryerContext, productID int64, quantity int) (*models.StockLevel, bool, error) {
	var lvl models.StockLevel
	err := sqlx.GetContext(ctx, q, &lvl, decrementStockQuery, quantity, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("decrement stock", err)
	}
	return &lvl, true, nil
}

// ApplyPurchase evaluates an intent exactly once.
// The applied-intent marker, the conditional decrement and the order status change commit
// together, so a redelivered intent is reported as a duplicate with its recorded outcome.
func (s *Store) ApplyPurchase(ctx context.Context, intent *models.PurchaseIntent) (*models.PurchaseResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin purchase", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO applied_intents (intent_id, product_id, outcome, stock)
		VALUES ($1, $2, $3, 0) ON CONFLICT (intent_id) DO NOTHING`,
		intent.IntentID, intent.ProductID, models.OrderStatusPending)
	if err != nil {
		return nil, unavailable("mark intent", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, unavailable("mark intent", err)
	}
	if inserted == 0 {
		var prior models.AppliedIntent
		err := tx.GetContext(ctx, &prior,
			"SELECT intent_id, product_id, outcome, stock, applied_at FROM applied_intents WHERE intent_id = $1",
			intent.IntentID)
		if err != nil {
			return nil, unavailable("read intent marker", err)
		}
		return &models.PurchaseResult{
			Outcome:   models.Outcome(prior.Outcome),
			Stock:     prior.Stock,
			Duplicate: true,
		}, nil
	}

	result := &models.PurchaseResult{}
	lvl, ok, err := tryDecrement(ctx, tx, intent.ProductID, intent.Quantity)
	if err != nil {
		return nil, err
	}

	orderStatus := models.OrderStatusApplied
	if ok {
		result.Outcome = models.OutcomeApplied
		result.Stock = lvl.Stock
		result.Version = lvl.Version
	} else {
		var current models.StockLevel
		err := tx.GetContext(ctx, &current, "SELECT id, stock, version FROM products WHERE id = $1", intent.ProductID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			result.Outcome = models.OutcomeNotFound
			orderStatus = models.OrderStatusFailed
		case err != nil:
			return nil, unavailable("read stock", err)
		default:
			result.Outcome = models.OutcomeInsufficientStock
			result.Stock = current.Stock
			result.Version = current.Version
			orderStatus = models.OrderStatusInsufficientStock
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE applied_intents SET outcome = $1, stock = $2 WHERE intent_id = $3",
		string(result.Outcome), result.Stock, intent.IntentID); err != nil {
		return nil, unavailable("record outcome", err)
	}

	if intent.ReceiptID != "" {
		if _, err := tx.ExecContext(ctx,
			"UPDATE orders SET status = $1, updated_at = NOW() WHERE receipt_id = $2",
			orderStatus, intent.ReceiptID); err != nil {
			return nil, unavailable("update order status", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit purchase", err)
	}
	return result, nil
}

// Restock adds quantity units to a product
func (s *Store) Restock(ctx context.Context, productID int64, quantity int) (*models.StockLevel, error) {
	var lvl models.StockLevel
	err := s.db.GetContext(ctx, &lvl,
		`UPDATE products SET stock = stock + $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 RETURNING id, stock, version`, quantity, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", productID, models.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("restock", err)
	}
	return &lvl, nil
}

// SetStock overwrites the stock of a product and returns the value it replaced
func (s *Store) SetStock(ctx context.Context, productID int64, stock int) (int, *models.StockLevel, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, nil, unavailable("begin set stock", err)
	}
	defer tx.Rollback()

	var previous int
	err = tx.GetContext(ctx, &previous, "SELECT stock FROM products WHERE id = $1 FOR UPDATE", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, fmt.Errorf("product %d: %w", productID, models.ErrNotFound)
	}
	if err != nil {
		return 0, nil, unavailable("lock stock", err)
	}

	var lvl models.StockLevel
	err = tx.GetContext(ctx, &lvl,
		`UPDATE products SET stock = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 RETURNING id, stock, version`, stock, productID)
	if err != nil {
		return 0, nil, unavailable("set stock", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, unavailable("commit set stock", err)
	}
	return previous, &lvl, nil
}
