package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"stock-sync/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreFromDB wraps an existing connection pool
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Migrate creates the tables the pipeline needs
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		"SELECT id, name, price, stock, version, created_at, updated_at FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get product", err)
	}
	return &product, nil
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT id, name, price, stock, version, created_at, updated_at FROM products ORDER BY id")
	if err != nil {
		return nil, unavailable("list products", err)
	}
	return products, nil
}

// UpsertProduct inserts a product by name; an existing product keeps its stock
func (s *Store) UpsertProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, price, stock)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET price = EXCLUDED.price, updated_at = NOW()
		RETURNING id, stock, version, created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query, product.Name, product.Price, product.Stock)
	if err := row.Scan(&product.ID, &product.Stock, &product.Version, &product.CreatedAt, &product.UpdatedAt); err != nil {
		return unavailable("upsert product", err)
	}
	return nil
}

// unavailable tags an infrastructure failure as transient while keeping the cause
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrUnavailable, err)
}
