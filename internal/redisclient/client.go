package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"stock-sync/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/set_stock.lua
var setStockScript string

type Client struct {
	rdb            *redis.Client
	setStockScript *redis.Script
	stockTTL       time.Duration
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int, stockTTL time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewClientFromRedis(rdb, stockTTL), nil
}

// NewClientFromRedis wraps an already configured go-redis client
func NewClientFromRedis(rdb *redis.Client, stockTTL time.Duration) *Client {
	return &Client{
		rdb:            rdb,
		setStockScript: redis.NewScript(setStockScript),
		stockTTL:       stockTTL,
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks that Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w: %w", models.ErrUnavailable, err)
	}
	return nil
}

func stockKey(productID int64) string {
	return fmt.Sprintf("product:%d:stock", productID)
}

func stockVersionKey(productID int64) string {
	return fmt.Sprintf("product:%d:stock:version", productID)
}

func productKey(productID int64) string {
	return fmt.Sprintf("product:%d:data", productID)
}

func idempotencyKey(token string) string {
	return fmt.Sprintf("idempotency:%s", token)
}

// GetStock returns the cached stock; found is false on a cache miss
func (c *Client) GetStock(ctx context.Context, productID int64) (*models.StockLevel, bool, error) {
	result, err := c.rdb.HGetAll(ctx, stockKey(productID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("get cached stock: %w: %w", models.ErrUnavailable, err)
	}
	if len(result) == 0 {
		return nil, false, nil
	}

	stock, err := strconv.Atoi(result["stock"])
	if err != nil {
		return nil, false, nil
	}
	version, _ := strconv.ParseInt(result["version"], 10, 64)

	return &models.StockLevel{ProductID: productID, Stock: stock, Version: version}, true, nil
}

// SetStock overwrites the cached stock with a committed store value.
// Returns false when the cache already holds a newer version.
func (c *Client) SetStock(ctx context.Context, lvl *models.StockLevel) (bool, error) {
	result, err := c.setStockScript.Run(ctx, c.rdb,
		[]string{stockKey(lvl.ProductID), stockVersionKey(lvl.ProductID)},
		lvl.Stock, lvl.Version, c.stockTTL.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("set stock script failed: %w: %w", models.ErrUnavailable, err)
	}

	written, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return written == 1, nil
}

// GetProduct returns the cached product catalog entry
func (c *Client) GetProduct(ctx context.Context, productID int64) (*models.Product, bool, error) {
	raw, err := c.rdb.Get(ctx, productKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached product: %w: %w", models.ErrUnavailable, err)
	}

	var product models.Product
	if err := json.Unmarshal(raw, &product); err != nil {
		return nil, false, nil
	}
	return &product, true, nil
}

// SetProduct caches the catalog entry of a product
func (c *Client) SetProduct(ctx context.Context, product *models.Product) error {
	raw, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("failed to marshal product: %w", err)
	}
	if err := c.rdb.Set(ctx, productKey(product.ID), raw, c.stockTTL).Err(); err != nil {
		return fmt.Errorf("set cached product: %w: %w", models.ErrUnavailable, err)
	}
	return nil
}

// ClaimIdempotencyKey binds token to receiptID unless another receipt already holds it.
// When the token is taken the existing receipt id is returned with claimed=false.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, token, receiptID string, ttl time.Duration) (string, bool, error) {
	key := idempotencyKey(token)

	claimed, err := c.rdb.SetNX(ctx, key, receiptID, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("claim idempotency key: %w: %w", models.ErrUnavailable, err)
	}
	if claimed {
		return receiptID, true, nil
	}

	existing, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", false, fmt.Errorf("read idempotency key: %w: %w", models.ErrUnavailable, err)
	}
	return existing, false, nil
}

// ConfirmIdempotencyKey keeps a claimed token for ttl once its submission was enqueued.
// A zero ttl keeps it without expiry.
func (c *Client) ConfirmIdempotencyKey(ctx context.Context, token string, ttl time.Duration) error {
	key := idempotencyKey(token)
	var err error
	if ttl > 0 {
		err = c.rdb.Expire(ctx, key, ttl).Err()
	} else {
		err = c.rdb.Persist(ctx, key).Err()
	}
	if err != nil {
		return fmt.Errorf("confirm idempotency key: %w: %w", models.ErrUnavailable, err)
	}
	return nil
}

// ReleaseIdempotencyKey frees a token whose submission did not go through
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, token string) error {
	return c.rdb.Del(ctx, idempotencyKey(token)).Err()
}
