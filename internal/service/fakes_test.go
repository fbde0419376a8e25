package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"stock-sync/internal/models"
	"stock-sync/internal/redisclient"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/mock"
)

// memStore behaves like the Postgres store: one lock stands in for the row
// lock taken by the conditional update, and intent markers commit with it.
type memStore struct {
	mu       sync.Mutex
	products map[int64]*models.Product
	applied  map[string]models.PurchaseResult
	orders   map[string]*models.Order

	failApply int
	down      bool
}

func newMemStore(products ...models.Product) *memStore {
	s := &memStore{
		products: make(map[int64]*models.Product),
		applied:  make(map[string]models.PurchaseResult),
		orders:   make(map[string]*models.Order),
	}
	for i := range products {
		p := products[i]
		if p.Version == 0 {
			p.Version = 1
		}
		s.products[p.ID] = &p
	}
	return s
}

func (s *memStore) unavailable(op string) error {
	return fmt.Errorf("%s: %w", op, models.ErrUnavailable)
}

func (s *memStore) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *memStore) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, s.unavailable("get product")
	}
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetProducts(_ context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, s.unavailable("list products")
	}
	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	return out, nil
}

func (s *memStore) GetStock(_ context.Context, id int64) (*models.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, s.unavailable("get stock")
	}
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	return &models.StockLevel{ProductID: id, Stock: p.Stock, Version: p.Version}, nil
}

func (s *memStore) ApplyPurchase(_ context.Context, intent *models.PurchaseIntent) (*models.PurchaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, s.unavailable("apply purchase")
	}
	if s.failApply > 0 {
		s.failApply--
		return nil, s.unavailable("apply purchase")
	}

	if prior, ok := s.applied[intent.IntentID]; ok {
		prior.Duplicate = true
		return &prior, nil
	}

	result := models.PurchaseResult{}
	status := models.OrderStatusApplied
	p, ok := s.products[intent.ProductID]
	switch {
	case !ok:
		result.Outcome = models.OutcomeNotFound
		status = models.OrderStatusFailed
	case p.Stock >= intent.Quantity:
		p.Stock -= intent.Quantity
		p.Version++
		result = models.PurchaseResult{Outcome: models.OutcomeApplied, Stock: p.Stock, Version: p.Version}
	default:
		result = models.PurchaseResult{Outcome: models.OutcomeInsufficientStock, Stock: p.Stock, Version: p.Version}
		status = models.OrderStatusInsufficientStock
	}

	s.applied[intent.IntentID] = result
	if o, ok := s.orders[intent.ReceiptID]; ok {
		o.Status = status
	}
	return &result, nil
}

func (s *memStore) Restock(_ context.Context, id int64, quantity int) (*models.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, s.unavailable("restock")
	}
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	p.Stock += quantity
	p.Version++
	return &models.StockLevel{ProductID: id, Stock: p.Stock, Version: p.Version}, nil
}

func (s *memStore) SetStock(_ context.Context, id int64, stock int) (int, *models.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return 0, nil, s.unavailable("set stock")
	}
	p, ok := s.products[id]
	if !ok {
		return 0, nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	previous := p.Stock
	p.Stock = stock
	p.Version++
	return previous, &models.StockLevel{ProductID: id, Stock: p.Stock, Version: p.Version}, nil
}

func (s *memStore) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return s.unavailable("create order")
	}
	order.ID = int64(len(s.orders) + 1)
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	s.orders[order.ReceiptID] = &cp
	return nil
}

func (s *memStore) GetOrderByReceipt(_ context.Context, receiptID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[receiptID]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", receiptID, models.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) UpdateOrderStatus(_ context.Context, receiptID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[receiptID]
	if !ok {
		return fmt.Errorf("receipt %s: %w", receiptID, models.ErrNotFound)
	}
	o.Status = status
	return nil
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishStockChange(ctx context.Context, event *models.StockChangeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockPublisher) events() []*models.StockChangeEvent {
	var out []*models.StockChangeEvent
	for _, call := range m.Calls {
		out = append(out, call.Arguments.Get(1).(*models.StockChangeEvent))
	}
	return out
}

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) EnqueueIntent(ctx context.Context, intent *models.PurchaseIntent) error {
	args := m.Called(ctx, intent)
	return args.Error(0)
}

type fixture struct {
	store     *memStore
	cache     *redisclient.Client
	mr        *miniredis.Miniredis
	publisher *mockPublisher
	inventory *InventoryService
	processor *Processor
}

func newFixture(t *testing.T, products ...models.Product) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	f := &fixture{
		store:     newMemStore(products...),
		cache:     redisclient.NewClientFromRedis(rdb, 0),
		mr:        mr,
		publisher: &mockPublisher{},
	}
	f.publisher.On("PublishStockChange", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.inventory = NewInventoryService(f.store, f.cache, f.publisher, "replica-a")
	f.processor = NewProcessor(f.store, f.inventory)
	return f
}

func (f *fixture) cachedStock(t *testing.T, productID int64) (int, bool) {
	t.Helper()
	lvl, found, err := f.cache.GetStock(context.Background(), productID)
	if err != nil || !found {
		return 0, false
	}
	return lvl.Stock, true
}

func intent(id string, productID int64, quantity int) *models.PurchaseIntent {
	return &models.PurchaseIntent{
		IntentID:  id,
		ReceiptID: "r-" + id,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: time.Now(),
	}
}
