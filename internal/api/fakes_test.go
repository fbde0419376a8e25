package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stock-sync/internal/models"
)

type memStore struct {
	mu       sync.Mutex
	products map[int64]*models.Product
	applied  map[string]models.PurchaseResult
	orders   map[string]*models.Order
}

func newMemStore(products ...models.Product) *memStore {
	s := &memStore{
		products: make(map[int64]*models.Product),
		applied:  make(map[string]models.PurchaseResult),
		orders:   make(map[string]*models.Order),
	}
	for i := range products {
		p := products[i]
		p.Version = 1
		s.products[p.ID] = &p
	}
	return s
}

func notFound(id interface{}) error {
	return fmt.Errorf("%v: %w", id, models.ErrNotFound)
}

func (s *memStore) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, notFound(id)
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetProducts(_ context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Product
	for id := int64(1); id <= int64(len(s.products)); id++ {
		if p, ok := s.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memStore) GetStock(_ context.Context, id int64) (*models.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, notFound(id)
	}
	return &models.StockLevel{ProductID: id, Stock: p.Stock, Version: p.Version}, nil
}

func (s *memStore) ApplyPurchase(_ context.Context, intent *models.PurchaseIntent) (*models.PurchaseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prior, ok := s.applied[intent.IntentID]; ok {
		prior.Duplicate = true
		return &prior, nil
	}
	p, ok := s.products[intent.ProductID]
	var result models.PurchaseResult
	switch {
	case !ok:
		result.Outcome = models.OutcomeNotFound
	case p.Stock >= intent.Quantity:
		p.Stock -= intent.Quantity
		p.Version++
		result = models.PurchaseResult{Outcome: models.OutcomeApplied, Stock: p.Stock, Version: p.Version}
	default:
		result = models.PurchaseResult{Outcome: models.OutcomeInsufficientStock, Stock: p.Stock, Version: p.Version}
	}
	s.applied[intent.IntentID] = result
	if o, ok := s.orders[intent.ReceiptID]; ok {
		o.Status = string(result.Outcome)
	}
	return &result, nil
}

func (s *memStore) Restock(_ context.Context, id int64, quantity int) (*models.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, notFound(id)
	}
	p.Stock += quantity
	p.Version++
	return &models.StockLevel{ProductID: id, Stock: p.Stock, Version: p.Version}, nil
}

func (s *memStore) SetStock(_ context.Context, id int64, stock int) (int, *models.StockLevel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return 0, nil, notFound(id)
	}
	previous := p.Stock
	p.Stock = stock
	p.Version++
	return previous, &models.StockLevel{ProductID: id, Stock: p.Stock, Version: p.Version}, nil
}

func (s *memStore) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order.ID = int64(len(s.orders) + 1)
	order.CreatedAt = time.Now()
	cp := *order
	s.orders[order.ReceiptID] = &cp
	return nil
}

func (s *memStore) GetOrderByReceipt(_ context.Context, receiptID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[receiptID]
	if !ok {
		return nil, notFound(receiptID)
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) UpdateOrderStatus(_ context.Context, receiptID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[receiptID]
	if !ok {
		return notFound(receiptID)
	}
	o.Status = status
	return nil
}

// chanQueue hands enqueued intents to the test instead of a broker
type chanQueue struct {
	intents chan *models.PurchaseIntent
	err     error
}

func (q *chanQueue) EnqueueIntent(_ context.Context, intent *models.PurchaseIntent) error {
	if q.err != nil {
		return q.err
	}
	q.intents <- intent
	return nil
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
