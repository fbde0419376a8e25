package stream

import (
	"context"
	"sync"
	"time"

	"stock-sync/internal/models"
	"stock-sync/internal/util"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Reasons a subscription is removed
const (
	ReasonClosed   = "closed"
	ReasonOverflow = "overflow"
	ReasonShutdown = "shutdown"
)

// EventSource delivers stock changes published by any replica
type EventSource interface {
	SubscribeStockChanges(ctx context.Context) (<-chan models.StockChangeEvent, error)
}

// Subscription is one client connection attached to this replica
type Subscription struct {
	ID       uint64
	Interest int64

	events chan models.StockChangeEvent
	mu     sync.Mutex
	reason string
}

// Events yields matching stock changes. It is closed when the subscription is
// removed; Reason tells why.
func (s *Subscription) Events() <-chan models.StockChangeEvent {
	return s.events
}

// Reason returns why the subscription ended, or "" while it is live
func (s *Subscription) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Subscription) end(reason string) {
	s.mu.Lock()
	s.reason = reason
	s.mu.Unlock()
	close(s.events)
}

// Broadcaster fans bus events out to the subscriptions on this replica.
// Delivery never blocks: a subscriber whose buffer is full is dropped so the
// client reconnects and resynchronizes from a snapshot.
type Broadcaster struct {
	source     EventSource
	bufferSize int
	logger     *zap.Logger

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewBroadcaster creates a broadcaster reading from source
func NewBroadcaster(source EventSource, bufferSize int) *Broadcaster {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Broadcaster{
		source:     source,
		bufferSize: bufferSize,
		logger:     util.GetLogger(),
		subs:       make(map[uint64]*Subscription),
	}
}

// Register attaches a subscriber interested in one product, or in every
// product when interest is models.AllProducts
func (b *Broadcaster) Register(interest int64) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		ID:       b.nextID,
		Interest: interest,
		events:   make(chan models.StockChangeEvent, b.bufferSize),
	}
	if b.closed {
		sub.end(ReasonShutdown)
		return sub
	}

	b.subs[sub.ID] = sub
	util.StreamSubscribers.Set(float64(len(b.subs)))
	b.logger.Debug("Stream subscriber registered",
		zap.Uint64("subscriber", sub.ID),
		zap.Int64("interest", interest))
	return sub
}

// Unregister detaches a subscriber. It is safe to call more than once.
func (b *Broadcaster) Unregister(sub *Subscription) {
	b.remove(sub.ID, ReasonClosed)
}

// Len returns the number of live subscriptions
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dispatch hands an event to every subscription whose interest matches
func (b *Broadcaster) Dispatch(evt models.StockChangeEvent) {
	var overflow []uint64

	b.mu.RLock()
	for id, sub := range b.subs {
		if !evt.Matches(sub.Interest) {
			continue
		}
		select {
		case sub.events <- evt:
			util.StreamEventsDeliveredTotal.Inc()
		default:
			overflow = append(overflow, id)
		}
	}
	b.mu.RUnlock()

	for _, id := range overflow {
		b.logger.Warn("Stream subscriber too slow, dropping",
			zap.Uint64("subscriber", id),
			zap.Int64("product_id", evt.ProductID))
		b.remove(id, ReasonOverflow)
	}
}

// Run relays bus events to subscribers until ctx is cancelled, resubscribing
// with backoff whenever the bus subscription is lost
func (b *Broadcaster) Run(ctx context.Context) error {
	defer b.Close()

	for {
		events, err := b.subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		b.logger.Info("Stream broadcaster subscribed to stock changes")
		for evt := range events {
			b.Dispatch(evt)
		}

		if ctx.Err() != nil {
			return nil
		}
		b.logger.Warn("Stock change subscription lost, resubscribing")
	}
}

// Close ends every subscription and refuses new ones
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		util.StreamDropsTotal.WithLabelValues(ReasonShutdown).Inc()
		sub.end(ReasonShutdown)
	}
	util.StreamSubscribers.Set(0)
}

func (b *Broadcaster) subscribe(ctx context.Context) (<-chan models.StockChangeEvent, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 0

	var events <-chan models.StockChangeEvent
	operation := func() error {
		var err error
		events, err = b.source.SubscribeStockChanges(ctx)
		return err
	}
	notify := func(err error, wait time.Duration) {
		b.logger.Warn("Failed to subscribe to stock changes",
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, err
	}
	return events, nil
}

func (b *Broadcaster) remove(id uint64, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	util.StreamSubscribers.Set(float64(len(b.subs)))
	if reason != ReasonClosed {
		util.StreamDropsTotal.WithLabelValues(reason).Inc()
	}
	sub.end(reason)
}
