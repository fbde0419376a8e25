package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"stock-sync/internal/broker"
	"stock-sync/internal/util"

	"go.uber.org/zap"
)

// IntentConsumer is a queue consumer that applies intents until it fails or ctx ends
type IntentConsumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// ConsumerFactory opens a fresh consumer group membership
type ConsumerFactory func() IntentConsumer

// OrderWorker consumes purchase intents and applies them through the processor.
// When the consumer gives up on a message it is closed and reopened, which
// makes the group redeliver everything after the last committed offset.
type OrderWorker struct {
	id              int
	newConsumer     ConsumerFactory
	handler         *broker.IntentHandler
	redeliveryDelay time.Duration
	logger          *zap.Logger

	mu       sync.Mutex
	consumer IntentConsumer
	cancel   context.CancelFunc
	stopped  bool
}

// NewOrderWorker creates a new order worker
func NewOrderWorker(id int, newConsumer ConsumerFactory, process broker.IntentProcessor, redeliveryDelay time.Duration) *OrderWorker {
	logger := util.GetLogger().With(zap.Int("worker", id))
	return &OrderWorker{
		id:              id,
		newConsumer:     newConsumer,
		handler:         broker.NewIntentHandler(process, logger),
		redeliveryDelay: redeliveryDelay,
		logger:          logger,
	}
}

// Start runs the worker until ctx is cancelled or Stop is called
func (w *OrderWorker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.cancel = cancel
	w.mu.Unlock()

	w.logger.Info("Starting order worker")

	for {
		consumer := w.newConsumer()
		if !w.setConsumer(consumer) {
			_ = consumer.Close()
			w.logger.Info("Order worker stopped")
			return nil
		}

		err := consumer.StartConsuming(ctx, w.handler.HandleMessage)
		if w.releaseConsumer(consumer) {
			if cerr := consumer.Close(); cerr != nil {
				w.logger.Warn("Error closing consumer", zap.Error(cerr))
			}
		}

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			w.logger.Info("Order worker stopped")
			return nil
		}

		w.logger.Error("Consumer stopped, rejoining for redelivery",
			zap.Duration("delay", w.redeliveryDelay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			w.logger.Info("Order worker stopped")
			return nil
		case <-time.After(w.redeliveryDelay):
		}
	}
}

// Stop ends Start and closes the active consumer, unblocking any pending fetch.
// A stopped worker never rejoins the group.
func (w *OrderWorker) Stop() error {
	w.logger.Info("Stopping order worker")

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
	}
	if w.consumer == nil {
		return nil
	}
	consumer := w.consumer
	w.consumer = nil
	return consumer.Close()
}

// setConsumer records the active consumer; false once the worker is stopped
func (w *OrderWorker) setConsumer(c IntentConsumer) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	w.consumer = c
	return true
}

// releaseConsumer reports whether c was still owned by the loop, so it is closed once
func (w *OrderWorker) releaseConsumer(c IntentConsumer) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.consumer != c {
		return false
	}
	w.consumer = nil
	return true
}

// Pool runs several workers in the same consumer group. Each holds its own
// partitions, so per-product order is kept while products proceed in parallel.
type Pool struct {
	workers []*OrderWorker
	wg      sync.WaitGroup
}

// NewPool creates count workers sharing one consumer factory
func NewPool(count int, newConsumer ConsumerFactory, process broker.IntentProcessor, redeliveryDelay time.Duration) *Pool {
	if count < 1 {
		count = 1
	}
	p := &Pool{}
	for i := 0; i < count; i++ {
		p.workers = append(p.workers, NewOrderWorker(i, newConsumer, process, redeliveryDelay))
	}
	return p
}

// Start launches every worker in the background
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *OrderWorker) {
			defer p.wg.Done()
			if err := w.Start(ctx); err != nil {
				w.logger.Error("Order worker exited", zap.Error(err))
			}
		}(w)
	}
}

// Stop stops every worker, closing its consumer, and waits for them to return
func (p *Pool) Stop() {
	for _, w := range p.workers {
		if err := w.Stop(); err != nil {
			w.logger.Warn("Error stopping order worker", zap.Error(err))
		}
	}
	p.wg.Wait()
}

// Size returns the number of workers in the pool
func (p *Pool) Size() int {
	return len(p.workers)
}
