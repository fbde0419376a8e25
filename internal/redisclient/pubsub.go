package redisclient

import (
	"context"
	"encoding/json"
	"fmt"

	"stock-sync/internal/models"

	"go.uber.org/zap"
)

// EventBus fans stock change events out to every replica over one Redis channel.
// Delivery is best effort: a replica that is not subscribed while an event is
// published never sees it.
type EventBus struct {
	client  *Client
	channel string
	logger  *zap.Logger
}

// NewEventBus creates an event bus on the given channel
func NewEventBus(client *Client, channel string, logger *zap.Logger) *EventBus {
	return &EventBus{client: client, channel: channel, logger: logger}
}

// PublishStockChange publishes a product-tagged stock change event
func (b *EventBus) PublishStockChange(ctx context.Context, event *models.StockChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stock event: %w", err)
	}
	if err := b.client.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish stock event: %w: %w", models.ErrUnavailable, err)
	}
	return nil
}

// SubscribeStockChanges streams events until ctx is done or the subscription breaks.
// The returned channel is closed when the stream ends; callers resubscribe to resume.
func (b *EventBus) SubscribeStockChanges(ctx context.Context) (<-chan models.StockChangeEvent, error) {
	ps := b.client.rdb.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w: %w", b.channel, models.ErrUnavailable, err)
	}

	out := make(chan models.StockChangeEvent)
	go func() {
		defer close(out)
		defer ps.Close()

		messages := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event models.StockChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("Dropping malformed stock event",
						zap.String("channel", msg.Channel),
						zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
