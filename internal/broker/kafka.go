package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"stock-sync/internal/models"
	"stock-sync/internal/util"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// DefaultBatchTimeout bounds how long a synchronous write waits for a batch to fill
const DefaultBatchTimeout = 10 * time.Millisecond

// NewProducer creates a Kafka producer that partitions by message key, so all
// intents for one product land on one partition in submission order
func NewProducer(brokers []string, topic string, batchTimeout time.Duration) *Producer {
	if batchTimeout <= 0 {
		batchTimeout = DefaultBatchTimeout
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: batchTimeout,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	return &Producer{writer: writer, logger: util.GetLogger()}
}

// PublishEvent publishes a JSON payload under the given key
func (p *Producer) PublishEvent(ctx context.Context, key string, event interface{}) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: eventBytes,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w: %w", models.ErrUnavailable, err)
	}

	p.logger.Debug("Published message", zap.String("key", key), zap.String("topic", p.writer.Topic))
	return nil
}

// EnqueueIntent appends a purchase intent to the order queue keyed by product
func (p *Producer) EnqueueIntent(ctx context.Context, intent *models.PurchaseIntent) error {
	return p.PublishEvent(ctx, PartitionKey(intent.ProductID), intent)
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// PartitionKey is the queue key for a product
func PartitionKey(productID int64) string {
	return strconv.FormatInt(productID, 10)
}

// MessageReader is the part of kafka.Reader the consume loop relies on
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RetryPolicy bounds how long a message is retried in place before the
// consumer gives up on it and lets the group redeliver it
type RetryPolicy struct {
	Initial  time.Duration
	Max      time.Duration
	Attempts int
}

// Consumer represents a Kafka consumer with manual acknowledgement
type Consumer struct {
	reader MessageReader
	topic  string
	retry  RetryPolicy
	logger *zap.Logger
}

// NewConsumer creates a new Kafka consumer in a consumer group
func NewConsumer(brokers []string, topic, groupID string, retry RetryPolicy) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})

	return NewConsumerFromReader(reader, topic, retry)
}

// NewConsumerFromReader builds a consumer around any MessageReader
func NewConsumerFromReader(reader MessageReader, topic string, retry RetryPolicy) *Consumer {
	return &Consumer{reader: reader, topic: topic, retry: retry, logger: util.GetLogger()}
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// MessageHandler is a function type for handling messages
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// StartConsuming processes messages one at a time and commits each only after
// its handler finished. Transient handler failures are retried with backoff;
// when retries run out the message stays uncommitted and the error is returned
// so the caller can rejoin the group and receive it again.
func (c *Consumer) StartConsuming(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Starting Kafka consumer", zap.String("topic", c.topic))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Consumer context cancelled, stopping")
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return err
			}
			c.logger.Error("Error fetching message", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		if err := c.handleWithRetry(ctx, handler, msg); err != nil {
			return fmt.Errorf("message partition=%d offset=%d left unacknowledged: %w",
				msg.Partition, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Error committing message",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, handler MessageHandler, msg kafka.Message) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retry.Initial
	policy.MaxInterval = c.retry.Max
	policy.MaxElapsedTime = 0

	// WithMaxRetries treats 0 as unlimited
	attempts := c.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}

	operation := func() error {
		err := handler(ctx, msg)
		if err == nil || models.IsRetryable(err) {
			return err
		}
		c.logger.Warn("Message failed terminally, acknowledging",
			zap.String("key", string(msg.Key)),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	notify := func(err error, wait time.Duration) {
		util.WorkerRetriesTotal.Inc()
		c.logger.Warn("Transient failure, retrying message",
			zap.String("key", string(msg.Key)),
			zap.Int64("offset", msg.Offset),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	return backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts)), ctx),
		notify)
}
