package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("WORKER_RETRY_MAX", "")
	t.Setenv("KAFKA_BATCH_TIMEOUT", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "purchases", cfg.Kafka.TopicPurchases)
	assert.Equal(t, "stock-updates", cfg.Redis.StockChannel)
	assert.Equal(t, 30*time.Second, cfg.Worker.RetryMax)
	assert.Equal(t, 64, cfg.Stream.BufferSize)
	assert.Equal(t, 10*time.Millisecond, cfg.Kafka.BatchTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("REPLICA_ID", "replica-b")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("KAFKA_CONSUMERS", "4")
	t.Setenv("STREAM_KEEPALIVE", "250ms")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("KAFKA_BATCH_TIMEOUT", "2ms")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "replica-b", cfg.Server.ReplicaID)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 4, cfg.Kafka.Consumers)
	assert.Equal(t, 250*time.Millisecond, cfg.Stream.KeepAlive)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 2*time.Millisecond, cfg.Kafka.BatchTimeout)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("KAFKA_CONSUMERS", "zero")
	t.Setenv("WORKER_REDELIVERY_DELAY", "soon")
	t.Setenv("STREAM_BUFFER_SIZE", "-5")

	cfg := Load()

	assert.Equal(t, 2, cfg.Kafka.Consumers)
	assert.Equal(t, 5*time.Second, cfg.Worker.RedeliveryDelay)
	assert.Equal(t, 1, cfg.Stream.BufferSize)
}
