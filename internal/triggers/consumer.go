package triggers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"pulse/internal/docstore"
)

// ConsumerConfig holds the Kafka trigger consumer configuration.
type ConsumerConfig struct {
	Brokers       string
	Topic         string
	DLQTopic      string
	ConsumerGroup string
	MaxRetries    int
}

// Consumer is the Kafka-mode trigger pipeline: it consumes relayed change
// events, deduplicates them, dispatches them through the registry with retry
// and sends exhausted events to the DLQ topic. Offsets are committed manually
// so an unprocessed event is redelivered after a crash.
type Consumer struct {
	consumer         *kafka.Consumer
	registry         *Registry
	idempotencyStore *IdempotencyStore
	dlqProducer      *kafka.Producer
	config           *ConsumerConfig
	logger           *slog.Logger
}

// NewConsumer creates a Kafka trigger consumer.
func NewConsumer(
	config *ConsumerConfig,
	registry *Registry,
	idempotencyStore *IdempotencyStore,
	logger *slog.Logger,
) (*Consumer, error) {
	consumerConfig := &kafka.ConfigMap{
		"bootstrap.servers":  config.Brokers,
		"group.id":           config.ConsumerGroup,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	}

	c, err := kafka.NewConsumer(consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	dlqProducer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": config.Brokers,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create DLQ producer: %w", err)
	}

	logger.Info("Kafka trigger consumer initialized",
		"brokers", config.Brokers,
		"topic", config.Topic,
		"group", config.ConsumerGroup)

	return &Consumer{
		consumer:         c,
		registry:         registry,
		idempotencyStore: idempotencyStore,
		dlqProducer:      dlqProducer,
		config:           config,
		logger:           logger,
	}, nil
}

// Start consumes messages until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.consumer.Subscribe(c.config.Topic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic: %w", err)
	}

	c.logger.Info("Starting to consume change events", "topic", c.config.Topic)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer shutting down...")
			return nil

		default:
			msg, err := c.consumer.ReadMessage(1 * time.Second)
			if err != nil {
				// Timeout is not an error
				if err.(kafka.Error).Code() == kafka.ErrTimedOut {
					continue
				}
				c.logger.Error("Error reading message", "error", err)
				continue
			}
			c.processMessage(ctx, msg)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg *kafka.Message) {
	var ev docstore.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.logger.Error("Failed to parse change event",
			"error", err,
			"raw_value", string(msg.Value))
		c.commitMessage(msg) // skip bad message
		return
	}

	if ev.ID == "" {
		c.logger.Error("Change event missing id",
			"collection", ev.Collection,
			"doc_id", ev.DocID)
		c.commitMessage(msg) // skip invalid message
		return
	}

	isProcessed, err := c.idempotencyStore.IsProcessed(ctx, ev.ID)
	if err != nil {
		c.logger.Error("Failed to check idempotency", "event_id", ev.ID, "error", err)
		// Don't commit - will retry
		return
	}
	if isProcessed {
		c.logger.Warn("Duplicate change event, skipping",
			"event_id", ev.ID,
			"collection", ev.Collection)
		c.commitMessage(msg)
		return
	}

	if err := c.processWithRetry(ctx, ev); err != nil {
		c.logger.Error("Failed to process change event after retries",
			"event_id", ev.ID,
			"error", err)
		c.sendToDLQ(ev, err)
		c.commitMessage(msg) // move past the poisoned event
		return
	}

	if _, err := c.idempotencyStore.MarkProcessed(ctx, ev.ID); err != nil {
		c.logger.Error("Failed to mark as processed", "event_id", ev.ID, "error", err)
		// Don't commit - handlers are idempotent, redelivery is safe
		return
	}

	c.commitMessage(msg)
}

func (c *Consumer) processWithRetry(ctx context.Context, ev docstore.Event) error {
	maxRetries := c.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = c.registry.Dispatch(ctx, ev)
		if lastErr == nil {
			return nil
		}

		c.logger.Warn("Trigger dispatch failed, will retry",
			"event_id", ev.ID,
			"attempt", attempt,
			"maxRetries", maxRetries,
			"error", lastErr)

		if attempt < maxRetries {
			backoff := time.Duration(attempt) * time.Second
			time.Sleep(backoff)
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Consumer) sendToDLQ(ev docstore.Event, processingError error) {
	dlqEvent := map[string]interface{}{
		"original_event": ev,
		"handlers":       c.registry.handlerNames(ev),
		"error":          processingError.Error(),
		"failed_at":      time.Now(),
		"consumer_group": c.config.ConsumerGroup,
	}

	jsonData, err := json.Marshal(dlqEvent)
	if err != nil {
		c.logger.Error("Failed to marshal DLQ event", "event_id", ev.ID, "error", err)
		return
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &c.config.DLQTopic,
			Partition: kafka.PartitionAny,
		},
		Value: jsonData,
	}

	if err := c.dlqProducer.Produce(msg, nil); err != nil {
		c.logger.Error("Failed to send to DLQ", "event_id", ev.ID, "error", err)
		return
	}

	c.logger.Warn("Change event sent to DLQ",
		"event_id", ev.ID,
		"collection", ev.Collection,
		"dlq_topic", c.config.DLQTopic)
}

func (c *Consumer) commitMessage(msg *kafka.Message) {
	if _, err := c.consumer.CommitMessage(msg); err != nil {
		c.logger.Error("Failed to commit offset",
			"topic", *msg.TopicPartition.Topic,
			"partition", msg.TopicPartition.Partition,
			"offset", msg.TopicPartition.Offset,
			"error", err)
	}
}

// Close closes the consumer and its DLQ producer.
func (c *Consumer) Close() {
	c.logger.Info("Closing Kafka trigger consumer...")
	c.dlqProducer.Flush(5000)
	c.dlqProducer.Close()
	c.consumer.Close()
}
