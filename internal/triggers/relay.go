package triggers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"pulse/internal/docstore"
)

// RelayConfig holds the Kafka relay configuration.
type RelayConfig struct {
	Brokers string
	Topic   string
}

// Relay mirrors the store's change events onto a Kafka topic so that trigger
// handling can run in a separate process with durable redelivery. Messages
// are keyed by collection and document id, keeping per-document ordering
// within a partition; cross-collection ordering stays unguaranteed, same as
// the store's own delivery.
type Relay struct {
	producer *kafka.Producer
	config   RelayConfig
	store    docstore.Store
	logger   *slog.Logger
}

// NewRelay creates a relay with an idempotent producer.
func NewRelay(config RelayConfig, store docstore.Store, logger *slog.Logger) (*Relay, error) {
	producerConfig := &kafka.ConfigMap{
		"bootstrap.servers":  config.Brokers,
		"enable.idempotence": true,
		"acks":               "all",
	}

	p, err := kafka.NewProducer(producerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	r := &Relay{producer: p, config: config, store: store, logger: logger}
	go r.handleDeliveryReports()

	logger.Info("Kafka relay initialized", "brokers", config.Brokers, "topic", config.Topic)
	return r, nil
}

// Run watches the given collections and relays every event until ctx is done.
func (r *Relay) Run(ctx context.Context, collections []string) error {
	var wg sync.WaitGroup
	for _, collection := range collections {
		events, err := r.store.Watch(ctx, collection)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func(collection string, events <-chan docstore.Event) {
			defer wg.Done()
			for ev := range events {
				if err := r.publish(ev); err != nil {
					r.logger.Error("failed to relay event",
						"event_id", ev.ID,
						"collection", collection,
						"error", err)
				}
			}
		}(collection, events)
	}
	wg.Wait()
	return ctx.Err()
}

func (r *Relay) publish(ev docstore.Event) error {
	jsonData, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &r.config.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(ev.Collection + "/" + ev.DocID),
		Value: jsonData,
	}

	if err := r.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	r.logger.Debug("change event relayed",
		"event_id", ev.ID,
		"collection", ev.Collection,
		"type", ev.Type)
	return nil
}

// handleDeliveryReports processes asynchronous delivery reports
func (r *Relay) handleDeliveryReports() {
	for e := range r.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				r.logger.Error("Delivery failed",
					"topic", *ev.TopicPartition.Topic,
					"error", ev.TopicPartition.Error)
			}
		case kafka.Error:
			r.logger.Error("Kafka producer error", "error", ev)
		}
	}
}

// Close flushes outstanding messages and closes the producer.
func (r *Relay) Close() {
	r.producer.Flush(5000)
	r.producer.Close()
}
