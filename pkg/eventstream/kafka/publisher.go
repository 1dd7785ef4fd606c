// Package kafka implements the eventstream.Publisher interface on Kafka.
// Messages are keyed by tenant so one tenant's events land on one
// partition in order.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/eventstream"
)

// DefaultTopic is the topic document events are published to.
const DefaultTopic = "recall.documents"

// Publisher publishes document events to a Kafka topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *zap.Logger
}

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers is the list of broker addresses, e.g. ["localhost:9092"].
	Brokers []string

	// Topic is the topic to publish to. Defaults to DefaultTopic.
	Topic string
}

// NewPublisher creates a Kafka-backed eventstream publisher.
func NewPublisher(c Config, logger *zap.Logger) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}

	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafkago.Writer{
		Addr:     kafkago.TCP(c.Brokers...),
		Topic:    topic,
		Balancer: &kafkago.Hash{},
	}

	logger.Info("kafka publisher initialized",
		zap.Strings("brokers", c.Brokers),
		zap.String("topic", topic),
	)

	return &Publisher{writer: writer, logger: logger}, nil
}

// PublishDocumentIngested publishes an ingested event keyed by tenant.
func (p *Publisher) PublishDocumentIngested(ctx context.Context, event *eventstream.DocumentIngestedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return p.publish(ctx, event.TenantID.String(), event.EventID, event)
}

// PublishDocumentDeleted publishes a deleted event keyed by tenant.
func (p *Publisher) PublishDocumentDeleted(ctx context.Context, event *eventstream.DocumentDeletedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return p.publish(ctx, event.TenantID.String(), event.EventID, event)
}

func (p *Publisher) publish(ctx context.Context, key, eventID string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", eventID, err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publishing event %s: %w", eventID, err)
	}

	p.logger.Debug("published event",
		zap.String("event_id", eventID),
		zap.String("key", key),
	)

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ eventstream.Publisher = (*Publisher)(nil)
