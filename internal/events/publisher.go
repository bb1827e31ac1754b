package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/reference-service/internal/config"
	"github.com/helixir/reference-service/internal/domain"
)

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, events ...*domain.Event) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, ...*domain.Event) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

// MemoryPublisher records published events in order.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []*domain.Event
}

// Publish appends events.
func (p *MemoryPublisher) Publish(_ context.Context, events ...*domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

// Close does nothing.
func (p *MemoryPublisher) Close() error { return nil }

// Events returns a copy of the recorded events.
func (p *MemoryPublisher) Events() []*domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*domain.Event(nil), p.events...)
}

// OfType returns the recorded events with the given type.
func (p *MemoryPublisher) OfType(eventType string) []*domain.Event {
	var out []*domain.Event
	for _, ev := range p.Events() {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic. Messages are keyed by
// aggregate id so events of one run stay on one partition.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	service string
	logger  zerolog.Logger
}

// NewKafkaPublisher creates a publisher from the kafka configuration section.
func NewKafkaPublisher(cfg config.KafkaConfig, service string, logger zerolog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, domain.NewConfigError("kafka", "brokers and topic are required")
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 100 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	}

	return newKafkaPublisher(writer, cfg.Topic, service, logger), nil
}

func newKafkaPublisher(w messageWriter, topic, service string, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  w,
		topic:   topic,
		service: service,
		logger:  logger.With().Str("component", "kafka_publisher").Str("topic", topic).Logger(),
	}
}

// Publish serializes events and writes them in one batch.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", ev.EventID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.AggregateID),
			Value: value,
			Time:  ev.CreatedAt,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.EventType)},
				{Key: "source", Value: []byte(p.service)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error().Err(err).Int("count", len(msgs)).Msg("failed to publish events")
		return fmt.Errorf("publish events: %w", err)
	}

	p.logger.Debug().Int("count", len(msgs)).Msg("published events")
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
