package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/researchgpt/evidence-service/internal/domain"
)

// KafkaMirrorConfig configures the Kafka event mirror.
type KafkaMirrorConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// Topic is the topic run events are mirrored to.
	Topic string

	// WriteTimeout bounds each publish. Defaults to 5s.
	WriteTimeout time.Duration
}

// KafkaMirror publishes appended events to a Kafka topic, keyed by run ID
// so all events of a run land on the same partition in order. Delivery is
// best-effort; the durable log never depends on it.
type KafkaMirror struct {
	writer  *kafka.Writer
	timeout time.Duration
}

// Compile-time interface verification.
var _ Mirror = (*KafkaMirror)(nil)

// NewKafkaMirror creates a mirror writing to the given brokers and topic.
func NewKafkaMirror(cfg KafkaMirrorConfig) *KafkaMirror {
	timeout := cfg.WriteTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &KafkaMirror{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		timeout: timeout,
	}
}

// Publish mirrors one event to Kafka.
func (m *KafkaMirror) Publish(ctx context.Context, event *domain.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err = m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RunID.String()),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}
