// Package kafkanotify publishes notification events to a Kafka topic
// consumed by the mobile-push collaborator.
package kafkanotify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/linnemanlabs/warden/internal/notify"
)

// opsKey partitions events with no recipient onto the ops channel.
const opsKey = "ops"

// writer is the subset of kafka.Writer the publisher needs. Narrowed for
// testing.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher writes notification events as JSON messages keyed by recipient,
// so per-recipient ordering is preserved through partitioning.
type Publisher struct {
	w writer
}

// New creates a Publisher with a writer tuned for small, latency-sensitive
// payloads.
func New(brokers []string, topic string) *Publisher {
	return &Publisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// Publish implements notify.Publisher.
func (p *Publisher) Publish(ctx context.Context, ev *notify.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafkanotify: marshal event: %w", err)
	}

	key := ev.Recipient
	if key == "" {
		key = opsKey
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  ev.At,
	})
	if err != nil {
		return fmt.Errorf("kafkanotify: write message: %w", err)
	}
	return nil
}

// Close shuts down the underlying writer if it is a real kafka.Writer.
func (p *Publisher) Close() error {
	if w, ok := p.w.(*kafka.Writer); ok {
		return w.Close()
	}
	return nil
}
