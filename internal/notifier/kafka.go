package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// messageWriter abstracts kafka.Writer so tests can substitute a fake.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications onto a Kafka topic, keyed by order
// ID so per-order delivery stays in sequence.
type KafkaNotifier struct {
	writer messageWriter
}

// NewKafkaNotifier creates a notifier writing to the given broker and topic.
func NewKafkaNotifier(broker, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(broker),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// NewKafkaNotifierWithWriter creates a notifier around an existing writer.
func NewKafkaNotifierWithWriter(w messageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: w}
}

// Notify implements Notifier.
func (k *KafkaNotifier) Notify(ctx context.Context, n Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notifier: marshal payload: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(n.OrderID), 10)),
		Value: raw,
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("notifier: kafka write: %w", err)
	}
	return nil
}

// Close releases the underlying writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
