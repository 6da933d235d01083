package kafka

import (
	"context"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/knifflig/ChargeApp/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer used by Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes region load events to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes one message for ev, keyed by KREISID so that all events of a
// district land on the same partition.
func (w *Writer) Publish(ctx context.Context, ev domain.RegionLoaded) error {
	msg, err := serializeToMessage(ev)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish region %d: %w", ev.KreisID, err)
	}
	w.logger.Debug("region event published", "kreis_id", ev.KreisID, "run_id", ev.RunID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage converts a RegionLoaded event into a Kafka message.
func serializeToMessage(ev domain.RegionLoaded) (kafkago.Message, error) {
	out, err := ev.Serialize()
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Key:   out.Key,
		Value: out.Value,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(out.Headers["event_type"])},
			{Key: "loaded_at", Value: []byte(out.Headers["loaded_at"])},
		},
	}, nil
}
