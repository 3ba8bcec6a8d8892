package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/storm-lightning-service/internal/config"
	"github.com/couchcryptid/storm-lightning-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// TelemetryWriter produces telemetry records to a Kafka topic.
// It implements domain.TelemetrySink. Writes are asynchronous so the engine
// never waits on the broker; delivery errors are logged from the completion
// callback.
type TelemetryWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewTelemetryWriter creates a Kafka producer for the configured telemetry topic.
func NewTelemetryWriter(cfg *config.Config, logger *slog.Logger) *TelemetryWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTelemetryTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		Async:        true,
		Completion: func(msgs []kafkago.Message, err error) {
			if err != nil {
				logger.Warn("telemetry delivery failed", "error", err, "count", len(msgs))
			}
		},
	}
	return &TelemetryWriter{writer: w, logger: logger}
}

// Emit serializes and enqueues one telemetry record, keyed by node id.
func (w *TelemetryWriter) Emit(ctx context.Context, rec domain.Telemetry) error {
	msg, err := serializeToMessage(rec)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

// Close flushes pending records and closes the producer.
func (w *TelemetryWriter) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a telemetry record into a Kafka message.
func serializeToMessage(rec domain.Telemetry) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize telemetry: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.NodeID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event", Value: []byte(rec.Event)},
			{Key: "ts_iso", Value: []byte(rec.TSISO)},
		},
	}, nil
}
