package kafka

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/storm-lightning-service/internal/config"
	"github.com/couchcryptid/storm-lightning-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes strike messages from a Kafka topic.
// It implements engine.StrikeSource.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a Kafka consumer for the configured strike topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaStrikeTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	return &Reader{reader: r, logger: logger}
}

// Extract blocks until the next strike message is fetched. The offset is
// committed only when the returned Commit is called.
func (r *Reader) Extract(ctx context.Context) (domain.RawStrike, error) {
	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return domain.RawStrike{}, err
	}

	raw := mapMessageToRawStrike(msg)
	raw.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return raw, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

func mapMessageToRawStrike(msg kafkago.Message) domain.RawStrike {
	return domain.RawStrike{
		Key:       msg.Key,
		Value:     msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
