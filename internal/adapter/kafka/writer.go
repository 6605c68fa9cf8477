package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/site-outages-etl/internal/config"
	"github.com/couchcryptid/site-outages-etl/internal/domain"
)

const (
	headerSite  = "site"
	headerRunID = "run_id"
)

// messageWriter is the part of *kafkago.Writer the Writer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer mirrors uploaded site outages to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic. Outages are
// keyed by device id so every outage for a device lands on one partition.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, topic: cfg.KafkaTopic, logger: logger}
}

// PublishBatch serializes every outage in the batch and publishes them in a
// single WriteMessages call.
func (w *Writer) PublishBatch(ctx context.Context, batch domain.SiteBatch) error {
	if len(batch.Outages) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(batch.Outages))
	for i := range batch.Outages {
		msg, err := serializeToMessage(batch, batch.Outages[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), w.topic, err)
	}
	w.logger.Debug("published site outages", "topic", w.topic, "count", len(msgs), "run_id", batch.RunID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an enriched outage into a Kafka message,
// tagged with the run and site it was uploaded for.
func serializeToMessage(batch domain.SiteBatch, outage domain.EnrichedOutage) (kafkago.Message, error) {
	data, err := json.Marshal(outage)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize outage %s: %w", outage.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(outage.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: headerSite, Value: []byte(batch.Site)},
			{Key: headerRunID, Value: []byte(batch.RunID)},
		},
	}, nil
}
