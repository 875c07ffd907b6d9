package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/street-parking-odds/internal/config"
	"github.com/couchcryptid/street-parking-odds/internal/domain"
	"github.com/couchcryptid/street-parking-odds/internal/observability"
)

// AuditWriter publishes answered queries to a Kafka topic.
// It implements session.Publisher.
type AuditWriter struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAuditWriter creates a Kafka producer for the configured audit topic.
// Messages are written one at a time since a session answers queries at
// human pace.
func NewAuditWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *AuditWriter {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaAuditTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchSize:              1,
		AllowAutoTopicCreation: true,
	}
	return &AuditWriter{writer: w, logger: logger, metrics: metrics}
}

// Publish serializes one answer and writes it keyed by session ID, so a
// session's answers stay ordered within a partition.
func (w *AuditWriter) Publish(ctx context.Context, answer domain.QueryAnswer) error {
	msg, err := serializeToMessage(answer)
	if err != nil {
		w.metrics.AuditPublished.WithLabelValues("error").Inc()
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		w.metrics.AuditPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("write audit message: %w", err)
	}
	w.metrics.AuditPublished.WithLabelValues("success").Inc()
	w.logger.Debug("query audit published", "answer_id", answer.ID, "session_id", answer.SessionID)
	return nil
}

func (w *AuditWriter) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a QueryAnswer into a Kafka message.
func serializeToMessage(answer domain.QueryAnswer) (kafkago.Message, error) {
	data, err := json.Marshal(answer)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize query answer: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(answer.SessionID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "answer_id", Value: []byte(answer.ID)},
			{Key: "confidence", Value: []byte(answer.Summary.Confidence)},
			{Key: "answered_at", Value: []byte(answer.AnsweredAt.Format(time.RFC3339))},
		},
	}, nil
}
