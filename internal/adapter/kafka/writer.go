package kafka

import (
	"context"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Yelmkhayar/hydro-sentinel/internal/config"
	"github.com/Yelmkhayar/hydro-sentinel/internal/report"
)

// Writer publishes finalized run reports to a Kafka topic.
// It implements pipeline.ReportPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured report topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.ReportBrokers...),
		Topic:                  cfg.ReportTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish sends reports in a single WriteMessages call. Reports of one run id
// hash to the same partition.
func (w *Writer) Publish(ctx context.Context, reports ...*report.Report) error {
	if len(reports) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(reports))
	for i, r := range reports {
		msg, err := serializeToMessage(r)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d report(s): %w", len(msgs), err)
	}
	w.logger.Debug("reports published", "count", len(msgs), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Report into a Kafka message.
func serializeToMessage(r *report.Report) (kafkago.Message, error) {
	data, err := r.JSON()
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "workflow", Value: []byte(r.Workflow)},
			{Key: "status", Value: []byte(r.Status)},
			{Key: "generated_at", Value: []byte(r.GeneratedAtUTC)},
		},
	}, nil
}
