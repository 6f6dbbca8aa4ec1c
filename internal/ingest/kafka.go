// Package ingest feeds the prediction window from the serving layer's
// prediction log topic and publishes drift report artifacts for downstream
// alerting.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/modelwatch/modelwatch/internal/config"
	"github.com/modelwatch/modelwatch/internal/drift"
	"github.com/modelwatch/modelwatch/internal/window"
	"github.com/modelwatch/modelwatch/pkg/metrics"
	"github.com/modelwatch/modelwatch/pkg/models"
)

// Consumer reads prediction log records from Kafka and appends them to the
// window. Malformed records are logged and dropped; ingestion never stops
// for a bad message.
type Consumer struct {
	reader *kafka.Reader
	window *window.Window
	logger *zap.Logger
}

// NewConsumer creates a consumer for the predictions topic.
func NewConsumer(cfg config.KafkaConfig, w *window.Window, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.PredictionsTopic,
		GroupID: fmt.Sprintf("%s-ingest", cfg.GroupPrefix),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...))
		}),
	})
	return &Consumer{reader: reader, window: w, logger: logger}
}

// Start consumes until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	go func() {
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Error("failed to read prediction record", zap.Error(err))
				continue
			}

			var rec models.PredictionRecord
			if err := json.Unmarshal(msg.Value, &rec); err != nil {
				c.logger.Warn("dropping malformed prediction record",
					zap.Error(err), zap.Int64("offset", msg.Offset))
				continue
			}

			c.window.Append(rec)
			metrics.PredictionsIngested.WithLabelValues("kafka").Inc()
		}
	}()
}

// Close shuts the underlying reader down.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// ReportPublisher writes drift report artifacts to the reports topic. The
// event is the contract with the rendering/notification layer; delivery is
// best-effort and never fails a drift cycle.
type ReportPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewReportPublisher creates a publisher for the reports topic.
func NewReportPublisher(cfg config.KafkaConfig, logger *zap.Logger) *ReportPublisher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.ReportsTopic,
		Balancer: &kafka.LeastBytes{},
	}
	return &ReportPublisher{writer: writer, logger: logger}
}

// PublishReport emits the report keyed by its generation timestamp.
func (p *ReportPublisher) PublishReport(ctx context.Context, report *drift.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode drift report: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(report.GeneratedAt.Format("2006-01-02T15:04:05.000Z07:00")),
		Value: data,
	})
}

// Close shuts the underlying writer down.
func (p *ReportPublisher) Close() error {
	return p.writer.Close()
}
