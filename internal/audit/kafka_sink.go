package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/payflow/payment-core/internal/models"
)

// KafkaSink publishes audit events to a kafka topic. The run id is the
// message key, so all events of one run land on one partition and replay in
// step order.
type KafkaSink struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaSink(writer *kafka.Writer, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{writer: writer, logger: logger}
}

// Append writes one event. Failures are logged and swallowed: the audit
// trail is best-effort and must never change a payment's outcome.
func (s *KafkaSink) Append(ctx context.Context, event models.AuditEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("audit event marshal failed",
			zap.String("run_id", event.RunID),
			zap.String("step", string(event.Step)),
			zap.Error(err),
		)
		return
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RunID),
		Value: value,
	})
	if err != nil {
		s.logger.Warn("audit event publish failed",
			zap.String("run_id", event.RunID),
			zap.String("step", string(event.Step)),
			zap.String("status", string(event.Status)),
			zap.Error(err),
		)
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
