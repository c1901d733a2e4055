package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/progress"
)

// LogSink emits structured logs for debugging report streams. It is useful
// during development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the report using structured fields.
func (s *LogSink) Consume(_ context.Context, r progress.Report) error {
	s.logger.Info("progress report",
		zap.Uint64("seq", r.Seq),
		zap.String("epoch", r.Epoch),
		zap.Float64("progress", r.Progress),
		zap.String("status", r.Status),
		zap.String("class", string(r.Class())),
		zap.Time("updated_at", r.UpdatedAt),
	)
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
