package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/progress"
	"github.com/JakeFAU/realtime-progress/internal/store"
)

// PublishSink fans every delivered report out to a message topic so other
// services can follow the task without holding a push channel open.
type PublishSink struct {
	pub    store.Publisher
	topic  string
	logger *zap.Logger
}

// NewPublishSink wires a publisher and topic name.
func NewPublishSink(pub store.Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{pub: pub, topic: topic, logger: logger}
}

// Consume publishes r to the configured topic.
func (s *PublishSink) Consume(ctx context.Context, r progress.Report) error {
	if s == nil || s.pub == nil {
		return nil
	}
	id, err := s.pub.Publish(ctx, s.topic, r)
	if err != nil {
		return fmt.Errorf("publish seq %d: %w", r.Seq, err)
	}
	s.logger.Debug("progress report published", zap.String("message_id", id), zap.Uint64("seq", r.Seq))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}
