package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/progress"
	"github.com/JakeFAU/realtime-progress/internal/store"
)

// StoreSink persists each delivered report via a store.ReportRepository. The
// Hub already collapses bursts, so every call is a single upsert.
type StoreSink struct {
	repo   store.ReportRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.ReportRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume writes r to the repository. It respects ctx deadlines and wraps
// repository errors.
func (s *StoreSink) Consume(ctx context.Context, r progress.Report) error {
	if s == nil || s.repo == nil {
		return nil
	}
	if err := s.repo.SaveReport(ctx, r); err != nil {
		return fmt.Errorf("save report seq %d: %w", r.Seq, err)
	}
	s.logger.Debug("progress report persisted", zap.Uint64("seq", r.Seq))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
