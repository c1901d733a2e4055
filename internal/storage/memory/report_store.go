package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/realtime-progress/internal/progress"
	"github.com/JakeFAU/realtime-progress/internal/store"
)

// ReportStore is a thread-safe in-memory store.ReportRepository.
type ReportStore struct {
	mu     sync.RWMutex
	latest progress.Report
	saved  bool
}

// NewReportStore constructs an empty store.
func NewReportStore() *ReportStore {
	return &ReportStore{}
}

// SaveReport replaces the stored report unless r is older.
func (s *ReportStore) SaveReport(_ context.Context, r progress.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved && !r.NewerThan(s.latest) {
		return nil
	}
	s.latest = r
	s.saved = true
	return nil
}

// LatestReport returns the stored report or store.ErrNotFound.
func (s *ReportStore) LatestReport(context.Context) (progress.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.saved {
		return progress.Report{}, store.ErrNotFound
	}
	return s.latest, nil
}
