package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-progress/internal/progress"
	"github.com/JakeFAU/realtime-progress/internal/store"
)

const snapshotObject = "latest.json"

// SnapshotSink writes the newest report as a JSON object so a static page or
// bucket listing can show progress without the server.
type SnapshotSink struct {
	blobs  store.BlobStore
	key    string
	logger *zap.Logger
}

// NewSnapshotSink stores snapshots under prefix/latest.json.
func NewSnapshotSink(blobs store.BlobStore, prefix string, logger *zap.Logger) *SnapshotSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotSink{
		blobs:  blobs,
		key:    path.Join(prefix, snapshotObject),
		logger: logger,
	}
}

// Consume overwrites the snapshot object with r.
func (s *SnapshotSink) Consume(ctx context.Context, r progress.Report) error {
	if s == nil || s.blobs == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	uri, err := s.blobs.PutObject(ctx, s.key, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	s.logger.Debug("progress snapshot written", zap.String("uri", uri))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *SnapshotSink) Close(context.Context) error {
	return nil
}
