// Package store declares interfaces for persisting progress reports.
package store

import (
	"context"
	"errors"
	"io"

	"github.com/JakeFAU/realtime-progress/internal/progress"
)

// ErrNotFound signals that no report has been persisted yet.
var ErrNotFound = errors.New("progress report not found")

// ReportRepository persists the most recent progress report so the server can
// resume with the last known state after a restart.
type ReportRepository interface {
	// SaveReport stores r as the latest report. Implementations must ignore
	// reports whose Seq is lower than the stored one.
	SaveReport(ctx context.Context, r progress.Report) error
	// LatestReport loads the stored report or returns ErrNotFound.
	LatestReport(ctx context.Context) (progress.Report, error)
}

// Publisher delivers a report to a named topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, r progress.Report) (string, error)
}

// BlobStore writes an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}
