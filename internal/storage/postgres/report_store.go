// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/realtime-progress/internal/progress"
	"github.com/JakeFAU/realtime-progress/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	defaultTable = "progress_reports"
	defaultKey   = "default"
)

// ReportStoreConfig controls the Postgres connection pool used for reports.
type ReportStoreConfig struct {
	DSN             string
	Table           string
	Key             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ReportStore implements store.ReportRepository using a single row per key.
//
// Expected schema:
//
//	CREATE TABLE progress_reports (
//		report_key text PRIMARY KEY,
//		seq        bigint NOT NULL,
//		progress   double precision NOT NULL,
//		status     text NOT NULL,
//		updated_at timestamptz NOT NULL
//	);
type ReportStore struct {
	pool  pool
	table string
	key   string
}

// NewReportStore connects to Postgres using the provided config.
func NewReportStore(ctx context.Context, cfg ReportStoreConfig) (*ReportStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewReportStoreWithPool(p, cfg.Table, cfg.Key)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewReportStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewReportStoreWithPool(p pool, table, key string) (*ReportStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if key == "" {
		key = defaultKey
	}
	return &ReportStore{pool: p, table: table, key: key}, nil
}

// Close releases the underlying pool resources.
func (s *ReportStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveReport upserts the row for the configured key. An existing row with a
// higher sequence number is left untouched.
func (s *ReportStore) SaveReport(ctx context.Context, r progress.Report) error {
	query := fmt.Sprintf(`
INSERT INTO %s (report_key, seq, progress, status, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (report_key) DO UPDATE
SET seq = EXCLUDED.seq,
	progress = EXCLUDED.progress,
	status = EXCLUDED.status,
	updated_at = EXCLUDED.updated_at
WHERE EXCLUDED.seq = 0 OR %s.seq <= EXCLUDED.seq`, s.table, s.table)

	updatedAt := r.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	if _, err := s.pool.Exec(ctx, query, s.key, int64(r.Seq), r.Progress, r.Status, updatedAt); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// LatestReport loads the row for the configured key.
func (s *ReportStore) LatestReport(ctx context.Context) (progress.Report, error) {
	query := fmt.Sprintf(`
SELECT seq, progress, status, updated_at
FROM %s
WHERE report_key = $1`, s.table)

	var (
		seq int64
		r   progress.Report
	)
	err := s.pool.QueryRow(ctx, query, s.key).Scan(&seq, &r.Progress, &r.Status, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return progress.Report{}, store.ErrNotFound
		}
		return progress.Report{}, fmt.Errorf("failed to load report: %w", err)
	}
	r.Seq = uint64(seq)
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}
