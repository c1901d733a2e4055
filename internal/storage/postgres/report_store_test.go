package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-progress/internal/progress"
	"github.com/JakeFAU/realtime-progress/internal/store"
)

func TestReportStoreSaveUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewReportStoreWithPool(mock, "", "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	r := progress.Report{Progress: 42, Status: "Running", Seq: 9, UpdatedAt: now}

	mock.ExpectExec("INSERT INTO progress_reports").
		WithArgs("default", int64(9), 42.0, "Running", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveReport(context.Background(), r))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportStoreSaveWrapsErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewReportStoreWithPool(mock, "task_progress", "downloads")
	require.NoError(t, err)

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO task_progress").
		WithArgs("downloads", int64(1), 1.0, "x", pgxmock.AnyArg()).
		WillReturnError(boom)

	err = s.SaveReport(context.Background(), progress.Report{Progress: 1, Status: "x", Seq: 1})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportStoreLatest(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewReportStoreWithPool(mock, "", "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{"seq", "progress", "status", "updated_at"}).
		AddRow(int64(12), 75.5, "Downloading", now)
	mock.ExpectQuery("SELECT seq, progress, status, updated_at").
		WithArgs("default").
		WillReturnRows(rows)

	got, err := s.LatestReport(context.Background())
	require.NoError(t, err)
	require.Equal(t, progress.Report{Progress: 75.5, Status: "Downloading", Seq: 12, UpdatedAt: now}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportStoreLatestNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s, err := NewReportStoreWithPool(mock, "", "")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT seq").WithArgs("default").WillReturnError(pgx.ErrNoRows)

	_, err = s.LatestReport(context.Background())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestNewReportStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewReportStoreWithPool(mock, "bad;table", "")
	require.Error(t, err)
	_, err = NewReportStoreWithPool(nil, "", "")
	require.Error(t, err)
}

func TestNewReportStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewReportStore(context.Background(), ReportStoreConfig{})
	require.Error(t, err)
}
