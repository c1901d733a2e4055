package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseReport(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		input   string
		want    Report
		wantErr bool
	}{
		{
			name:  "minimal",
			input: `{"progress": 42, "status": "Running"}`,
			want:  Report{Progress: 42, Status: "Running"},
		},
		{
			name:  "with sequence and timestamp",
			input: `{"progress": 99.5, "status": "Almost", "seq": 7, "updated_at": "2024-01-02T03:04:05Z"}`,
			want: Report{
				Progress:  99.5,
				Status:    "Almost",
				Seq:       7,
				UpdatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
			},
		},
		{name: "missing progress", input: `{"status": "Running"}`, wantErr: true},
		{name: "missing status", input: `{"progress": 3}`, wantErr: true},
		{name: "progress as string", input: `{"progress": "42", "status": "Running"}`, wantErr: true},
		{name: "status as number", input: `{"progress": 42, "status": 1}`, wantErr: true},
		{name: "above range", input: `{"progress": 100.1, "status": "x"}`, wantErr: true},
		{name: "below range", input: `{"progress": -1, "status": "x"}`, wantErr: true},
		{name: "not json", input: `<html>`, wantErr: true},
		{name: "null fields", input: `{"progress": null, "status": null}`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseReport([]byte(tc.input))
			if tc.wantErr {
				require.ErrorIs(t, err, ErrMalformedReport)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestReportNewerThan(t *testing.T) {
	t.Parallel()

	require.True(t, Report{Seq: 3}.NewerThan(Report{Seq: 2}))
	require.True(t, Report{Seq: 3}.NewerThan(Report{Seq: 3}))
	require.False(t, Report{Seq: 2}.NewerThan(Report{Seq: 3}))
	require.True(t, Report{}.NewerThan(Report{Seq: 3}))
	require.True(t, Report{Seq: 1}.NewerThan(Report{}))
	require.True(t, Report{Seq: 1, Epoch: "b"}.NewerThan(Report{Seq: 50, Epoch: "a"}))
	require.False(t, Report{Seq: 1, Epoch: "a"}.NewerThan(Report{Seq: 50, Epoch: "a"}))
}

func TestParseReportKeepsEpoch(t *testing.T) {
	t.Parallel()

	r, err := ParseReport([]byte(`{"progress": 5, "status": "x", "seq": 2, "epoch": "k3f"}`))
	require.NoError(t, err)
	require.Equal(t, "k3f", r.Epoch)
}

func TestReportClass(t *testing.T) {
	t.Parallel()

	require.Equal(t, ClassIdle, Report{}.Class())
	require.Equal(t, ClassRunning, Report{Progress: 10, Status: "Downloading"}.Class())
	require.Equal(t, ClassComplete, Report{Progress: 100, Status: "Download completed"}.Class())
}
