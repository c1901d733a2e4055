package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-progress/internal/progress"
	"github.com/JakeFAU/realtime-progress/internal/store"
)

func TestReportStoreEmpty(t *testing.T) {
	t.Parallel()

	_, err := NewReportStore().LatestReport(context.Background())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestReportStoreIgnoresOlderSequence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewReportStore()
	require.NoError(t, s.SaveReport(ctx, progress.Report{Progress: 50, Status: "new", Seq: 5}))
	require.NoError(t, s.SaveReport(ctx, progress.Report{Progress: 20, Status: "old", Seq: 3}))

	got, err := s.LatestReport(ctx)
	require.NoError(t, err)
	require.Equal(t, "new", got.Status)

	require.NoError(t, s.SaveReport(ctx, progress.Report{Progress: 60, Status: "unsequenced"}))
	got, err = s.LatestReport(ctx)
	require.NoError(t, err)
	require.Equal(t, "unsequenced", got.Status)
}
