package terminal

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-progress/internal/display"
	"github.com/JakeFAU/realtime-progress/internal/progress"
)

func TestSurfaceRendersStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := New(Config{Writer: &buf, Width: 10})

	require.True(t, display.Render(s, progress.Report{Progress: 42, Status: "Downloading: 42% at 1MiB/s"}))
	require.Contains(t, buf.String(), "Downloading: 42% at 1MiB/s")
	require.Equal(t, 42, s.value.last)
}

func TestSurfaceClampsValue(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := New(Config{Writer: &buf})
	el, ok := s.Element(display.ProgressElementID)
	require.True(t, ok)
	el.(display.ValueSetter).SetValue(250)
	require.Equal(t, 100, s.value.last)
}

func TestSurfaceUnknownElement(t *testing.T) {
	t.Parallel()

	s := New(Config{Writer: &bytes.Buffer{}})
	_, ok := s.Element("spinner")
	require.False(t, ok)
}

func TestSurfaceClose(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := New(Config{Writer: &buf})
	require.NoError(t, s.Close())
	require.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestSurfaceShowsCompletionStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := New(Config{Writer: &buf, Width: 10})

	require.True(t, display.Render(s, progress.Report{Progress: 60, Status: "Downloading: 60% at 1MiB/s"}))
	mark := buf.Len()
	require.True(t, display.Render(s, progress.Report{Progress: 100, Status: "Download completed"}))

	out := buf.String()[mark:]
	idx := strings.LastIndex(out, "100%")
	require.GreaterOrEqual(t, idx, 0)
	last := out[idx:]
	require.Contains(t, last, "Download completed")
	require.True(t, s.bar.IsFinished())
}

func TestSurfaceRestartsAfterCompletion(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := New(Config{Writer: &buf, Width: 10})

	require.True(t, display.Render(s, progress.Report{Progress: 100, Status: "Download completed"}))
	require.Contains(t, buf.String(), "Download completed")

	mark := buf.Len()
	require.True(t, display.Render(s, progress.Report{Progress: 30, Status: "Downloading: 30% at 1MiB/s"}))

	out := buf.String()[mark:]
	require.Contains(t, out, "Downloading: 30% at 1MiB/s")
	require.Contains(t, out, "30%")
	require.False(t, s.bar.IsFinished())
	require.Equal(t, int64(30), s.bar.State().CurrentNum)
}

func TestSurfaceMovesBackwards(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := New(Config{Writer: &buf, Width: 10})

	require.True(t, display.Render(s, progress.Report{Progress: 70, Status: "first"}))
	mark := buf.Len()
	require.True(t, display.Render(s, progress.Report{Progress: 20, Status: "second"}))

	require.Contains(t, buf.String()[mark:], "second")
	require.Equal(t, int64(20), s.bar.State().CurrentNum)
}
