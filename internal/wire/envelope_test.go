package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-progress/internal/progress"
)

func TestUpdateFrameShape(t *testing.T) {
	t.Parallel()

	env, err := Update(progress.Report{Progress: 42, Status: "Running"})
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"progress_update","data":{"progress":42,"status":"Running"}}`, string(raw))
}

func TestRequestFrameHasNoData(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(Request(EventGetProgress))
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"get_progress"}`, string(raw))
}

func TestEnvelopeReport(t *testing.T) {
	t.Parallel()

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"event":"progress_update","data":{"progress":7,"status":"x","seq":3}}`), &env))
	r, err := env.Report()
	require.NoError(t, err)
	require.Equal(t, uint64(3), r.Seq)

	_, err = Envelope{Event: "noise"}.Report()
	require.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Envelope{Event: EventProgressUpdate, Data: json.RawMessage(`{"status":"x"}`)}.Report()
	require.ErrorIs(t, err, progress.ErrMalformedReport)
}
