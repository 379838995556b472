package bootstrap

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_JSONShape(t *testing.T) {
	t.Parallel()

	r := Result{
		Status: StatusError,
		State:  StateStorageReady,
		Phases: []PhaseResult{
			{Name: PhaseWaitStorage, Status: StatusOK, DurationMs: 12},
			{Name: PhaseEnsureBucket, Status: StatusError, Error: "access denied"},
		},
	}

	data, err := json.Marshal(&r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "error", got["status"])
	assert.Equal(t, "STORAGE_READY", got["state"])
	phases, ok := got["phases"].([]any)
	require.True(t, ok)
	require.Len(t, phases, 2)

	first := phases[0].(map[string]any)
	assert.Equal(t, "wait-storage", first["name"])
	assert.EqualValues(t, 12, first["durationMs"])
	_, hasError := first["error"]
	assert.False(t, hasError, "error is omitted when empty")

	second := phases[1].(map[string]any)
	assert.Equal(t, "access denied", second["error"])
}

func TestProbeResult_JSONShape(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(ProbeResult{Name: "lake", OK: true, LatencyMs: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"lake","ok":true,"latencyMs":3}`, string(data))
}
