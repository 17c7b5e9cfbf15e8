package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseKind("copilot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copilot")

	_, err = ParseKind("")
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	got, err := ParseMode("", ModeEdit)
	require.NoError(t, err)
	assert.Equal(t, ModeEdit, got)

	got, err = ParseMode("ralph", ModeEdit)
	require.NoError(t, err)
	assert.Equal(t, ModeRalph, got)

	_, err = ParseMode("yolo", ModeEdit)
	assert.Error(t, err)
}

func TestParseEffort(t *testing.T) {
	got, err := ParseEffort("")
	require.NoError(t, err)
	assert.Equal(t, EffortDefault, got)

	got, err = ParseEffort("detailed")
	require.NoError(t, err)
	assert.Equal(t, EffortDetailed, got)

	_, err = ParseEffort("maximum")
	assert.Error(t, err)
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusStopped.IsTerminal())
}

func TestMetaClone(t *testing.T) {
	m := &Meta{ID: "a1", TaskName: "t", Status: StatusRunning, PID: 42}
	cp := m.Clone()
	cp.Status = StatusCompleted
	cp.PID = 0
	assert.Equal(t, StatusRunning, m.Status)
	assert.Equal(t, 42, m.PID)
}
