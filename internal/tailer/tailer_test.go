package tailer

import (
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/internal/agent"
	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/events"
	"github.com/agentmux/agentmux/internal/normalize"
	"github.com/agentmux/agentmux/internal/store"
)

func newAgentLog(t *testing.T) (*store.Store, *store.EventLog) {
	t.Helper()
	s, err := store.New(t.TempDir(), logger.Default())
	require.NoError(t, err)
	_, err = s.Create(&agent.Meta{
		ID: "agent-1", TaskName: "t", Kind: agent.KindCodex,
		Mode: agent.ModeEdit, Status: agent.StatusRunning,
		StartedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	log, err := s.OpenEventLog("agent-1")
	require.NoError(t, err)
	return s, log
}

func runTailer(t *testing.T, kind agent.Kind, input string) (Report, []events.Event) {
	t.Helper()
	s, log := newAgentLog(t)
	tl := New("agent-1", string(kind), normalize.ForKind(kind), log, logger.Default())
	rep, err := tl.Run(strings.NewReader(input))
	require.NoError(t, err)
	require.NoError(t, log.Close())
	evs, err := s.ReadAll("agent-1")
	require.NoError(t, err)
	return rep, evs
}

func TestRunAppendsNormalizedEvents(t *testing.T) {
	input := `{"type":"thread.started","thread_id":"t1"}
{"type":"item.completed","item":{"type":"agent_message","text":"hi"}}
{"type":"turn.completed","usage":{}}
`
	rep, evs := runTailer(t, agent.KindCodex, input)

	assert.Equal(t, 3, rep.Events)
	assert.Equal(t, "t1", rep.SessionID)
	assert.True(t, rep.SawResult)
	assert.Equal(t, events.ResultSuccess, rep.ResultStatus)
	require.Len(t, evs, 3)
	assert.Equal(t, events.TypeInit, evs[0].Type)
	assert.Equal(t, events.TypeResult, evs[2].Type)
}

func TestRunSkipsBlankLines(t *testing.T) {
	input := "\n\n{\"type\":\"turn.started\"}\n\n"
	rep, evs := runTailer(t, agent.KindCodex, input)
	assert.Equal(t, 1, rep.Events)
	assert.Zero(t, rep.Dropped)
	require.Len(t, evs, 1)
}

func TestRunCountsInvalidJSON(t *testing.T) {
	var b strings.Builder
	for i := 0; i < dropReportEvery; i++ {
		b.WriteString("this is not json\n")
	}
	b.WriteString(`{"type":"turn.started"}` + "\n")

	rep, evs := runTailer(t, agent.KindCodex, b.String())
	assert.Equal(t, dropReportEvery, rep.Dropped)

	// One error event for the batch of drops plus the valid record.
	var errCount int
	for _, ev := range evs {
		if ev.Type == events.TypeError {
			errCount++
		}
	}
	assert.Equal(t, 1, errCount)
	assert.Equal(t, 2, rep.Events)
}

func TestRunFewDropsNoErrorEvent(t *testing.T) {
	rep, evs := runTailer(t, agent.KindCodex, "garbage\nmore garbage\n")
	assert.Equal(t, 2, rep.Dropped)
	assert.Empty(t, evs)
	assert.Zero(t, rep.Events)
}

func TestRunTruncatesPathologicalLine(t *testing.T) {
	long := strings.Repeat("x", maxLineBytes+4096)
	input := long + "\n" + `{"type":"turn.started"}` + "\n"

	rep, evs := runTailer(t, agent.KindCodex, input)

	assert.Equal(t, 2, rep.Events)
	require.Len(t, evs, 2)

	trunc := evs[0]
	assert.Equal(t, events.TypeError, trunc.Type)
	assert.Equal(t, "codex", trunc.Agent)
	assert.Contains(t, trunc.Message, "truncated")

	// The first maxLineBytes of the oversized line ride along on the event.
	var payload string
	require.NoError(t, json.Unmarshal(trunc.Raw, &payload))
	assert.Len(t, payload, maxLineBytes)
	assert.Equal(t, strings.Repeat("x", maxLineBytes), payload)

	assert.Equal(t, events.TypeTurnStart, evs[1].Type)
}

func TestRunStampsAgentID(t *testing.T) {
	_, evs := runTailer(t, agent.KindCodex, `{"type":"turn.started"}`+"\n")
	require.Len(t, evs, 1)
	// Normalizers stamp the kind; the tailer leaves non-empty agents alone.
	assert.Equal(t, "codex", evs[0].Agent)
}

func TestRunNoTrailingNewline(t *testing.T) {
	rep, evs := runTailer(t, agent.KindCodex, `{"type":"turn.started"}`)
	assert.Equal(t, 1, rep.Events)
	require.Len(t, evs, 1)
}

func TestRunPipeError(t *testing.T) {
	s, log := newAgentLog(t)
	defer log.Close()

	pr, pw := io.Pipe()
	tl := New("agent-1", string(agent.KindCodex), normalize.ForKind(agent.KindCodex), log, logger.Default())

	go func() {
		_, _ = pw.Write([]byte(`{"type":"turn.started"}` + "\n"))
		_ = pw.CloseWithError(io.ErrUnexpectedEOF)
	}()

	rep, err := tl.Run(pr)
	require.Error(t, err)
	assert.Equal(t, 1, rep.Events)

	evs, readErr := s.ReadAll("agent-1")
	require.NoError(t, readErr)
	assert.Len(t, evs, 1)
}
