package summary

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/internal/events"
)

var t0 = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func at(offset int) time.Time {
	return t0.Add(time.Duration(offset) * time.Second)
}

func sampleEvents() []events.Event {
	return []events.Event{
		{Type: events.TypeInit, Agent: "codex", Timestamp: at(0), SessionID: "s1"},
		{Type: events.TypeMessage, Agent: "codex", Timestamp: at(1), Content: "starting", Complete: true},
		{Type: events.TypeBash, Agent: "codex", Timestamp: at(2), Tool: "bash", Command: "go test ./..."},
		{Type: events.TypeFileCreate, Agent: "codex", Timestamp: at(3), Tool: "write", Path: "a.go"},
		{Type: events.TypeFileWrite, Agent: "codex", Timestamp: at(4), Tool: "edit", Path: "b.go"},
		{Type: events.TypeFileRead, Agent: "codex", Timestamp: at(5), Tool: "read", Path: "c.go"},
		{Type: events.TypeMessage, Agent: "codex", Timestamp: at(6), Content: "done", Complete: true},
		{Type: events.TypeResult, Agent: "codex", Timestamp: at(7), Status: events.ResultSuccess},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleEvents())

	assert.Equal(t, []string{"a.go"}, s.FilesCreated)
	assert.Equal(t, []string{"b.go"}, s.FilesModified)
	assert.Equal(t, []string{"c.go"}, s.FilesRead)
	assert.Equal(t, []string{"go test ./..."}, s.BashCommands)
	assert.Equal(t, 4, s.ToolCallCount)
	assert.Equal(t, []string{"starting", "done"}, s.LastMessages)
	assert.Equal(t, "done", s.FinalMessage)
	assert.False(t, s.HasErrors())
}

func TestSummarizeDeduplicatesPaths(t *testing.T) {
	evs := []events.Event{
		{Type: events.TypeFileWrite, Timestamp: at(0), Path: "x.go"},
		{Type: events.TypeFileWrite, Timestamp: at(1), Path: "x.go"},
		{Type: events.TypeFileWrite, Timestamp: at(2), Path: "y.go"},
	}
	s := Summarize(evs)
	assert.Equal(t, []string{"x.go", "y.go"}, s.FilesModified)
	assert.Equal(t, 3, s.ToolCallCount)
}

func TestSummarizeBounds(t *testing.T) {
	var evs []events.Event
	for i := 0; i < maxBashCommands+20; i++ {
		evs = append(evs, events.Event{
			Type: events.TypeBash, Timestamp: at(i), Command: fmt.Sprintf("cmd-%d", i),
		})
	}
	for i := 0; i < 10; i++ {
		evs = append(evs, events.Event{
			Type: events.TypeMessage, Timestamp: at(1000 + i),
			Content: fmt.Sprintf("msg-%d", i), Complete: true,
		})
	}
	s := Summarize(evs)
	require.Len(t, s.BashCommands, maxBashCommands)
	assert.Equal(t, "cmd-20", s.BashCommands[0])
	require.Len(t, s.LastMessages, lastMessageCount)
	assert.Equal(t, "msg-5", s.LastMessages[0])
	assert.Equal(t, "msg-9", s.FinalMessage)
}

func TestSummarizeErrors(t *testing.T) {
	evs := []events.Event{
		{Type: events.TypeError, Timestamp: at(0), Message: "boom"},
		{Type: events.TypeResult, Timestamp: at(1), Status: events.ResultError},
	}
	s := Summarize(evs)
	require.True(t, s.HasErrors())
	assert.Equal(t, []string{"boom", "result: error"}, s.Errors)
}

func TestDeltaStrictCursor(t *testing.T) {
	evs := sampleEvents()

	full, cursor := Delta(evs, time.Time{})
	assert.Equal(t, at(7), cursor)
	assert.Equal(t, []string{"a.go"}, full.FilesCreated)

	// An event exactly at the cursor is not new.
	empty, cursor2 := Delta(evs, cursor)
	assert.Equal(t, cursor, cursor2)
	assert.Empty(t, empty.FilesCreated)
	assert.Empty(t, empty.FilesModified)
	assert.Empty(t, empty.BashCommands)
	assert.Empty(t, empty.LastMessages)
	assert.Zero(t, empty.ToolCallCount)
}

func TestDeltaNewOnlyItems(t *testing.T) {
	evs := append(sampleEvents(),
		events.Event{Type: events.TypeFileWrite, Timestamp: at(10), Path: "b.go"},
		events.Event{Type: events.TypeFileWrite, Timestamp: at(11), Path: "new.go"},
	)
	delta, cursor := Delta(evs, at(7))
	assert.Equal(t, at(11), cursor)
	// b.go was first seen before the cursor, so only new.go is reported.
	assert.Equal(t, []string{"new.go"}, delta.FilesModified)
	assert.Equal(t, 2, delta.ToolCallCount)
}

func TestDeltaUnionEqualsFull(t *testing.T) {
	evs := sampleEvents()
	first, cursor := Delta(evs[:4], time.Time{})
	evs2 := append(append([]events.Event{}, evs...),
		events.Event{Type: events.TypeFileWrite, Timestamp: at(20), Path: "late.go"})
	second, _ := Delta(evs2, cursor)

	full := Summarize(evs2)
	var union []string
	union = append(union, first.FilesCreated...)
	union = append(union, first.FilesModified...)
	union = append(union, second.FilesCreated...)
	union = append(union, second.FilesModified...)

	var want []string
	want = append(want, full.FilesCreated...)
	want = append(want, full.FilesModified...)
	assert.ElementsMatch(t, want, union)
}

func TestDeltaCursorIsMaxOverAllEvents(t *testing.T) {
	// Out-of-order log: the cursor must still be the max timestamp.
	evs := []events.Event{
		{Type: events.TypeMessage, Timestamp: at(30), Content: "late", Complete: true},
		{Type: events.TypeMessage, Timestamp: at(10), Content: "early", Complete: true},
	}
	_, cursor := Delta(evs, time.Time{})
	assert.Equal(t, at(30), cursor)
}

func TestTruncateCommandLong(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := TruncateCommand(long)
	assert.Len(t, got, 120)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestTruncateCommandShortUnchanged(t *testing.T) {
	assert.Equal(t, "ls -la", TruncateCommand("ls -la"))
}

func TestTruncateCommandHeredoc(t *testing.T) {
	cmd := "cat <<'EOF' > /tmp/x\nsome body line\nanother line\nEOF"
	assert.Equal(t, "cat <<EOF > /tmp/x", TruncateCommand(cmd))
}

func TestTruncateCommandHeredocDoubleQuoted(t *testing.T) {
	cmd := "cat <<\"DONE\" >> out.md\nbody\nDONE"
	assert.Equal(t, "cat <<DONE >> out.md", TruncateCommand(cmd))
}

func TestTruncateCommands(t *testing.T) {
	got := TruncateCommands([]string{"ls", strings.Repeat("y", 200)})
	require.Len(t, got, 2)
	assert.Equal(t, "ls", got[0])
	assert.Len(t, got[1], 120)
	assert.Nil(t, TruncateCommands(nil))
}
