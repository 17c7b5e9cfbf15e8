// Package summary folds canonical event logs into compact structured
// summaries for token-efficient polling, including the "delta since cursor"
// projection used by incremental status calls.
//
// Everything here is a pure function over an event slice; readers snapshot
// the log themselves and summaries never mutate shared state.
package summary

import (
	"time"

	"github.com/agentmux/agentmux/internal/events"
)

const (
	// maxBashCommands bounds the command list (last N kept).
	maxBashCommands = 100
	// maxErrors bounds the error list.
	maxErrors = 50
	// lastMessageCount is how many trailing complete messages are kept.
	lastMessageCount = 5
)

// Summary is the fold of an event sequence. File fields are ordered sets in
// first-seen order.
type Summary struct {
	FilesCreated  []string `json:"files_created,omitempty"`
	FilesModified []string `json:"files_modified,omitempty"`
	FilesRead     []string `json:"files_read,omitempty"`
	FilesDeleted  []string `json:"files_deleted,omitempty"`
	BashCommands  []string `json:"bash_commands,omitempty"`
	ToolsUsed     []string `json:"tools_used,omitempty"`
	ToolCallCount int      `json:"tool_call_count"`
	Errors        []string `json:"errors,omitempty"`
	LastMessages  []string `json:"last_messages,omitempty"`
	FinalMessage  string   `json:"final_message,omitempty"`
}

// HasErrors reports whether any error was folded in.
func (s *Summary) HasErrors() bool {
	return len(s.Errors) > 0
}

// accumulator carries the fold state, including membership sets that keep
// the ordered slices duplicate-free.
type accumulator struct {
	sum      Summary
	created  map[string]bool
	modified map[string]bool
	read     map[string]bool
	deleted  map[string]bool
	tools    map[string]bool
	messages []string
}

func newAccumulator() *accumulator {
	return &accumulator{
		created:  make(map[string]bool),
		modified: make(map[string]bool),
		read:     make(map[string]bool),
		deleted:  make(map[string]bool),
		tools:    make(map[string]bool),
	}
}

// seed marks items from a previous partition as already seen without adding
// them to the output, so a delta reports only first-seen-now items.
func (a *accumulator) seed(evs []events.Event) {
	for _, ev := range evs {
		switch ev.Type {
		case events.TypeFileCreate:
			a.created[ev.Path] = true
		case events.TypeFileWrite:
			a.modified[ev.Path] = true
		case events.TypeFileRead:
			a.read[ev.Path] = true
		case events.TypeFileDelete:
			a.deleted[ev.Path] = true
		case events.TypeToolUse:
			a.tools[ev.Tool] = true
		case events.TypeBash:
			a.tools["bash"] = true
		}
	}
}

func (a *accumulator) fold(ev events.Event) {
	switch ev.Type {
	case events.TypeFileCreate:
		a.sum.FilesCreated = addToSet(a.sum.FilesCreated, a.created, ev.Path)
		a.countTool(ev.Tool)
	case events.TypeFileWrite:
		a.sum.FilesModified = addToSet(a.sum.FilesModified, a.modified, ev.Path)
		a.countTool(ev.Tool)
	case events.TypeFileRead:
		a.sum.FilesRead = addToSet(a.sum.FilesRead, a.read, ev.Path)
		a.countTool(ev.Tool)
	case events.TypeFileDelete:
		a.sum.FilesDeleted = addToSet(a.sum.FilesDeleted, a.deleted, ev.Path)
		a.countTool(ev.Tool)
	case events.TypeBash:
		a.sum.BashCommands = appendBounded(a.sum.BashCommands, ev.Command, maxBashCommands)
		a.countTool("bash")
	case events.TypeToolUse:
		a.countTool(ev.Tool)
	case events.TypeError:
		if ev.Message != "" {
			a.sum.Errors = appendBounded(a.sum.Errors, ev.Message, maxErrors)
		}
	case events.TypeResult:
		if ev.Status != "" && ev.Status != events.ResultSuccess {
			// A non-success result is itself a diagnostic.
			a.sum.Errors = appendBounded(a.sum.Errors, "result: "+ev.Status, maxErrors)
		}
	case events.TypeMessage:
		if ev.Complete && ev.Content != "" {
			a.messages = append(a.messages, ev.Content)
		}
	}
}

func (a *accumulator) countTool(tool string) {
	a.sum.ToolCallCount++
	if tool != "" && !a.tools[tool] {
		a.tools[tool] = true
		a.sum.ToolsUsed = append(a.sum.ToolsUsed, tool)
	}
}

func (a *accumulator) finish() Summary {
	if n := len(a.messages); n > 0 {
		start := n - lastMessageCount
		if start < 0 {
			start = 0
		}
		a.sum.LastMessages = a.messages[start:]
		a.sum.FinalMessage = a.messages[n-1]
	}
	return a.sum
}

// Summarize folds a full event sequence into a Summary.
func Summarize(evs []events.Event) Summary {
	acc := newAccumulator()
	for _, ev := range evs {
		acc.fold(ev)
	}
	return acc.finish()
}

// Delta folds only what is new relative to the cursor: events with
// timestamp strictly after since, minus set items already seen before the
// cursor. The returned cursor is the max timestamp across the whole log, so
// the next call starts from the true frontier. A zero since means epoch.
func Delta(evs []events.Event, since time.Time) (Summary, time.Time) {
	cursor := since
	acc := newAccumulator()

	var old, fresh []events.Event
	for _, ev := range evs {
		if ev.Timestamp.After(cursor) {
			cursor = ev.Timestamp
		}
		if ev.Timestamp.After(since) {
			fresh = append(fresh, ev)
		} else {
			old = append(old, ev)
		}
	}

	acc.seed(old)
	for _, ev := range fresh {
		acc.fold(ev)
	}
	return acc.finish(), cursor
}

func addToSet(list []string, set map[string]bool, item string) []string {
	if item == "" || set[item] {
		return list
	}
	set[item] = true
	return append(list, item)
}

func appendBounded(list []string, item string, max int) []string {
	if item == "" {
		return list
	}
	list = append(list, item)
	if len(list) > max {
		list = list[len(list)-max:]
	}
	return list
}
