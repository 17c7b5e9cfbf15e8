package normalize

import (
	"time"

	"github.com/agentmux/agentmux/internal/agent"
	"github.com/agentmux/agentmux/internal/events"
)

// Codex item types carried on item.completed records.
const (
	codexItemAgentMessage     = "agent_message"
	codexItemReasoning        = "reasoning"
	codexItemCommandExecution = "command_execution"
	codexItemFileChange       = "file_change"
	codexItemToolCall         = "tool_call"
	codexItemError            = "error"
)

// codexNormalizer handles the Codex thread/turn/item event stream.
type codexNormalizer struct {
	agent string
}

func newCodexNormalizer() *codexNormalizer {
	return &codexNormalizer{agent: string(agent.KindCodex)}
}

func (n *codexNormalizer) Normalize(raw []byte) []events.Event {
	record := decodeRecord(raw)
	if record == nil {
		return []events.Event{unknownEvent(n.agent, raw, time.Now().UTC())}
	}
	ts := recordTime(record)

	switch getString(record, "type") {
	case "thread.started":
		return []events.Event{{
			Type:      events.TypeInit,
			Agent:     n.agent,
			Timestamp: ts,
			SessionID: getString(record, "thread_id"),
		}}
	case "turn.started":
		return []events.Event{{Type: events.TypeTurnStart, Agent: n.agent, Timestamp: ts}}
	case "turn.completed":
		return []events.Event{{
			Type:      events.TypeResult,
			Agent:     n.agent,
			Timestamp: ts,
			Status:    events.ResultSuccess,
			Usage:     getMap(record, "usage"),
		}}
	case "turn.failed":
		out := []events.Event{events.NewResult(n.agent, events.ResultError, ts)}
		if errObj := getMap(record, "error"); errObj != nil {
			if msg := getString(errObj, "message"); msg != "" {
				out = append([]events.Event{events.NewError(n.agent, msg, ts)}, out...)
			}
		}
		return out
	case "item.started", "item.updated":
		// Only completed items are authoritative.
		return nil
	case "item.completed":
		return n.normalizeItem(getMap(record, "item"), raw, ts)
	case "error":
		return []events.Event{events.NewError(n.agent, getString(record, "message"), ts)}
	}

	return []events.Event{unknownEvent(n.agent, raw, ts)}
}

func (n *codexNormalizer) normalizeItem(item map[string]any, raw []byte, ts time.Time) []events.Event {
	if item == nil {
		return []events.Event{unknownEvent(n.agent, raw, ts)}
	}

	switch getString(item, "type") {
	case codexItemAgentMessage:
		if text := getString(item, "text"); text != "" {
			return []events.Event{{
				Type: events.TypeMessage, Agent: n.agent, Timestamp: ts,
				Content: text, Complete: true,
			}}
		}
		return nil
	case codexItemReasoning:
		if text := getString(item, "text"); text != "" {
			return []events.Event{{
				Type: events.TypeThinking, Agent: n.agent, Timestamp: ts,
				Content: text, Complete: true,
			}}
		}
		return nil
	case codexItemCommandExecution:
		return bashEvents(n.agent, getString(item, "command"), ts)
	case codexItemFileChange:
		return n.normalizeFileChange(item, ts)
	case codexItemToolCall:
		return n.normalizeToolCall(item, ts)
	case codexItemError:
		return []events.Event{events.NewError(n.agent, getString(item, "message"), ts)}
	}

	return []events.Event{unknownEvent(n.agent, raw, ts)}
}

// normalizeFileChange emits one file event per change. Codex reports the
// change kind per path (add/update/delete).
func (n *codexNormalizer) normalizeFileChange(item map[string]any, ts time.Time) []events.Event {
	var out []events.Event
	for _, changeAny := range getSlice(item, "changes") {
		change, ok := changeAny.(map[string]any)
		if !ok {
			continue
		}
		path := getString(change, "path")
		if path == "" {
			continue
		}
		var typ events.Type
		switch getString(change, "kind") {
		case "add", "create":
			typ = events.TypeFileCreate
		case "delete", "remove":
			typ = events.TypeFileDelete
		default:
			typ = events.TypeFileWrite
		}
		out = append(out, events.Event{
			Type: typ, Agent: n.agent, Timestamp: ts,
			Tool: "file_change", Path: path,
		})
	}
	// A file_change item with a bare path and no changes array still counts.
	if len(out) == 0 {
		if path := getString(item, "path"); path != "" {
			out = append(out, events.Event{
				Type: events.TypeFileWrite, Agent: n.agent, Timestamp: ts,
				Tool: "file_change", Path: path,
			})
		}
	}
	return out
}

// normalizeToolCall maps named tool calls onto file/bash events where the
// name makes the intent clear, falling back to a generic tool_use.
func (n *codexNormalizer) normalizeToolCall(item map[string]any, ts time.Time) []events.Event {
	name := firstString(item, "name", "tool")
	args := getMap(item, "arguments")
	if args == nil {
		args = getMap(item, "args")
	}

	switch toolFamily(name) {
	case familyWrite:
		return []events.Event{{
			Type: events.TypeFileWrite, Agent: n.agent, Timestamp: ts,
			Tool: name, Path: firstString(args, "path", "file_path"),
		}}
	case familyRead:
		return []events.Event{{
			Type: events.TypeFileRead, Agent: n.agent, Timestamp: ts,
			Tool: name, Path: firstString(args, "path", "file_path"),
		}}
	case familyShell:
		return bashEvents(n.agent, getString(args, "command"), ts)
	}

	return []events.Event{{
		Type: events.TypeToolUse, Agent: n.agent, Timestamp: ts,
		Tool: name, Args: args,
	}}
}
