package normalize

import (
	"time"

	"github.com/agentmux/agentmux/internal/agent"
	"github.com/agentmux/agentmux/internal/events"
)

// cursorNormalizer handles the cursor-agent stream: claude-style system and
// assistant records plus tool_call records whose payload key names the tool
// (shellToolCall, editToolCall, readToolCall, ...).
type cursorNormalizer struct {
	agent string
}

func newCursorNormalizer() *cursorNormalizer {
	return &cursorNormalizer{agent: string(agent.KindCursor)}
}

func (n *cursorNormalizer) Normalize(raw []byte) []events.Event {
	record := decodeRecord(raw)
	if record == nil {
		return []events.Event{unknownEvent(n.agent, raw, time.Now().UTC())}
	}
	ts := recordTime(record)

	switch getString(record, "type") {
	case "system":
		if getString(record, "subtype") == "init" {
			return []events.Event{{
				Type:      events.TypeInit,
				Agent:     n.agent,
				Timestamp: ts,
				SessionID: getString(record, "session_id"),
				Model:     getString(record, "model"),
			}}
		}
	case "assistant":
		return n.normalizeAssistant(record, ts)
	case "tool_call":
		// Started records carry no results yet; completed ones are the
		// authoritative projection.
		if getString(record, "subtype") != "completed" {
			return nil
		}
		return n.normalizeToolCall(getMap(record, "tool_call"), raw, ts)
	case "result":
		status := events.ResultSuccess
		if getBool(record, "is_error") {
			status = events.ResultError
		}
		return []events.Event{{
			Type: events.TypeResult, Agent: n.agent, Timestamp: ts,
			Status: status, DurationMS: getInt64(record, "duration_ms"),
		}}
	}

	return []events.Event{unknownEvent(n.agent, raw, ts)}
}

func (n *cursorNormalizer) normalizeAssistant(record map[string]any, ts time.Time) []events.Event {
	message := getMap(record, "message")
	if message == nil {
		return nil
	}
	var out []events.Event
	for _, blockAny := range getSlice(message, "content") {
		block, ok := blockAny.(map[string]any)
		if !ok {
			continue
		}
		if getString(block, "type") == "text" {
			if text := getString(block, "text"); text != "" {
				out = append(out, events.Event{
					Type: events.TypeMessage, Agent: n.agent, Timestamp: ts,
					Content: text, Complete: true,
				})
			}
		}
	}
	return out
}

// normalizeToolCall projects the nested <kind>ToolCall payload.
func (n *cursorNormalizer) normalizeToolCall(toolCall map[string]any, raw []byte, ts time.Time) []events.Event {
	if toolCall == nil {
		return []events.Event{unknownEvent(n.agent, raw, ts)}
	}

	if shell := getMap(toolCall, "shellToolCall"); shell != nil {
		args := getMap(shell, "args")
		return bashEvents(n.agent, getString(args, "command"), ts)
	}
	if edit := getMap(toolCall, "editToolCall"); edit != nil {
		args := getMap(edit, "args")
		return []events.Event{{
			Type: events.TypeFileWrite, Agent: n.agent, Timestamp: ts,
			Tool: "edit", Path: firstString(args, "path", "file_path"),
		}}
	}
	if write := getMap(toolCall, "writeToolCall"); write != nil {
		args := getMap(write, "args")
		return []events.Event{{
			Type: events.TypeFileCreate, Agent: n.agent, Timestamp: ts,
			Tool: "write", Path: firstString(args, "path", "file_path"),
		}}
	}
	if read := getMap(toolCall, "readToolCall"); read != nil {
		args := getMap(read, "args")
		return []events.Event{{
			Type: events.TypeFileRead, Agent: n.agent, Timestamp: ts,
			Tool: "read", Path: firstString(args, "path", "file_path"),
		}}
	}
	if del := getMap(toolCall, "deleteToolCall"); del != nil {
		args := getMap(del, "args")
		return []events.Event{{
			Type: events.TypeFileDelete, Agent: n.agent, Timestamp: ts,
			Tool: "delete", Path: firstString(args, "path", "file_path"),
		}}
	}
	if list := getMap(toolCall, "listToolCall"); list != nil {
		args := getMap(list, "args")
		return []events.Event{{
			Type: events.TypeDirectoryList, Agent: n.agent, Timestamp: ts,
			Tool: "list", Path: firstString(args, "path", "directory"),
		}}
	}

	// Some other toolCall variant; surface it as a generic tool_use with
	// whatever name the payload leads with.
	for key, value := range toolCall {
		if args, ok := value.(map[string]any); ok {
			return []events.Event{{
				Type: events.TypeToolUse, Agent: n.agent, Timestamp: ts,
				Tool: key, Args: getMap(args, "args"),
			}}
		}
	}
	return []events.Event{unknownEvent(n.agent, raw, ts)}
}
