package normalize

import (
	"time"

	"github.com/agentmux/agentmux/internal/agent"
	"github.com/agentmux/agentmux/internal/events"
)

// geminiNormalizer handles the Gemini CLI JSON stream: assistant messages
// with a delta flag, flat tool_call records and a terminal result.
type geminiNormalizer struct {
	agent string
}

func newGeminiNormalizer() *geminiNormalizer {
	return &geminiNormalizer{agent: string(agent.KindGemini)}
}

func (n *geminiNormalizer) Normalize(raw []byte) []events.Event {
	record := decodeRecord(raw)
	if record == nil {
		return []events.Event{unknownEvent(n.agent, raw, time.Now().UTC())}
	}
	ts := recordTime(record)

	switch getString(record, "type") {
	case "init", "session_start":
		return []events.Event{{
			Type:      events.TypeInit,
			Agent:     n.agent,
			Timestamp: ts,
			SessionID: getString(record, "session_id"),
			Model:     getString(record, "model"),
		}}
	case "message":
		return n.normalizeMessage(record, ts)
	case "thinking", "thought":
		if text := firstString(record, "content", "text"); text != "" {
			return []events.Event{{
				Type: events.TypeThinking, Agent: n.agent, Timestamp: ts,
				Content: text, Complete: !getBool(record, "delta"),
			}}
		}
		return nil
	case "tool_call":
		return n.normalizeToolCall(record, ts)
	case "error":
		return []events.Event{events.NewError(n.agent, firstString(record, "message", "error"), ts)}
	case "result":
		status := getString(record, "status")
		if status == "" {
			status = events.ResultSuccess
		}
		return []events.Event{{
			Type: events.TypeResult, Agent: n.agent, Timestamp: ts,
			Status: status, Usage: getMap(record, "usage"),
		}}
	}

	return []events.Event{unknownEvent(n.agent, raw, ts)}
}

// normalizeMessage maps assistant messages; a set delta flag marks an
// incomplete streaming fragment.
func (n *geminiNormalizer) normalizeMessage(record map[string]any, ts time.Time) []events.Event {
	if getString(record, "role") != "assistant" {
		return nil
	}
	content := firstString(record, "content", "text")
	if content == "" {
		return nil
	}
	return []events.Event{{
		Type: events.TypeMessage, Agent: n.agent, Timestamp: ts,
		Content: content, Complete: !getBool(record, "delta"),
	}}
}

func (n *geminiNormalizer) normalizeToolCall(record map[string]any, ts time.Time) []events.Event {
	name := getString(record, "name")
	args := getMap(record, "args")
	if args == nil {
		args = getMap(record, "arguments")
	}

	switch toolFamily(name) {
	case familyWrite:
		return []events.Event{{
			Type: events.TypeFileWrite, Agent: n.agent, Timestamp: ts,
			Tool: name, Path: firstString(args, "path", "file_path", "absolute_path"),
		}}
	case familyRead:
		return []events.Event{{
			Type: events.TypeFileRead, Agent: n.agent, Timestamp: ts,
			Tool: name, Path: firstString(args, "path", "file_path", "absolute_path"),
		}}
	case familyShell:
		return bashEvents(n.agent, getString(args, "command"), ts)
	case familyDelete:
		return []events.Event{{
			Type: events.TypeFileDelete, Agent: n.agent, Timestamp: ts,
			Tool: name, Path: firstString(args, "path", "file_path"),
		}}
	}

	return []events.Event{{
		Type: events.TypeToolUse, Agent: n.agent, Timestamp: ts,
		Tool: name, Args: args,
	}}
}
