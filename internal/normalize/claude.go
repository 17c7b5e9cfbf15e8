package normalize

import (
	"time"

	"github.com/agentmux/agentmux/internal/agent"
	"github.com/agentmux/agentmux/internal/events"
)

// Claude Code stream-json tool names.
const (
	claudeToolBash  = "Bash"
	claudeToolRead  = "Read"
	claudeToolWrite = "Write"
	claudeToolEdit  = "Edit"
)

// toolUseRef remembers an in-flight tool_use so the matching tool_result can
// be projected as a specific event type instead of a generic tool_result.
type toolUseRef struct {
	tool    string
	command string
	path    string
}

// claudeNormalizer handles the Claude Code stream-json protocol. It is
// stateful: tool_use ids are remembered until their tool_result arrives.
type claudeNormalizer struct {
	agent    string
	toolUses map[string]toolUseRef
}

func newClaudeNormalizer() *claudeNormalizer {
	return &claudeNormalizer{
		agent:    string(agent.KindClaude),
		toolUses: make(map[string]toolUseRef),
	}
}

func (n *claudeNormalizer) Normalize(raw []byte) []events.Event {
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
	case "thinking":
		return n.normalizeThinking(record, ts)
	case "assistant":
		return n.normalizeAssistant(record, ts)
	case "user":
		return n.normalizeUser(record, ts)
	case "result":
		ev := events.Event{
			Type:       events.TypeResult,
			Agent:      n.agent,
			Timestamp:  ts,
			Status:     getString(record, "subtype"),
			DurationMS: getInt64(record, "duration_ms"),
			Usage:      getMap(record, "usage"),
		}
		if ev.Status == "" {
			ev.Status = events.ResultSuccess
		}
		return []events.Event{ev}
	}

	return []events.Event{unknownEvent(n.agent, raw, ts)}
}

func (n *claudeNormalizer) normalizeThinking(record map[string]any, ts time.Time) []events.Event {
	text := getString(record, "text")
	switch getString(record, "subtype") {
	case "delta":
		// Empty deltas are keepalives; suppress them.
		if text == "" {
			return nil
		}
		return []events.Event{{
			Type: events.TypeThinking, Agent: n.agent, Timestamp: ts,
			Content: text, Complete: false,
		}}
	case "completed":
		return []events.Event{{
			Type: events.TypeThinking, Agent: n.agent, Timestamp: ts,
			Content: text, Complete: true,
		}}
	}
	return nil
}

func (n *claudeNormalizer) normalizeAssistant(record map[string]any, ts time.Time) []events.Event {
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
		switch getString(block, "type") {
		case "text":
			if text := getString(block, "text"); text != "" {
				out = append(out, events.Event{
					Type: events.TypeMessage, Agent: n.agent, Timestamp: ts,
					Content: text, Complete: true,
				})
			}
		case "thinking":
			if text := firstString(block, "thinking", "text"); text != "" {
				out = append(out, events.Event{
					Type: events.TypeThinking, Agent: n.agent, Timestamp: ts,
					Content: text, Complete: true,
				})
			}
		case "tool_use":
			out = append(out, n.normalizeToolUse(block, ts)...)
		}
	}
	return out
}

// normalizeToolUse emits a tool_use event and remembers the id so the paired
// tool_result projects to a specific event type.
func (n *claudeNormalizer) normalizeToolUse(block map[string]any, ts time.Time) []events.Event {
	tool := getString(block, "name")
	input := getMap(block, "input")
	id := getString(block, "id")

	if id != "" {
		ref := toolUseRef{tool: tool}
		switch tool {
		case claudeToolBash:
			ref.command = getString(input, "command")
		case claudeToolRead, claudeToolWrite, claudeToolEdit:
			ref.path = getString(input, "file_path")
		}
		n.toolUses[id] = ref
	}

	return []events.Event{{
		Type: events.TypeToolUse, Agent: n.agent, Timestamp: ts,
		Tool: tool, Args: input, ToolUseID: id,
	}}
}

// normalizeUser handles tool_result blocks carried on user messages.
func (n *claudeNormalizer) normalizeUser(record map[string]any, ts time.Time) []events.Event {
	message := getMap(record, "message")
	if message == nil {
		return nil
	}

	var out []events.Event
	for _, blockAny := range getSlice(message, "content") {
		block, ok := blockAny.(map[string]any)
		if !ok || getString(block, "type") != "tool_result" {
			continue
		}
		out = append(out, n.projectToolResult(block, ts)...)
	}
	return out
}

// projectToolResult uses the remembered tool_use to emit a specific event
// type. The pairing entry is consumed on match.
func (n *claudeNormalizer) projectToolResult(block map[string]any, ts time.Time) []events.Event {
	id := getString(block, "tool_use_id")
	isError := getBool(block, "is_error")

	ref, known := n.toolUses[id]
	if known {
		delete(n.toolUses, id)
	}

	if isError {
		msg := toolResultText(block)
		if msg == "" {
			msg = "tool failed: " + ref.tool
		}
		return []events.Event{events.NewError(n.agent, msg, ts)}
	}

	if known {
		switch ref.tool {
		case claudeToolBash:
			return bashEvents(n.agent, ref.command, ts)
		case claudeToolRead:
			return []events.Event{{
				Type: events.TypeFileRead, Agent: n.agent, Timestamp: ts,
				Tool: ref.tool, Path: ref.path,
			}}
		case claudeToolWrite, claudeToolEdit:
			return []events.Event{{
				Type: events.TypeFileWrite, Agent: n.agent, Timestamp: ts,
				Tool: ref.tool, Path: ref.path,
			}}
		}
	}

	return []events.Event{{
		Type: events.TypeToolResult, Agent: n.agent, Timestamp: ts,
		ToolUseID: id, Success: events.Bool(!isError),
	}}
}

// toolResultText pulls a readable string out of a tool_result content field,
// which is either a string or a list of text blocks.
func toolResultText(block map[string]any) string {
	switch content := block["content"].(type) {
	case string:
		return content
	case []any:
		for _, itemAny := range content {
			if item, ok := itemAny.(map[string]any); ok {
				if text := getString(item, "text"); text != "" {
					return text
				}
			}
		}
	}
	return ""
}
