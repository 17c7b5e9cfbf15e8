package normalize

import (
	"time"

	"github.com/agentmux/agentmux/internal/agent"
	"github.com/agentmux/agentmux/internal/events"
)

// opencodeNormalizer handles the opencode part stream: step_start/step_finish
// framing with text, reasoning and tool_use parts in between. Both the
// snake_case and kebab-case spellings of the step markers occur in the wild.
type opencodeNormalizer struct {
	agent string
}

func newOpencodeNormalizer() *opencodeNormalizer {
	return &opencodeNormalizer{agent: string(agent.KindOpencode)}
}

func (n *opencodeNormalizer) Normalize(raw []byte) []events.Event {
	record := decodeRecord(raw)
	if record == nil {
		return []events.Event{unknownEvent(n.agent, raw, time.Now().UTC())}
	}
	ts := recordTime(record)
	part := getMap(record, "part")

	switch getString(record, "type") {
	case "step_start", "step-start":
		sessionID := ""
		if part != nil {
			sessionID = firstString(part, "sessionID", "session_id")
		}
		return []events.Event{{
			Type: events.TypeInit, Agent: n.agent, Timestamp: ts,
			SessionID: sessionID,
		}}
	case "text":
		if part != nil {
			if text := getString(part, "text"); text != "" {
				return []events.Event{{
					Type: events.TypeMessage, Agent: n.agent, Timestamp: ts,
					Content: text, Complete: true,
				}}
			}
		}
		return nil
	case "reasoning":
		if part != nil {
			if text := getString(part, "text"); text != "" {
				return []events.Event{{
					Type: events.TypeThinking, Agent: n.agent, Timestamp: ts,
					Content: text, Complete: true,
				}}
			}
		}
		return nil
	case "tool_use", "tool":
		return n.normalizeToolUse(part, raw, ts)
	case "step_finish", "step-finish":
		status := events.ResultError
		if part != nil && getString(part, "reason") == "stop" {
			status = events.ResultSuccess
		}
		return []events.Event{events.NewResult(n.agent, status, ts)}
	case "error":
		return []events.Event{events.NewError(n.agent, firstString(record, "message", "error"), ts)}
	}

	return []events.Event{unknownEvent(n.agent, raw, ts)}
}

func (n *opencodeNormalizer) normalizeToolUse(part map[string]any, raw []byte, ts time.Time) []events.Event {
	if part == nil {
		return []events.Event{unknownEvent(n.agent, raw, ts)}
	}
	tool := getString(part, "tool")
	state := getMap(part, "state")
	var input map[string]any
	if state != nil {
		input = getMap(state, "input")
	}

	switch toolFamily(tool) {
	case familyShell:
		return bashEvents(n.agent, getString(input, "command"), ts)
	case familyWrite:
		return []events.Event{{
			Type: events.TypeFileWrite, Agent: n.agent, Timestamp: ts,
			Tool: tool, Path: firstString(input, "filePath", "path", "file_path"),
		}}
	case familyRead:
		return []events.Event{{
			Type: events.TypeFileRead, Agent: n.agent, Timestamp: ts,
			Tool: tool, Path: firstString(input, "filePath", "path", "file_path"),
		}}
	case familyDelete:
		return []events.Event{{
			Type: events.TypeFileDelete, Agent: n.agent, Timestamp: ts,
			Tool: tool, Path: firstString(input, "filePath", "path", "file_path"),
		}}
	case familyList:
		return []events.Event{{
			Type: events.TypeDirectoryList, Agent: n.agent, Timestamp: ts,
			Tool: tool, Path: firstString(input, "path", "directory"),
		}}
	}

	return []events.Event{{
		Type: events.TypeToolUse, Agent: n.agent, Timestamp: ts,
		Tool: tool, Args: input,
	}}
}
