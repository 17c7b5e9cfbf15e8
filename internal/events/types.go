// Package events defines the canonical event schema every vendor stream is
// normalized into, plus the priority classes used to filter raw events.
package events

import (
	"encoding/json"
	"time"
)

// Type identifies a canonical event.
type Type string

const (
	TypeInit          Type = "init"
	TypeTurnStart     Type = "turn_start"
	TypeMessage       Type = "message"
	TypeThinking      Type = "thinking"
	TypeToolUse       Type = "tool_use"
	TypeBash          Type = "bash"
	TypeFileRead      Type = "file_read"
	TypeFileWrite     Type = "file_write"
	TypeFileCreate    Type = "file_create"
	TypeFileDelete    Type = "file_delete"
	TypeDirectoryList Type = "directory_list"
	TypeToolResult    Type = "tool_result"
	TypeError         Type = "error"
	TypeResult        Type = "result"
	TypeUnknown       Type = "unknown"
)

// Result statuses.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Event is one element of the canonical schema. Every event carries Type,
// Agent (the vendor kind) and a UTC Timestamp; the remaining fields are
// populated per type.
type Event struct {
	Type      Type      `json:"type"`
	Agent     string    `json:"agent"`
	Timestamp time.Time `json:"timestamp"`

	// init
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`

	// message / thinking
	Content  string `json:"content,omitempty"`
	Complete bool   `json:"complete,omitempty"`

	// tool_use / bash / file ops
	Tool    string         `json:"tool,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Command string         `json:"command,omitempty"`
	Path    string         `json:"path,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Success   *bool  `json:"success,omitempty"`

	// error
	Message string `json:"message,omitempty"`

	// result
	Status     string         `json:"status,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	Usage      map[string]any `json:"usage,omitempty"`

	// unknown
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Priority classes for raw-event filtering. Default responses never include
// verbose events.
type Priority int

const (
	PriorityVerbose Priority = iota
	PriorityImportant
	PriorityCritical
)

// Classify returns the priority class of an event.
func Classify(e Event) Priority {
	switch e.Type {
	case TypeInit, TypeResult, TypeError, TypeFileWrite, TypeFileCreate, TypeFileDelete:
		return PriorityCritical
	case TypeToolUse, TypeBash, TypeFileRead:
		return PriorityImportant
	case TypeMessage:
		if e.Complete {
			return PriorityImportant
		}
		return PriorityVerbose
	default:
		// thinking, incomplete fragments, unknown, turn_start, directory_list
		return PriorityVerbose
	}
}

// IsFileOp reports whether the event is one of the file operation types.
func IsFileOp(t Type) bool {
	switch t {
	case TypeFileRead, TypeFileWrite, TypeFileCreate, TypeFileDelete:
		return true
	}
	return false
}

// NewError builds an error event.
func NewError(agent, msg string, ts time.Time) Event {
	return Event{Type: TypeError, Agent: agent, Timestamp: ts, Message: msg}
}

// NewResult builds a result event.
func NewResult(agent, status string, ts time.Time) Event {
	return Event{Type: TypeResult, Agent: agent, Timestamp: ts, Status: status}
}

// Bool returns a pointer to b, for the Success field.
func Bool(b bool) *bool {
	return &b
}
