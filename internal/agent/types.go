// Package agent defines the shared domain types for supervised agents: the
// vendor kinds, execution modes, effort levels, lifecycle statuses and the
// persisted metadata record.
package agent

import (
	"fmt"
	"time"
)

// Kind is the vendor/family of a supervised agent. It selects the command
// template and the stream normalizer.
type Kind string

const (
	KindClaude   Kind = "claude"
	KindCodex    Kind = "codex"
	KindGemini   Kind = "gemini"
	KindCursor   Kind = "cursor"
	KindOpencode Kind = "opencode"
)

// Kinds lists every supported kind in display order.
func Kinds() []Kind {
	return []Kind{KindClaude, KindCodex, KindGemini, KindCursor, KindOpencode}
}

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	switch k {
	case KindClaude, KindCodex, KindGemini, KindCursor, KindOpencode:
		return k, nil
	}
	return "", fmt.Errorf("unknown agent type %q (supported: claude, codex, gemini, cursor, opencode)", s)
}

// Mode controls how much autonomy the child gets.
type Mode string

const (
	// ModePlan is read-only reasoning.
	ModePlan Mode = "plan"
	// ModeEdit permits edits in the working directory.
	ModeEdit Mode = "edit"
	// ModeRalph is full autonomy driven by a loop file in cwd.
	ModeRalph Mode = "ralph"
)

// ParseMode validates a mode string. Empty input returns the given default.
func ParseMode(s string, def Mode) (Mode, error) {
	if s == "" {
		return def, nil
	}
	m := Mode(s)
	switch m {
	case ModePlan, ModeEdit, ModeRalph:
		return m, nil
	}
	return "", fmt.Errorf("invalid mode %q (supported: plan, edit, ralph)", s)
}

// Effort is an advisory reasoning/verbosity hint mapped to CLI flags per kind.
type Effort string

const (
	EffortFast     Effort = "fast"
	EffortDefault  Effort = "default"
	EffortDetailed Effort = "detailed"
)

// ParseEffort validates an effort string. Empty input means EffortDefault.
func ParseEffort(s string) (Effort, error) {
	if s == "" {
		return EffortDefault, nil
	}
	e := Effort(s)
	switch e {
	case EffortFast, EffortDefault, EffortDetailed:
		return e, nil
	}
	return "", fmt.Errorf("invalid effort %q (supported: fast, default, detailed)", s)
}

// Status is the lifecycle state of an agent. Terminal states are absorbing.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// IsTerminal reports whether the status is one of the absorbing states.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// Meta is the persisted per-agent record (meta.json). PID is only populated
// while the agent is running; terminal writes clear it.
type Meta struct {
	ID              string     `json:"agent_id"`
	TaskName        string     `json:"task_name"`
	Kind            Kind       `json:"agent_type"`
	Prompt          string     `json:"prompt"`
	Cwd             string     `json:"cwd,omitempty"`
	Mode            Mode       `json:"mode"`
	Effort          Effort     `json:"effort,omitempty"`
	ParentSessionID string     `json:"parent_session_id,omitempty"`
	WorkspaceDir    string     `json:"workspace_dir,omitempty"`
	Status          Status     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	PID             int        `json:"pid,omitempty"`
	SessionID       string     `json:"session_id,omitempty"`
	EventLogPath    string     `json:"event_log_path"`
}

// Clone returns a shallow copy of the record.
func (m *Meta) Clone() *Meta {
	cp := *m
	return &cp
}
