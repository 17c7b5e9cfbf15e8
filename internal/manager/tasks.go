package manager

import (
	"sort"
	"time"

	"github.com/agentmux/agentmux/internal/agent"
)

// defaultTaskLimit is used when a Tasks call omits the limit.
const defaultTaskLimit = 10

// TaskInfo is the aggregate view of one task name.
type TaskInfo struct {
	TaskName     string    `json:"task_name"`
	AgentCount   int       `json:"agent_count"`
	Running      int       `json:"running"`
	Completed    int       `json:"completed"`
	Failed       int       `json:"failed"`
	Stopped      int       `json:"stopped"`
	WorkspaceDir string    `json:"workspace_dir,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// Tasks aggregates the index by task name: created_at is the earliest start,
// modified_at the latest activity (now for running agents). Sorted by
// modified_at descending, truncated to limit.
func (m *Manager) Tasks(limit int) []TaskInfo {
	if limit <= 0 {
		limit = defaultTaskLimit
	}
	now := time.Now().UTC()

	byName := make(map[string]*TaskInfo)
	for _, meta := range m.ListAll() {
		info := byName[meta.TaskName]
		if info == nil {
			info = &TaskInfo{TaskName: meta.TaskName, CreatedAt: meta.StartedAt}
			byName[meta.TaskName] = info
		}
		info.AgentCount++
		switch meta.Status {
		case agent.StatusRunning:
			info.Running++
		case agent.StatusCompleted:
			info.Completed++
		case agent.StatusFailed:
			info.Failed++
		case agent.StatusStopped:
			info.Stopped++
		}
		if meta.StartedAt.Before(info.CreatedAt) {
			info.CreatedAt = meta.StartedAt
		}
		modified := now
		if meta.Status.IsTerminal() && meta.CompletedAt != nil {
			modified = *meta.CompletedAt
		}
		if modified.After(info.ModifiedAt) {
			info.ModifiedAt = modified
		}
		if info.WorkspaceDir == "" && meta.WorkspaceDir != "" {
			info.WorkspaceDir = meta.WorkspaceDir
		}
	}

	out := make([]TaskInfo, 0, len(byName))
	for _, info := range byName {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModifiedAt.Equal(out[j].ModifiedAt) {
			return out[i].ModifiedAt.After(out[j].ModifiedAt)
		}
		return out[i].TaskName < out[j].TaskName
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
