package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentmux/agentmux/internal/agent"
	"github.com/agentmux/agentmux/internal/manager"
	"github.com/agentmux/agentmux/internal/summary"
)

// EnvParentSessionID names the invoking agent's own session id. When set it
// becomes the default parent_session_id on spawn, so hierarchy tracking
// works without the caller threading ids through.
const EnvParentSessionID = "AGENT_SESSION_ID"

// agentStatus is the per-agent element of an agent_status response. The
// activity fields are new-only relative to the request cursor.
type agentStatus struct {
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type"`
	Status    string `json:"status"`
	Duration  string `json:"duration"`
	Cursor    string `json:"cursor"`
	HasErrors bool   `json:"has_errors"`

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

func (s *Server) spawnHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskName, err := req.RequireString("task_name")
		if err != nil || strings.TrimSpace(taskName) == "" {
			return mcp.NewToolResultError("task_name is required"), nil
		}
		agentType, err := req.RequireString("agent_type")
		if err != nil {
			return mcp.NewToolResultError("agent_type is required"), nil
		}
		prompt, err := req.RequireString("prompt")
		if err != nil || strings.TrimSpace(prompt) == "" {
			return mcp.NewToolResultError("prompt is required"), nil
		}

		parentSession := req.GetString("parent_session_id", "")
		if parentSession == "" {
			parentSession = strings.TrimSpace(os.Getenv(EnvParentSessionID))
		}

		meta, err := s.manager.Spawn(ctx, manager.SpawnRequest{
			TaskName:        taskName,
			AgentType:       agentType,
			Prompt:          prompt,
			Cwd:             req.GetString("cwd", ""),
			Mode:            req.GetString("mode", ""),
			Effort:          req.GetString("effort", ""),
			ParentSessionID: parentSession,
			WorkspaceDir:    req.GetString("workspace_dir", ""),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]any{
			"task_name":  meta.TaskName,
			"agent_id":   meta.ID,
			"agent_type": string(meta.Kind),
			"status":     string(meta.Status),
			"started_at": meta.StartedAt.Format(time.RFC3339Nano),
		})
	}
}

func (s *Server) statusHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskName := req.GetString("task_name", "")
		parentSession := req.GetString("parent_session_id", "")
		if taskName == "" && parentSession == "" {
			return mcp.NewToolResultError("task_name or parent_session_id is required"), nil
		}

		filter := req.GetString("filter", "all")
		switch filter {
		case "all", "running", "completed", "failed", "stopped":
		default:
			return mcp.NewToolResultError(fmt.Sprintf("invalid filter %q (running, completed, failed, stopped or all)", filter)), nil
		}

		var since time.Time
		if raw := req.GetString("since", ""); raw != "" {
			parsed, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid since timestamp %q: %v", raw, err)), nil
			}
			since = parsed
		}

		var metas []*agent.Meta
		if parentSession != "" && taskName == "" {
			metas = s.manager.ListByParentSession(parentSession)
		} else {
			metas = s.manager.ListByTask(taskName)
		}

		now := time.Now().UTC()
		counts := map[string]int{"running": 0, "completed": 0, "failed": 0, "stopped": 0}
		agents := make([]agentStatus, 0, len(metas))
		var cursor time.Time

		for _, meta := range metas {
			counts[string(meta.Status)]++
			if filter != "all" && string(meta.Status) != filter {
				continue
			}

			evs, err := s.manager.Store().ReadAll(meta.ID)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("read events for %s: %v", meta.ID, err)), nil
			}
			delta, agentCursor := summary.Delta(evs, since)
			if agentCursor.IsZero() {
				agentCursor = now
			}
			if agentCursor.After(cursor) {
				cursor = agentCursor
			}

			agents = append(agents, agentStatus{
				AgentID:       meta.ID,
				AgentType:     string(meta.Kind),
				Status:        string(meta.Status),
				Duration:      durationOf(meta, now),
				Cursor:        agentCursor.Format(time.RFC3339Nano),
				HasErrors:     delta.HasErrors(),
				FilesCreated:  delta.FilesCreated,
				FilesModified: delta.FilesModified,
				FilesRead:     delta.FilesRead,
				FilesDeleted:  delta.FilesDeleted,
				BashCommands:  summary.TruncateCommands(delta.BashCommands),
				ToolsUsed:     delta.ToolsUsed,
				ToolCallCount: delta.ToolCallCount,
				Errors:        delta.Errors,
				LastMessages:  delta.LastMessages,
				FinalMessage:  delta.FinalMessage,
			})
		}

		if cursor.IsZero() {
			cursor = now
		}
		return jsonResult(map[string]any{
			"task_name": taskName,
			"agents":    agents,
			"summary":   counts,
			"cursor":    cursor.Format(time.RFC3339Nano),
		})
	}
}

func (s *Server) stopHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskName, err := req.RequireString("task_name")
		if err != nil {
			return mcp.NewToolResultError("task_name is required"), nil
		}

		stopped := []string{}
		alreadyStopped := []string{}
		notFound := []string{}

		if agentID := req.GetString("agent_id", ""); agentID != "" {
			meta, ok := s.manager.Get(agentID)
			switch {
			case !ok:
				notFound = append(notFound, agentID)
			case meta.TaskName != taskName:
				return mcp.NewToolResultError(fmt.Sprintf("agent %s does not belong to task %q", agentID, taskName)), nil
			default:
				outcome, stopErr := s.manager.Stop(ctx, agentID)
				if stopErr != nil && outcome == "" {
					return mcp.NewToolResultError(stopErr.Error()), nil
				}
				if outcome == manager.OutcomeAlreadyStopped {
					alreadyStopped = append(alreadyStopped, agentID)
				} else {
					stopped = append(stopped, agentID)
				}
			}
		} else {
			var stopErr error
			stopped, alreadyStopped, stopErr = s.manager.StopByTask(ctx, taskName)
			if stopErr != nil {
				return mcp.NewToolResultError(stopErr.Error()), nil
			}
			if stopped == nil {
				stopped = []string{}
			}
			if alreadyStopped == nil {
				alreadyStopped = []string{}
			}
		}

		return jsonResult(map[string]any{
			"task_name":       taskName,
			"stopped":         stopped,
			"already_stopped": alreadyStopped,
			"not_found":       notFound,
		})
	}
}

func (s *Server) tasksHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 0)
		tasks := s.manager.Tasks(limit)
		if tasks == nil {
			tasks = []manager.TaskInfo{}
		}
		return jsonResult(map[string]any{"tasks": tasks})
	}
}

func durationOf(meta *agent.Meta, now time.Time) string {
	end := now
	if meta.CompletedAt != nil {
		end = *meta.CompletedAt
	}
	return end.Sub(meta.StartedAt).Round(time.Second).String()
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
