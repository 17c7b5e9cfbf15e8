// Package mcpserver exposes the supervisor's four tools over MCP: stdio by
// default, plus SSE and streamable HTTP transports on a gin router when a
// port is configured.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/common/tracing"
	"github.com/agentmux/agentmux/internal/manager"
)

const (
	serverName    = "agentmux"
	serverVersion = "1.0.0"
)

// Server wires the tool handlers into an MCP server with its transports.
type Server struct {
	manager    *manager.Manager
	mcpServer  *server.MCPServer
	sseServer  *server.SSEServer
	httpServer *server.StreamableHTTPServer
	logger     *logger.Logger
	tracer     trace.Tracer

	mu      sync.Mutex
	running bool
}

// New creates the server and registers the tools. port is only used to build
// the SSE base URL; pass 0 when serving stdio only.
func New(mgr *manager.Manager, port int, log *logger.Logger) *Server {
	s := &Server{
		manager: mgr,
		logger:  log.WithFields(zap.String("component", "mcp-server")),
		tracer:  tracing.Tracer("mcpserver"),
	}

	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
	)
	s.registerTools()

	if port > 0 {
		s.sseServer = server.NewSSEServer(s.mcpServer,
			server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)),
		)
		s.httpServer = server.NewStreamableHTTPServer(s.mcpServer,
			server.WithEndpointPath("/mcp"),
		)
	}
	return s
}

// ServeStdio serves the MCP protocol on stdin/stdout until ctx is done or
// the client disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("serving MCP on stdio")
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// RegisterRoutes adds the network MCP transports and the health endpoint to
// the gin router. Only valid when the server was created with a port.
func (s *Server) RegisterRoutes(router gin.IRouter) {
	router.GET("/sse", gin.WrapH(s.sseServer.SSEHandler()))
	router.POST("/message", gin.WrapH(s.sseServer.MessageHandler()))
	router.Any("/mcp", gin.WrapH(s.httpServer))
	router.GET("/healthz", s.healthzHandler)
	s.logger.Info("registered MCP routes",
		zap.String("sse", "/sse"),
		zap.String("http", "/mcp"),
	)
}

func (s *Server) healthzHandler(c *gin.Context) {
	running, total := s.manager.Counts()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": running,
		"agents":  total,
	})
}

// Close shuts down the network transports.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sseServer != nil {
		if err := s.sseServer.Shutdown(ctx); err != nil {
			s.logger.Warn("shutdown SSE server", zap.Error(err))
		}
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("shutdown HTTP server", zap.Error(err))
		}
	}
	return nil
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("spawn_agent",
			mcp.WithDescription("Spawn a coding agent as a supervised child process. Fire and forget: poll agent_status for progress."),
			mcp.WithString("task_name", mcp.Required(), mcp.Description("Label grouping related agents; non-unique")),
			mcp.WithString("agent_type", mcp.Required(), mcp.Description("One of: claude, codex, gemini, cursor, opencode")),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("The task prompt for the agent")),
			mcp.WithString("cwd", mcp.Description("Working directory for the child process")),
			mcp.WithString("mode", mcp.Description("plan (read-only), edit (default), or ralph (autonomous loop; requires PROMPT.md in cwd)")),
			mcp.WithString("effort", mcp.Description("fast, default, or detailed")),
			mcp.WithString("parent_session_id", mcp.Description("Session id of the spawning agent; defaults to AGENT_SESSION_ID")),
			mcp.WithString("workspace_dir", mcp.Description("Informational workspace directory")),
		),
		s.wrapHandler("spawn_agent", s.spawnHandler()),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("agent_status",
			mcp.WithDescription("Status and new-activity summary for agents in a task or parent session. Pass the returned cursor as 'since' on the next call to get only new activity."),
			mcp.WithString("task_name", mcp.Description("Task to inspect; required unless parent_session_id is given")),
			mcp.WithString("parent_session_id", mcp.Description("List agents spawned under this session instead of by task")),
			mcp.WithString("filter", mcp.Description("running, completed, failed, stopped or all (default all)")),
			mcp.WithString("since", mcp.Description("ISO-8601 cursor; only activity strictly after it is returned")),
		),
		s.wrapHandler("agent_status", s.statusHandler()),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("stop_agent",
			mcp.WithDescription("Stop one agent or every running agent in a task (SIGTERM, then SIGKILL after a grace period)."),
			mcp.WithString("task_name", mcp.Required(), mcp.Description("The task to stop agents in")),
			mcp.WithString("agent_id", mcp.Description("Stop only this agent; must belong to task_name")),
		),
		s.wrapHandler("stop_agent", s.stopHandler()),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List known tasks with per-status agent counts, most recently active first."),
			mcp.WithNumber("limit", mcp.Description("Maximum tasks to return (default 10)")),
		),
		s.wrapHandler("list_tasks", s.tasksHandler()),
	)
}

// wrapHandler adds debug logging and a tracing span around a tool handler.
func (s *Server) wrapHandler(toolName string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		ctx, span := s.tracer.Start(ctx, "mcp.tool/"+toolName,
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		s.logger.Debug("MCP tool call",
			zap.String("tool", toolName),
			zap.Any("args", req.GetArguments()),
		)

		result, err := handler(ctx, req)
		duration := time.Since(start)
		switch {
		case err != nil:
			span.RecordError(err)
			s.logger.Debug("MCP tool error",
				zap.String("tool", toolName),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		case result != nil && result.IsError:
			s.logger.Debug("MCP tool returned error result",
				zap.String("tool", toolName),
				zap.Duration("duration", duration),
			)
		default:
			s.logger.Debug("MCP tool done",
				zap.String("tool", toolName),
				zap.Duration("duration", duration),
			)
		}
		return result, err
	}
}
