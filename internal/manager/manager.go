// Package manager owns the in-memory agent index and the child process
// lifecycle: spawn, stop with grace escalation, startup recovery and task
// aggregation. It is the only writer of agent metadata after creation.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/agent"
	"github.com/agentmux/agentmux/internal/common/config"
	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/events"
	"github.com/agentmux/agentmux/internal/events/bus"
	"github.com/agentmux/agentmux/internal/normalize"
	"github.com/agentmux/agentmux/internal/store"
	"github.com/agentmux/agentmux/internal/tailer"
)

var (
	// ErrPoolExhausted is returned when the running-agent cap is reached.
	ErrPoolExhausted = errors.New("agent pool exhausted")
	// ErrNotFound is returned for unknown agent ids.
	ErrNotFound = errors.New("agent not found")
)

// Stop outcomes.
const (
	OutcomeStopped        = "stopped"
	OutcomeAlreadyStopped = "already_stopped"
)

// SpawnRequest carries the spawn inputs as received from the tool surface.
type SpawnRequest struct {
	TaskName        string
	AgentType       string
	Prompt          string
	Cwd             string
	Mode            string
	Effort          string
	ParentSessionID string
	WorkspaceDir    string
}

// supervised pairs a metadata record with its live process, if any. Recovered
// historical agents have no cmd and a nil done channel.
type supervised struct {
	mu            sync.Mutex
	meta          *agent.Meta
	cmd           *exec.Cmd
	log           *store.EventLog
	done          chan struct{}
	stopRequested bool
}

// Manager supervises all agents of one store root.
type Manager struct {
	cfg    config.ManagerConfig
	store  *store.Store
	bus    bus.EventBus
	logger *logger.Logger

	mu     sync.RWMutex
	agents map[string]*supervised

	wg sync.WaitGroup
}

// New creates a Manager. Call Recover before serving requests.
func New(cfg config.ManagerConfig, st *store.Store, eb bus.EventBus, log *logger.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		store:  st,
		bus:    eb,
		logger: log.WithFields(zap.String("component", "manager")),
		agents: make(map[string]*supervised),
	}
}

// Store exposes the backing store for read paths (status deltas).
func (m *Manager) Store() *store.Store {
	return m.store
}

// Spawn validates the request, creates the agent record and forks the child.
// It returns the persisted metadata snapshot; the caller must treat it as
// fire and forget.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (*agent.Meta, error) {
	kind, err := agent.ParseKind(req.AgentType)
	if err != nil {
		return nil, err
	}
	mode, err := agent.ParseMode(req.Mode, agent.Mode(m.cfg.DefaultMode))
	if err != nil {
		return nil, err
	}
	effort, err := agent.ParseEffort(req.Effort)
	if err != nil {
		return nil, err
	}

	prompt := req.Prompt
	if mode == agent.ModeRalph {
		if err := validateRalphCwd(req.Cwd); err != nil {
			return nil, err
		}
		prompt = ralphPrompt(prompt)
	}

	meta := &agent.Meta{
		TaskName:        req.TaskName,
		Kind:            kind,
		Prompt:          req.Prompt,
		Cwd:             req.Cwd,
		Mode:            mode,
		Effort:          effort,
		ParentSessionID: req.ParentSessionID,
		WorkspaceDir:    req.WorkspaceDir,
		Status:          agent.StatusRunning,
		StartedAt:       time.Now().UTC(),
	}
	a := &supervised{meta: meta, done: make(chan struct{})}

	// Reserve the pool slot and the id in one critical section, so
	// concurrent spawns cannot all observe the pre-insert count and
	// overshoot the cap.
	m.mu.Lock()
	if running := m.runningCountLocked(); running >= m.cfg.MaxAgents {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %d of %d agents running", ErrPoolExhausted, running, m.cfg.MaxAgents)
	}
	meta.ID = m.allocateIDLocked()
	m.agents[meta.ID] = a
	m.mu.Unlock()

	// Failures before the record exists on disk give the slot back.
	release := func() {
		m.mu.Lock()
		delete(m.agents, meta.ID)
		m.mu.Unlock()
	}

	if _, err := m.store.Create(meta); err != nil {
		release()
		return nil, fmt.Errorf("create agent record: %w", err)
	}
	log, err := m.store.OpenEventLog(meta.ID)
	if err != nil {
		release()
		return nil, fmt.Errorf("open event log: %w", err)
	}
	a.log = log

	program, args := buildCommand(kind, prompt, mode, effort)
	cmd := exec.Command(program, args...)
	cmd.Dir = req.Cwd
	cmd.Stderr = io.Discard
	setProcGroup(cmd)
	a.cmd = cmd

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		m.failBeforeStart(a, fmt.Errorf("stdout pipe: %w", err))
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		m.failBeforeStart(a, fmt.Errorf("start %s: %w", program, err))
		return nil, fmt.Errorf("start %s: %w", program, err)
	}

	a.mu.Lock()
	meta.PID = cmd.Process.Pid
	snapshot := meta.Clone()
	a.mu.Unlock()
	if err := m.store.SaveMeta(snapshot); err != nil {
		m.logger.Error("persist pid", zap.String("agent_id", snapshot.ID), zap.Error(err))
	}

	m.wg.Add(1)
	go m.runAgent(a, stdout, kind)

	m.logger.Info("agent spawned",
		zap.String("agent_id", snapshot.ID),
		zap.String("task_name", snapshot.TaskName),
		zap.String("agent_type", string(kind)),
		zap.Int("pid", snapshot.PID),
	)
	m.publishLifecycle(bus.SubjectAgentSpawned, snapshot)
	return snapshot, nil
}

// failBeforeStart finalizes an agent whose child never started. The index
// entry stays so the failure is visible to status calls.
func (m *Manager) failBeforeStart(a *supervised, cause error) {
	now := time.Now().UTC()

	a.mu.Lock()
	if err := a.log.Append(events.NewError(string(a.meta.Kind), cause.Error(), now)); err != nil {
		m.logger.Error("append spawn error", zap.Error(err))
	}
	if err := a.log.Close(); err != nil {
		m.logger.Warn("close event log", zap.Error(err))
	}
	a.meta.Status = agent.StatusFailed
	a.meta.CompletedAt = &now
	a.meta.PID = 0
	snapshot := a.meta.Clone()
	a.mu.Unlock()
	close(a.done)

	if err := m.store.SaveMeta(snapshot); err != nil {
		m.logger.Error("persist failed agent", zap.String("agent_id", snapshot.ID), zap.Error(err))
	}
	m.publishLifecycle(bus.SubjectAgentFailed, snapshot)
}

// runAgent tails the child's stdout to completion, reaps it and finalizes
// the record. Single writer for this agent's meta after spawn.
func (m *Manager) runAgent(a *supervised, stdout io.Reader, kind agent.Kind) {
	defer m.wg.Done()
	defer close(a.done)

	t := tailer.New(a.meta.ID, string(kind), normalize.ForKind(kind), a.log, m.logger)
	report, tailErr := t.Run(stdout)
	waitErr := a.cmd.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now().UTC()
	status := agent.StatusCompleted
	switch {
	case a.stopRequested:
		status = agent.StatusStopped
	case tailErr != nil || waitErr != nil:
		status = agent.StatusFailed
	}

	if tailErr != nil {
		if err := a.log.Append(events.NewError(string(kind), tailErr.Error(), now)); err != nil {
			m.logger.Error("append tailer error", zap.Error(err))
		}
	}
	if !report.SawResult {
		rs := events.ResultSuccess
		if status != agent.StatusCompleted {
			rs = events.ResultError
		}
		if err := a.log.Append(events.NewResult(string(kind), rs, now)); err != nil {
			m.logger.Error("append synthetic result", zap.Error(err))
		}
	}
	if err := a.log.Close(); err != nil {
		m.logger.Warn("close event log", zap.Error(err))
	}

	if report.SessionID != "" {
		a.meta.SessionID = report.SessionID
	}
	a.meta.Status = status
	a.meta.CompletedAt = &now
	a.meta.PID = 0
	if err := m.store.SaveMeta(a.meta); err != nil {
		m.logger.Error("persist terminal state", zap.String("agent_id", a.meta.ID), zap.Error(err))
	}

	m.logger.Info("agent finished",
		zap.String("agent_id", a.meta.ID),
		zap.String("status", string(status)),
		zap.Int("events", report.Events),
		zap.Int("dropped_lines", report.Dropped),
		zap.Error(waitErr),
	)
	m.publishLifecycle(subjectFor(status), a.meta)
}

func subjectFor(s agent.Status) string {
	switch s {
	case agent.StatusCompleted:
		return bus.SubjectAgentCompleted
	case agent.StatusStopped:
		return bus.SubjectAgentStopped
	default:
		return bus.SubjectAgentFailed
	}
}

func (m *Manager) publishLifecycle(subject string, meta *agent.Meta) {
	n := bus.NewNotification(subject, "manager", map[string]any{
		"agent_id":   meta.ID,
		"task_name":  meta.TaskName,
		"agent_type": string(meta.Kind),
		"status":     string(meta.Status),
	})
	if err := m.bus.Publish(context.Background(), subject, n); err != nil {
		m.logger.Debug("publish lifecycle event", zap.String("subject", subject), zap.Error(err))
	}
}

// allocateIDLocked returns a fresh agent id. Callers hold m.mu; a collision
// with an on-disk record not in the index still fails at store.Create.
func (m *Manager) allocateIDLocked() string {
	for {
		id := uuid.NewString()
		if _, taken := m.agents[id]; !taken {
			return id
		}
	}
}

// runningCountLocked counts running agents. Callers hold m.mu.
func (m *Manager) runningCountLocked() int {
	n := 0
	for _, a := range m.agents {
		a.mu.Lock()
		if a.meta.Status == agent.StatusRunning {
			n++
		}
		a.mu.Unlock()
	}
	return n
}

// Counts returns running and total agent counts.
func (m *Manager) Counts() (running, total int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runningCountLocked(), len(m.agents)
}

// Get returns a snapshot of one agent's metadata.
func (m *Manager) Get(agentID string) (*agent.Meta, bool) {
	m.mu.RLock()
	a, ok := m.agents[agentID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.meta.Clone(), true
}

// Stop terminates one agent with SIGTERM, escalating to SIGKILL after the
// grace window. Terminal agents report already_stopped.
func (m *Manager) Stop(ctx context.Context, agentID string) (string, error) {
	m.mu.RLock()
	a, ok := m.agents[agentID]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}

	a.mu.Lock()
	if a.meta.Status.IsTerminal() {
		a.mu.Unlock()
		return OutcomeAlreadyStopped, nil
	}
	a.stopRequested = true
	pid := a.meta.PID
	live := a.done != nil
	a.mu.Unlock()

	if pid > 0 {
		if err := terminateProcessGroup(pid); err != nil {
			m.logger.Debug("terminate process group", zap.Int("pid", pid), zap.Error(err))
		}
	}

	if live {
		return m.awaitStop(ctx, a, pid)
	}
	return m.stopRecovered(ctx, a, pid)
}

// awaitStop waits for the wait goroutine to finalize, escalating once.
func (m *Manager) awaitStop(ctx context.Context, a *supervised, pid int) (string, error) {
	grace := time.NewTimer(m.cfg.StopGrace())
	defer grace.Stop()

	select {
	case <-a.done:
		return OutcomeStopped, nil
	case <-ctx.Done():
		if pid > 0 {
			_ = killProcessGroup(pid)
		}
		return OutcomeStopped, ctx.Err()
	case <-grace.C:
	}

	m.logger.Warn("grace expired, killing process group", zap.String("agent_id", a.meta.ID), zap.Int("pid", pid))
	if pid > 0 {
		if err := killProcessGroup(pid); err != nil {
			m.logger.Debug("kill process group", zap.Int("pid", pid), zap.Error(err))
		}
	}
	select {
	case <-a.done:
		return OutcomeStopped, nil
	case <-ctx.Done():
		return OutcomeStopped, ctx.Err()
	}
}

// stopRecovered handles an agent recovered as running from a previous
// supervisor instance. There is no wait goroutine; probe the pid instead.
func (m *Manager) stopRecovered(ctx context.Context, a *supervised, pid int) (string, error) {
	grace := time.NewTimer(m.cfg.StopGrace())
	defer grace.Stop()
	select {
	case <-grace.C:
	case <-ctx.Done():
	}
	if pid > 0 && pidRunsProgram(pid, programFor(a.meta.Kind)) {
		_ = killProcessGroup(pid)
	}

	a.mu.Lock()
	now := time.Now().UTC()
	a.meta.Status = agent.StatusStopped
	a.meta.CompletedAt = &now
	a.meta.PID = 0
	meta := a.meta.Clone()
	a.mu.Unlock()

	if err := m.store.SaveMeta(meta); err != nil {
		m.logger.Error("persist stopped agent", zap.String("agent_id", meta.ID), zap.Error(err))
	}
	m.publishLifecycle(bus.SubjectAgentStopped, meta)
	return OutcomeStopped, ctx.Err()
}

// StopByTask stops every running agent in a task. Returns the partition of
// agent ids into freshly stopped and already terminal.
func (m *Manager) StopByTask(ctx context.Context, taskName string) (stopped, alreadyStopped []string, err error) {
	for _, meta := range m.ListByTask(taskName) {
		outcome, stopErr := m.Stop(ctx, meta.ID)
		if stopErr != nil && !errors.Is(stopErr, context.Canceled) && !errors.Is(stopErr, context.DeadlineExceeded) {
			m.logger.Warn("stop agent", zap.String("agent_id", meta.ID), zap.Error(stopErr))
		}
		switch outcome {
		case OutcomeStopped:
			stopped = append(stopped, meta.ID)
		case OutcomeAlreadyStopped:
			alreadyStopped = append(alreadyStopped, meta.ID)
		}
		if ctx.Err() != nil {
			return stopped, alreadyStopped, ctx.Err()
		}
	}
	return stopped, alreadyStopped, nil
}

// ListByTask returns metadata snapshots for one task, oldest first.
func (m *Manager) ListByTask(taskName string) []*agent.Meta {
	return m.list(func(meta *agent.Meta) bool { return meta.TaskName == taskName })
}

// ListByParentSession returns snapshots for agents spawned under one parent
// session.
func (m *Manager) ListByParentSession(parentSessionID string) []*agent.Meta {
	return m.list(func(meta *agent.Meta) bool { return meta.ParentSessionID == parentSessionID })
}

// ListAll returns snapshots for every known agent, oldest first.
func (m *Manager) ListAll() []*agent.Meta {
	return m.list(func(*agent.Meta) bool { return true })
}

func (m *Manager) list(keep func(*agent.Meta) bool) []*agent.Meta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*agent.Meta
	for _, a := range m.agents {
		a.mu.Lock()
		if keep(a.meta) {
			out = append(out, a.meta.Clone())
		}
		a.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Recover repopulates the index from the store. Records persisted as running
// whose pid is gone (or runs a different program) are reclassified as failed
// with a diagnostic event. Tailers are never resumed for historical agents.
func (m *Manager) Recover() error {
	metas, err := m.store.LoadAll()
	if err != nil {
		return fmt.Errorf("load agent records: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, meta := range metas {
		if meta.Status == agent.StatusRunning && !pidRunsProgram(meta.PID, programFor(meta.Kind)) {
			m.reclassifyDead(meta)
		}
		m.agents[meta.ID] = &supervised{meta: meta}
	}
	m.logger.Info("recovered agent records", zap.Int("count", len(metas)))
	return nil
}

func (m *Manager) reclassifyDead(meta *agent.Meta) {
	now := time.Now().UTC()
	if log, err := m.store.OpenEventLog(meta.ID); err == nil {
		msg := fmt.Sprintf("supervisor restarted: pid %d no longer runs %s, marking failed", meta.PID, programFor(meta.Kind))
		if err := log.Append(events.NewError(string(meta.Kind), msg, now)); err != nil {
			m.logger.Warn("append recovery event", zap.Error(err))
		}
		if err := log.Close(); err != nil {
			m.logger.Warn("close event log", zap.Error(err))
		}
	}
	meta.Status = agent.StatusFailed
	meta.CompletedAt = &now
	meta.PID = 0
	if err := m.store.SaveMeta(meta); err != nil {
		m.logger.Error("persist recovered agent", zap.String("agent_id", meta.ID), zap.Error(err))
	}
	m.logger.Warn("reclassified stale running agent",
		zap.String("agent_id", meta.ID),
		zap.String("task_name", meta.TaskName),
	)
}

// Shutdown gracefully terminates every running child: SIGTERM, one grace
// window, SIGKILL for stragglers, then waits for the wait goroutines so all
// terminal metadata is persisted.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	var running []*supervised
	for _, a := range m.agents {
		a.mu.Lock()
		if a.meta.Status == agent.StatusRunning && a.done != nil {
			a.stopRequested = true
			running = append(running, a)
		}
		a.mu.Unlock()
	}
	m.mu.RUnlock()

	for _, a := range running {
		a.mu.Lock()
		pid := a.meta.PID
		a.mu.Unlock()
		if pid <= 0 {
			continue
		}
		if err := terminateProcessGroup(pid); err != nil {
			m.logger.Debug("terminate process group", zap.Int("pid", pid), zap.Error(err))
		}
	}

	if len(running) > 0 {
		grace := time.NewTimer(m.cfg.StopGrace())
		defer grace.Stop()
		select {
		case <-grace.C:
		case <-ctx.Done():
		}
		for _, a := range running {
			select {
			case <-a.done:
			default:
				a.mu.Lock()
				pid := a.meta.PID
				a.mu.Unlock()
				if pid > 0 {
					_ = killProcessGroup(pid)
				}
			}
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
