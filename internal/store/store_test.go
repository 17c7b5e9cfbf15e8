package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmux/agentmux/internal/agent"
	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/events"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), logger.Default())
	require.NoError(t, err)
	return s
}

func testMeta(id string) *agent.Meta {
	return &agent.Meta{
		ID:        id,
		TaskName:  "task-1",
		Kind:      agent.KindCodex,
		Prompt:    "do things",
		Mode:      agent.ModeEdit,
		Status:    agent.StatusRunning,
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestCreateAndLoadMeta(t *testing.T) {
	s := testStore(t)
	meta := testMeta("agent-1")

	logPath, err := s.Create(meta)
	require.NoError(t, err)
	assert.Equal(t, s.EventLogPath("agent-1"), logPath)
	assert.FileExists(t, logPath)

	loaded, err := s.LoadMeta("agent-1")
	require.NoError(t, err)
	assert.Equal(t, meta.ID, loaded.ID)
	assert.Equal(t, meta.TaskName, loaded.TaskName)
	assert.Equal(t, meta.Kind, loaded.Kind)
	assert.True(t, meta.StartedAt.Equal(loaded.StartedAt))
}

func TestCreateCollision(t *testing.T) {
	s := testStore(t)
	_, err := s.Create(testMeta("agent-1"))
	require.NoError(t, err)

	_, err = s.Create(testMeta("agent-1"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestSaveMetaLeavesNoTempFiles(t *testing.T) {
	s := testStore(t)
	meta := testMeta("agent-1")
	_, err := s.Create(meta)
	require.NoError(t, err)

	now := time.Now().UTC()
	meta.Status = agent.StatusCompleted
	meta.CompletedAt = &now
	require.NoError(t, s.SaveMeta(meta))

	entries, err := os.ReadDir(filepath.Join(s.Root(), "agent-1"))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"meta.json", "events.jsonl"}, names)

	loaded, err := s.LoadMeta("agent-1")
	require.NoError(t, err)
	assert.Equal(t, agent.StatusCompleted, loaded.Status)
	require.NotNil(t, loaded.CompletedAt)
}

func TestEventLogAppendAndRead(t *testing.T) {
	s := testStore(t)
	_, err := s.Create(testMeta("agent-1"))
	require.NoError(t, err)

	log, err := s.OpenEventLog("agent-1")
	require.NoError(t, err)
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, log.Append(events.Event{
			Type: events.TypeMessage, Agent: "codex",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Content:   "m", Complete: true,
		}))
	}
	require.NoError(t, log.Close())

	all, err := s.ReadAll("agent-1")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Strictly-after semantics: the event at the cursor is excluded.
	since, err := s.ReadSince("agent-1", base.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.True(t, since[0].Timestamp.Equal(base.Add(2*time.Second)))
}

func TestReadTolerantOfTornTrailingLine(t *testing.T) {
	s := testStore(t)
	_, err := s.Create(testMeta("agent-1"))
	require.NoError(t, err)

	log, err := s.OpenEventLog("agent-1")
	require.NoError(t, err)
	require.NoError(t, log.Append(events.Event{
		Type: events.TypeInit, Agent: "codex", Timestamp: time.Now().UTC(),
	}))
	require.NoError(t, log.Close())

	f, err := os.OpenFile(s.EventLogPath("agent-1"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"message","agent":"codex","times`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	all, err := s.ReadAll("agent-1")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, events.TypeInit, all[0].Type)
}

func TestReadAllMissingAgent(t *testing.T) {
	s := testStore(t)
	evs, err := s.ReadAll("nope")
	require.NoError(t, err)
	assert.Nil(t, evs)
}

func TestLoadAllSkipsCorruptRecords(t *testing.T) {
	s := testStore(t)
	_, err := s.Create(testMeta("good"))
	require.NoError(t, err)

	corrupt := filepath.Join(s.Root(), "bad")
	require.NoError(t, os.MkdirAll(corrupt, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corrupt, "meta.json"), []byte("{torn"), 0o644))

	metas, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "good", metas[0].ID)
}

func TestResolveRootEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvStoreDir, dir)
	t.Setenv("HOME", t.TempDir())
	assert.Equal(t, dir, ResolveRoot(logger.Default()))
}

func TestResolveRootPrefersExistingRecords(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvStoreDir, "")
	t.Setenv("XDG_STATE_HOME", "")

	legacy := filepath.Join(home, ".agentmux-agents")
	require.NoError(t, os.MkdirAll(filepath.Join(legacy, "old-agent"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(legacy, "old-agent", "meta.json"), []byte("{}"), 0o644))

	assert.Equal(t, legacy, ResolveRoot(logger.Default()))
}

func TestResolveRootCanonicalDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(EnvStoreDir, "")
	t.Setenv("XDG_STATE_HOME", "")

	assert.Equal(t, filepath.Join(home, ".agentmux", "agents"), ResolveRoot(logger.Default()))
}
