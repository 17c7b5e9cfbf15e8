// Package store persists per-agent state under a single root directory:
//
//	<root>/<agent_id>/meta.json     atomically rewritten metadata record
//	<root>/<agent_id>/events.jsonl  append-only canonical event log
//
// These are the only files the supervisor writes. meta.json updates go
// through a tempfile+rename so a crash never leaves a torn record; event
// appends rely on O_APPEND so earlier lines are never corrupted.
package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/agent"
	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/events"
)

const (
	metaFileName   = "meta.json"
	eventsFileName = "events.jsonl"
)

// ErrAlreadyExists is returned by Create on an agent id collision.
var ErrAlreadyExists = errors.New("agent record already exists")

// Store is the on-disk event store rooted at a single directory.
type Store struct {
	root   string
	logger *logger.Logger
}

// New creates a Store over root, creating the directory if needed.
func New(root string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", root, err)
	}
	return &Store{root: root, logger: log.WithFields(zap.String("component", "store"))}, nil
}

// Root returns the resolved store root.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) agentDir(agentID string) string {
	return filepath.Join(s.root, agentID)
}

// EventLogPath returns the path of an agent's event log.
func (s *Store) EventLogPath(agentID string) string {
	return filepath.Join(s.agentDir(agentID), eventsFileName)
}

// Create allocates the agent directory, writes the initial meta.json and
// creates an empty event log. Fails with ErrAlreadyExists on id collision.
func (s *Store) Create(meta *agent.Meta) (string, error) {
	dir := s.agentDir(meta.ID)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, meta.ID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create agent dir: %w", err)
	}

	logPath := s.EventLogPath(meta.ID)
	meta.EventLogPath = logPath

	if err := s.SaveMeta(meta); err != nil {
		return "", err
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create event log: %w", err)
	}
	_ = f.Close()

	return logPath, nil
}

// SaveMeta atomically rewrites meta.json (write-to-tempfile, rename).
func (s *Store) SaveMeta(meta *agent.Meta) error {
	dir := s.agentDir(meta.ID)
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".meta-*.json")
	if err != nil {
		return fmt.Errorf("create meta tempfile: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write meta tempfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close meta tempfile: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, metaFileName)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename meta: %w", err)
	}
	return nil
}

// LoadMeta reads one agent's meta.json.
func (s *Store) LoadMeta(agentID string) (*agent.Meta, error) {
	data, err := os.ReadFile(filepath.Join(s.agentDir(agentID), metaFileName))
	if err != nil {
		return nil, err
	}
	var meta agent.Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse meta for %s: %w", agentID, err)
	}
	return &meta, nil
}

// LoadAll reads every meta.json under the root. Unreadable or corrupt
// records are skipped with a warning; startup must not fail because one
// record is torn.
func (s *Store) LoadAll() ([]*agent.Meta, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read store root: %w", err)
	}

	var metas []*agent.Meta
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.LoadMeta(entry.Name())
		if err != nil {
			if !os.IsNotExist(err) {
				s.logger.Warn("skipping unreadable agent record",
					zap.String("agent_id", entry.Name()), zap.Error(err))
			}
			continue
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// OpenEventLog opens an agent's event log for appending. The returned
// EventLog is the single-producer handle held by the tailer.
func (s *Store) OpenEventLog(agentID string) (*EventLog, error) {
	f, err := os.OpenFile(s.EventLogPath(agentID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &EventLog{f: f}, nil
}

// ReadAll returns every canonical event in an agent's log. Malformed lines
// (including a torn trailing line) are tolerated and skipped.
func (s *Store) ReadAll(agentID string) ([]events.Event, error) {
	return s.readEvents(agentID, time.Time{})
}

// ReadSince returns events with timestamp strictly after since.
func (s *Store) ReadSince(agentID string, since time.Time) ([]events.Event, error) {
	return s.readEvents(agentID, since)
}

func (s *Store) readEvents(agentID string, since time.Time) ([]events.Event, error) {
	f, err := os.Open(s.EventLogPath(agentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var out []events.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxStoredLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev events.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			// Torn or foreign line; the log is still authoritative for
			// everything that parses.
			continue
		}
		if !since.IsZero() && !ev.Timestamp.After(since) {
			continue
		}
		out = append(out, ev)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, bufio.ErrTooLong) {
		return out, fmt.Errorf("scan event log: %w", err)
	}
	return out, nil
}

// maxStoredLine bounds a single stored event line on read. Appends are
// bounded by the tailer's line cap, so anything larger is foreign.
const maxStoredLine = 8 * 1024 * 1024

// EventLog is the append-only write handle for one agent's events.jsonl.
// Only the tailer (and the manager, for synthetic transition events) writes;
// callers serialize among themselves.
type EventLog struct {
	mu sync.Mutex
	f  *os.File
}

// Append marshals the event and writes it as one line.
func (l *EventLog) Append(ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(data); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
