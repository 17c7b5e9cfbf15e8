// Package tailer consumes a child agent's stdout line by line, runs each
// line through the kind's normalizer and appends the resulting canonical
// events to the agent's event log.
package tailer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/events"
	"github.com/agentmux/agentmux/internal/normalize"
	"github.com/agentmux/agentmux/internal/store"
)

const (
	// maxLineBytes caps a single stdout line. The first maxLineBytes are
	// kept on the resulting error event; anything past it is discarded.
	maxLineBytes = 1 << 20

	// dropReportEvery batches invalid-line error events so a stream of
	// garbage cannot flood the log.
	dropReportEvery = 25
)

// Report is what the tailer learned from the stream, for the manager to
// finalize the agent with.
type Report struct {
	SessionID    string
	SawResult    bool
	ResultStatus string
	Events       int
	Dropped      int
}

// Tailer drives one agent's stdout stream.
type Tailer struct {
	agentKind  string
	normalizer normalize.Normalizer
	log        *store.EventLog
	logger     *logger.Logger
}

// New creates a tailer for one agent. agentKind stamps the events the tailer
// synthesizes itself, matching what the kind's normalizer emits. The
// normalizer must be fresh (it may carry per-stream pairing state).
func New(agentID, agentKind string, n normalize.Normalizer, log *store.EventLog, lg *logger.Logger) *Tailer {
	return &Tailer{
		agentKind:  agentKind,
		normalizer: n,
		log:        log,
		logger:     lg.WithAgentID(agentID),
	}
}

// Run reads r until EOF. It never returns early on malformed input; a
// broken stream only degrades into dropped-line error events. The returned
// error covers stream-level failures only (the pipe itself breaking).
func (t *Tailer) Run(r io.Reader) (Report, error) {
	var rep Report
	br := bufio.NewReaderSize(r, 64*1024)

	for {
		line, truncated, err := readLine(br, maxLineBytes)
		if len(line) > 0 {
			if truncated {
				t.appendTruncated(&rep, line)
			} else {
				t.handleLine(&rep, line)
			}
		}
		if err == io.EOF {
			return rep, nil
		}
		if err != nil {
			return rep, fmt.Errorf("read agent stdout: %w", err)
		}
	}
}

func (t *Tailer) handleLine(rep *Report, line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	if !json.Valid(line) {
		rep.Dropped++
		t.logger.Debug("dropped invalid JSON line", zap.Int("dropped", rep.Dropped))
		if rep.Dropped%dropReportEvery == 0 {
			t.appendError(rep, fmt.Sprintf("dropped %d invalid JSON lines from agent stdout", rep.Dropped))
		}
		return
	}

	for _, ev := range t.normalizer.Normalize(line) {
		if ev.Agent == "" {
			ev.Agent = t.agentKind
		}
		t.observe(rep, ev)
		if err := t.log.Append(ev); err != nil {
			t.logger.Error("append event", zap.Error(err))
			continue
		}
		rep.Events++
	}
}

func (t *Tailer) observe(rep *Report, ev events.Event) {
	switch ev.Type {
	case events.TypeInit:
		if rep.SessionID == "" && ev.SessionID != "" {
			rep.SessionID = ev.SessionID
		}
	case events.TypeResult:
		rep.SawResult = true
		rep.ResultStatus = ev.Status
	}
}

func (t *Tailer) appendError(rep *Report, msg string) {
	ev := events.NewError(t.agentKind, msg, time.Now().UTC())
	if err := t.log.Append(ev); err != nil {
		t.logger.Error("append error event", zap.Error(err))
		return
	}
	rep.Events++
}

// appendTruncated records an oversized line as an error event that carries
// the truncated payload, so the log keeps what was actually seen.
func (t *Tailer) appendTruncated(rep *Report, line []byte) {
	ev := events.NewError(t.agentKind,
		fmt.Sprintf("stdout line exceeded %d bytes, payload truncated", maxLineBytes),
		time.Now().UTC())
	// The payload is not valid JSON anymore; carry it as a JSON string.
	if raw, err := json.Marshal(string(line)); err == nil {
		ev.Raw = raw
	}
	if err := t.log.Append(ev); err != nil {
		t.logger.Error("append truncation event", zap.Error(err))
		return
	}
	rep.Events++
}

// readLine returns the next line without its terminator. truncated reports
// that the line exceeded max and the remainder was consumed and thrown away.
func readLine(br *bufio.Reader, max int) (line []byte, truncated bool, err error) {
	for {
		chunk, e := br.ReadSlice('\n')
		if !truncated {
			line = append(line, chunk...)
		}
		switch e {
		case nil:
			if !truncated {
				line = bytes.TrimRight(line, "\r\n")
				if len(line) > max {
					line = line[:max]
					truncated = true
				}
			}
			return line, truncated, nil
		case bufio.ErrBufferFull:
			if len(line) > max {
				line = line[:max]
				truncated = true
			}
			continue
		default:
			line = bytes.TrimRight(line, "\r\n")
			return line, truncated, e
		}
	}
}
