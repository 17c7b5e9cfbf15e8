// Package normalize converts raw vendor JSON records into canonical events.
//
// One normalizer per agent kind. Normalizers are total (an unrecognized
// shape becomes a single unknown event carrying the original record),
// deterministic, and defensive: vendor payloads are untyped and drift, so a
// missing field defaults to empty rather than failing the record.
package normalize

import (
	"encoding/json"
	"time"

	"github.com/agentmux/agentmux/internal/agent"
	"github.com/agentmux/agentmux/internal/events"
)

// Normalizer maps one raw vendor record to zero or more canonical events.
// Implementations may keep per-stream state (the tool_use/tool_result pairing
// table), so a Normalizer instance belongs to exactly one agent.
type Normalizer interface {
	Normalize(raw []byte) []events.Event
}

// ForKind returns a fresh normalizer for the given kind.
func ForKind(kind agent.Kind) Normalizer {
	switch kind {
	case agent.KindClaude:
		return newClaudeNormalizer()
	case agent.KindCodex:
		return newCodexNormalizer()
	case agent.KindGemini:
		return newGeminiNormalizer()
	case agent.KindCursor:
		return newCursorNormalizer()
	case agent.KindOpencode:
		return newOpencodeNormalizer()
	default:
		return unknownNormalizer{agent: string(kind)}
	}
}

// unknownNormalizer wraps every record as unknown. Used for kinds without a
// dedicated mapping so adding a kind to the table is the only change needed.
type unknownNormalizer struct {
	agent string
}

func (n unknownNormalizer) Normalize(raw []byte) []events.Event {
	return []events.Event{unknownEvent(n.agent, raw, time.Now().UTC())}
}

// unknownEvent echoes the original record.
func unknownEvent(agentKind string, raw []byte, ts time.Time) events.Event {
	echo := make(json.RawMessage, len(raw))
	copy(echo, raw)
	return events.Event{
		Type:      events.TypeUnknown,
		Agent:     agentKind,
		Timestamp: ts,
		Raw:       echo,
	}
}

// decodeRecord parses a raw line into a generic map. A failed parse returns
// nil; callers fall back to an unknown event.
func decodeRecord(raw []byte) map[string]any {
	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil
	}
	return record
}

// recordTime extracts a usable timestamp from a vendor record, falling back
// to wall-clock time. Vendors disagree on both the key and the encoding.
func recordTime(record map[string]any) time.Time {
	for _, key := range []string{"timestamp", "ts", "time", "created_at", "createdAt"} {
		switch v := record[key].(type) {
		case string:
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				return t.UTC()
			}
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t.UTC()
			}
		case float64:
			// Unix seconds or milliseconds, disambiguated by magnitude.
			if v > 1e12 {
				return time.UnixMilli(int64(v)).UTC()
			}
			if v > 1e9 {
				return time.Unix(int64(v), 0).UTC()
			}
		}
	}
	return time.Now().UTC()
}
