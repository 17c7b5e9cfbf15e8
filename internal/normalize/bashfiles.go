package normalize

import (
	"strings"
	"time"

	"github.com/agentmux/agentmux/internal/events"
)

// fileOp is one file access inferred from a shell command.
type fileOp struct {
	typ  events.Type
	path string
}

// bashEvents emits the bash event for a shell command plus file events
// synthesized from common shell patterns. The bash event keeps the full
// original command; the synthesized events carry just the path (and the
// command for traceability).
func bashEvents(agentKind, command string, ts time.Time) []events.Event {
	out := []events.Event{{
		Type:      events.TypeBash,
		Agent:     agentKind,
		Timestamp: ts,
		Tool:      "bash",
		Command:   command,
	}}
	for _, op := range inferFileOps(command) {
		out = append(out, events.Event{
			Type:      op.typ,
			Agent:     agentKind,
			Timestamp: ts,
			Tool:      "bash",
			Path:      op.path,
			Command:   command,
		})
	}
	return out
}

// inferFileOps extracts file accesses from common shell patterns: cat and
// friends read, > and >> write, rm deletes, mv and cp move bytes, touch
// creates, heredocs write their redirect target.
func inferFileOps(command string) []fileOp {
	var ops []fileOp
	seen := make(map[string]bool)
	add := func(typ events.Type, path string) {
		if path == "" || strings.HasPrefix(path, "-") {
			return
		}
		key := string(typ) + "\x00" + path
		if seen[key] {
			return
		}
		seen[key] = true
		ops = append(ops, fileOp{typ: typ, path: path})
	}

	for _, segment := range splitSegments(command) {
		tokens := strings.Fields(segment)
		if len(tokens) == 0 {
			continue
		}

		heredoc := strings.Contains(segment, "<<")

		// Redirects write their target regardless of the command.
		for i, tok := range tokens {
			switch tok {
			case ">", ">>":
				if i+1 < len(tokens) {
					add(events.TypeFileWrite, tokens[i+1])
				}
			default:
				// Attached form: ">out.txt" / ">>out.txt".
				if strings.HasPrefix(tok, ">") && len(tok) > 1 && !strings.HasPrefix(tok, ">&") {
					add(events.TypeFileWrite, strings.TrimLeft(tok, ">"))
				}
			}
		}

		args := positionalArgs(tokens[1:])
		switch tokens[0] {
		case "cat", "head", "tail", "less", "more", "grep":
			// A heredoc body is input, not files being read.
			if heredoc {
				continue
			}
			start := 0
			if tokens[0] == "grep" && len(args) > 0 {
				start = 1 // first positional is the pattern
			}
			for _, arg := range args[start:] {
				add(events.TypeFileRead, arg)
			}
		case "rm":
			for _, arg := range args {
				add(events.TypeFileDelete, arg)
			}
		case "mv":
			if len(args) >= 2 {
				add(events.TypeFileDelete, args[0])
				add(events.TypeFileWrite, args[len(args)-1])
			}
		case "cp":
			if len(args) >= 2 {
				add(events.TypeFileRead, args[0])
				add(events.TypeFileWrite, args[len(args)-1])
			}
		case "touch":
			for _, arg := range args {
				add(events.TypeFileCreate, arg)
			}
		case "tee":
			for _, arg := range args {
				add(events.TypeFileWrite, arg)
			}
		}
	}
	return ops
}

// splitSegments breaks a command into independent simple commands: first the
// heredoc header is isolated (the body is data, not commands), then the
// remainder splits on newlines, &&, || and ;.
func splitSegments(command string) []string {
	if idx := strings.Index(command, "<<"); idx >= 0 {
		if nl := strings.IndexByte(command, '\n'); nl >= 0 && nl > idx {
			command = command[:nl]
		}
	}

	var segments []string
	for _, line := range strings.Split(command, "\n") {
		for _, part := range splitOnOperators(line) {
			part = strings.TrimSpace(part)
			if part != "" {
				segments = append(segments, part)
			}
		}
	}
	return segments
}

func splitOnOperators(line string) []string {
	for _, op := range []string{"&&", "||", ";", "|"} {
		line = strings.ReplaceAll(line, op, "\x00")
	}
	return strings.Split(line, "\x00")
}

// positionalArgs drops flags and redirect syntax, returning likely paths.
func positionalArgs(tokens []string) []string {
	var args []string
	skipNext := false
	for _, tok := range tokens {
		if skipNext {
			skipNext = false
			continue
		}
		switch {
		case tok == ">", tok == ">>", tok == "<":
			skipNext = true
		case strings.HasPrefix(tok, ">"), strings.HasPrefix(tok, "<"):
			// attached redirect or heredoc tag
		case strings.HasPrefix(tok, "-"):
			// flag
		default:
			args = append(args, tok)
		}
	}
	return args
}
