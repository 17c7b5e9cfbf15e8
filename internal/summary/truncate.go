package summary

import (
	"regexp"
	"strings"
)

// maxCommandDisplay caps a bash command in API responses. Truncation is
// cosmetic; the event log keeps the full text.
const maxCommandDisplay = 120

var heredocTag = regexp.MustCompile(`<<-?\s*['"]?([A-Za-z_][A-Za-z0-9_]*)['"]?`)

// TruncateCommand shortens a shell command for display. Heredoc commands
// collapse to their header line (the redirect target matters, the body does
// not); anything longer than 120 characters is cut with a trailing ellipsis.
func TruncateCommand(command string) string {
	if strings.Contains(command, "<<") {
		if nl := strings.IndexByte(command, '\n'); nl >= 0 {
			command = command[:nl]
		}
		command = heredocTag.ReplaceAllString(command, "<<$1")
	}
	command = strings.TrimSpace(command)
	if len(command) > maxCommandDisplay {
		command = command[:maxCommandDisplay-3] + "..."
	}
	return command
}

// TruncateCommands applies TruncateCommand to each command.
func TruncateCommands(commands []string) []string {
	if len(commands) == 0 {
		return nil
	}
	out := make([]string, len(commands))
	for i, c := range commands {
		out[i] = TruncateCommand(c)
	}
	return out
}
