package normalize

import "strings"

// family buckets vendor tool names whose intent is recognizable across
// vendors despite naming drift.
type family int

const (
	familyOther family = iota
	familyRead
	familyWrite
	familyShell
	familyDelete
	familyList
)

// toolFamily classifies a vendor tool name. Matching is lowercase and
// substring-based because vendors rename tools between releases
// (write_file, writeFile, create_file, ...).
func toolFamily(name string) family {
	n := strings.ToLower(name)
	switch {
	case n == "":
		return familyOther
	case strings.Contains(n, "shell") || n == "bash" || n == "exec" ||
		strings.Contains(n, "run_command") || strings.Contains(n, "run_shell"):
		return familyShell
	case strings.Contains(n, "delete") || strings.Contains(n, "remove"):
		return familyDelete
	case strings.Contains(n, "write") || strings.Contains(n, "create_file") ||
		strings.Contains(n, "edit") || strings.Contains(n, "replace") ||
		strings.Contains(n, "patch"):
		return familyWrite
	case strings.Contains(n, "read") || n == "cat" || strings.Contains(n, "view_file"):
		return familyRead
	case strings.Contains(n, "list") || n == "ls" || strings.Contains(n, "glob"):
		return familyList
	default:
		return familyOther
	}
}
