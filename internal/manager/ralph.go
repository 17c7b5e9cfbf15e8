package manager

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoopFileName is the file ralph mode requires in the working directory. Its
// contents are the persistent task directive the child re-reads each loop.
const LoopFileName = "PROMPT.md"

// systemDirs are never acceptable ralph working directories.
var systemDirs = []string{
	"/", "/bin", "/boot", "/dev", "/etc", "/lib", "/opt", "/proc",
	"/root", "/sbin", "/sys", "/tmp", "/usr", "/var",
}

// validateRalphCwd enforces the ralph-mode safety rules: an explicit working
// directory that is neither $HOME nor a system directory, containing the
// loop file.
func validateRalphCwd(cwd string) error {
	if cwd == "" {
		return fmt.Errorf("ralph mode requires an explicit cwd")
	}
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return fmt.Errorf("resolve cwd: %w", err)
	}
	abs = filepath.Clean(abs)

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		if abs == filepath.Clean(home) {
			return fmt.Errorf("ralph mode refused: cwd is the home directory")
		}
	}
	for _, dir := range systemDirs {
		if abs == dir {
			return fmt.Errorf("ralph mode refused: cwd %s is a system directory", abs)
		}
	}

	loop := filepath.Join(abs, LoopFileName)
	if info, err := os.Stat(loop); err != nil || info.IsDir() {
		return fmt.Errorf("ralph mode requires %s in cwd %s", LoopFileName, abs)
	}
	return nil
}

// ralphPrompt wraps the user prompt in the autonomy preamble referencing the
// loop file.
func ralphPrompt(prompt string) string {
	var b strings.Builder
	b.WriteString("You are running autonomously in a loop. Read ")
	b.WriteString(LoopFileName)
	b.WriteString(" in the current directory for your standing instructions, ")
	b.WriteString("pick the most important unfinished item, and complete it fully ")
	b.WriteString("before exiting. Commit or record your progress so the next ")
	b.WriteString("iteration can continue where you left off.\n\n")
	b.WriteString(prompt)
	return b.String()
}
