//go:build linux

package manager

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// pidRunsProgram reports whether pid is alive and its command line names the
// expected program. Recovery uses this before trusting a persisted running
// status; pid reuse after a reboot would otherwise resurrect dead agents.
func pidRunsProgram(pid int, program string) bool {
	if pid <= 0 {
		return false
	}
	if err := syscall.Kill(pid, 0); err != nil && err != syscall.EPERM {
		return false
	}
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		// Alive but unreadable cmdline: fall back to liveness only.
		return true
	}
	for _, arg := range bytes.Split(data, []byte{0}) {
		if len(arg) == 0 {
			continue
		}
		if strings.Contains(filepath.Base(string(arg)), program) {
			return true
		}
	}
	return false
}
