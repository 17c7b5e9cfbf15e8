//go:build unix && !linux

package manager

import "syscall"

// pidRunsProgram degrades to a plain liveness probe where /proc is not
// available.
func pidRunsProgram(pid int, program string) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
