//go:build !windows

package lock

import (
	"errors"
	"os"
	"syscall"
)

// processRunning reports whether pid names a currently-running process,
// using the conventional unix signal(pid, 0) probe. EPERM means the
// process exists but belongs to another user, so it counts as running.
func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
