//go:build windows

package lock

import "os"

// processRunning on Windows relies on FindProcess, which opens a handle
// to pid and fails when no process with that pid exists.
func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
