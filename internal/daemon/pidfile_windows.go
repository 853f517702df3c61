//go:build windows

package daemon

import (
	"os"
	"syscall"
)

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Windows.
	return proc.Signal(syscall.Signal(0)) == nil
}

// signalProcess can only kill on Windows; every signal terminates.
func signalProcess(pid int, _ syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
