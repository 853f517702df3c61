//go:build windows

package cmd

import (
	"os"
	"os/exec"
	"syscall"
)

// setDaemonAttrs is a no-op on Windows.
func setDaemonAttrs(_ *exec.Cmd) {}

// shutdownSignals are the signals serve and watch stop on.
func shutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// Both map to process termination on Windows.
func sigTERM() syscall.Signal { return syscall.SIGTERM }

func sigKILL() syscall.Signal { return syscall.SIGKILL }
