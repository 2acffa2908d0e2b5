//go:build !windows

package debugger

import "syscall"

// sendEnterDebugSignal asks a running node process to open its debug port.
// Node installs a SIGUSR1 handler that starts the legacy debugger.
func sendEnterDebugSignal(pid int) error {
	return syscall.Kill(pid, syscall.SIGUSR1)
}
