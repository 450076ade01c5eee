// Package control implements the control plane: the PID file and status
// file that let `evolvd status`/`stop` find a running daemon, and the Unix
// control socket that serves command requests to it.
package control

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/evolvd/evolvd/internal/clock"
)

// WritePIDFile atomically writes the current process's PID to path,
// refusing to overwrite a PID file whose process is still alive (unless
// force is set), matching the teacher's stale-PID cleanup convention in
// internal/session/session.go's isProcessAlive check.
func WritePIDFile(path string, force bool) error {
	if !force {
		if pid, err := ReadPIDFile(path); err == nil && isProcessAlive(pid) {
			return fmt.Errorf("control: daemon already running with pid %d", pid)
		}
	}
	return clock.WriteFileAtomic(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReadPIDFile reads and parses the PID file at path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("control: corrupt pid file %s: %w", path, err)
	}
	return pid, nil
}

// RemovePIDFile removes the PID file, ignoring a not-exist error.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// isProcessAlive probes a PID with signal 0, which delivers no signal but
// still reports ESRCH if the process is gone.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil
}

// IsDaemonRunning reports whether the pid file at path names a still-alive
// process, used by commands (like `rollback`) that must refuse to touch
// daemon-owned state while the supervisor has it open.
func IsDaemonRunning(path string) bool {
	pid, err := ReadPIDFile(path)
	if err != nil {
		return false
	}
	return isProcessAlive(pid)
}
