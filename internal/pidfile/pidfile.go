// Package pidfile implements the PID-file lifecycle the CLI's
// start/stop/restart/status subcommands rely on (spec.md §1, §6): write the
// running process's PID on start, probe liveness with a signal-0 kill, and
// remove the file on clean exit.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Path returns the PID file location, ${HOME}/.ccmux/ccm.pid.
func Path() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".ccmux", "ccm.pid")
}

// Write records the current process's PID, creating the parent directory if
// needed.
func Write() error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pid file dir: %w", err)
	}
	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Read returns the PID recorded in the PID file.
func Read() (int, error) {
	data, err := os.ReadFile(Path())
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file contents: %w", err)
	}
	return pid, nil
}

// Cleanup removes the PID file if present.
func Cleanup() error {
	path := Path()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(path)
}

// IsRunning reports whether pid names a live process, probed with signal 0
// (no-op signal delivery used purely to check process existence/permission).
func IsRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
