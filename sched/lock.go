package sched

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// Lock is the single-instance guard: a file holding the daemon's pid.
// It guards across processes, not in-process concurrency.
type Lock struct {
	Path   string
	Logger *slog.Logger
}

// Acquire refuses to proceed while the recorded process is alive. A
// stale or corrupted lock file is removed with a warning, never fatal.
func (l *Lock) Acquire() error {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}

	if pid, ok := l.ReadPID(); ok {
		if processAlive(pid) {
			return fmt.Errorf("%w: pid %d holds %s", ErrLocked, pid, l.Path)
		}
		log.Warn("lock: stale lock removed", "path", l.Path, "pid", pid)
		os.Remove(l.Path)
	} else if _, err := os.Stat(l.Path); err == nil {
		log.Warn("lock: corrupted lock removed", "path", l.Path)
		os.Remove(l.Path)
	}

	if err := os.WriteFile(l.Path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("lock: write %s: %w", l.Path, err)
	}
	return nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: remove %s: %w", l.Path, err)
	}
	return nil
}

// ReadPID reads the recorded pid; ok is false when the file is missing
// or unparsable.
func (l *Lock) ReadPID() (int, bool) {
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// processAlive probes the pid with signal 0.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// StopDaemon signals the locked process to stop gracefully. Returns the
// signalled pid.
func (l *Lock) StopDaemon() (int, error) {
	pid, ok := l.ReadPID()
	if !ok {
		return 0, fmt.Errorf("sched: no running instance (lock %s absent or unreadable)", l.Path)
	}
	if !processAlive(pid) {
		os.Remove(l.Path)
		return 0, fmt.Errorf("sched: recorded pid %d is not running; stale lock removed", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return 0, fmt.Errorf("sched: signal pid %d: %w", pid, err)
	}
	return pid, nil
}
