//go:build unix

package sched

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

const daemonEnv = "CRAWLGTM_DAEMON"

// InDaemon reports whether this process is the detached child.
func InDaemon() bool {
	return os.Getenv(daemonEnv) == "1"
}

// Detach re-executes the current binary as a session-leader child with
// the same arguments, stdin on /dev/null and both output streams
// appended to logPath. The streams are wired before the child starts;
// detaching first and redirecting later loses crash output, which is
// exactly the failure mode this ordering prevents.
func Detach(logPath string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("sched: resolve executable: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("sched: open log %s: %w", logPath, err)
	}
	defer logFile.Close()
	devnull, err := os.Open(os.DevNull)
	if err != nil {
		return 0, fmt.Errorf("sched: open %s: %w", os.DevNull, err)
	}
	defer devnull.Close()

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonEnv+"=1")
	cmd.Stdin = devnull
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("sched: start daemon: %w", err)
	}
	pid := cmd.Process.Pid
	// The child belongs to its own session now; do not wait on it.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("sched: release daemon: %w", err)
	}
	return pid, nil
}
