package sched

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

// File names inside the output directory.
const (
	LockFile = "scheduler.lock"
	LogFile  = "scheduler.log"
)

// DaemonConfig configures the detached scheduling process.
type DaemonConfig struct {
	Interval   Interval
	Run        RunFunc
	Dir        string // lock and log directory
	StatusAddr string // optional localhost status listener, e.g. 127.0.0.1:7621
	Logger     *slog.Logger
}

// Daemon is the long-lived scheduling process body. The caller runs the
// first scan in the foreground, calls Detach, and the re-executed child
// enters Serve.
type Daemon struct {
	config DaemonConfig
	lock   *Lock
	runner *Runner
}

// NewDaemon validates the interval and prepares the daemon.
func NewDaemon(cfg DaemonConfig) (*Daemon, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	runner, err := NewRunner(Config{Interval: cfg.Interval, Run: cfg.Run, Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	return &Daemon{
		config: cfg,
		lock:   &Lock{Path: filepath.Join(cfg.Dir, LockFile), Logger: cfg.Logger},
		runner: runner,
	}, nil
}

// LockPath returns the daemon's lock file location.
func (d *Daemon) LockPath() string {
	return d.lock.Path
}

// Serve acquires the single-instance lock, starts the status listener,
// and loops until a stop signal arrives. On SIGTERM/SIGINT the in-flight
// run's context is cancelled, the lock is removed, and Serve returns nil.
func (d *Daemon) Serve(ctx context.Context) error {
	log := d.config.Logger

	if err := d.lock.Acquire(); err != nil {
		return err
	}
	defer d.lock.Release()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if d.config.StatusAddr != "" {
		shutdown, err := d.serveStatus(ctx)
		if err != nil {
			log.Warn("sched: status listener failed", "addr", d.config.StatusAddr, "error", err)
		} else {
			defer shutdown()
		}
	}

	log.Info("sched: daemon started",
		"pid", os.Getpid(),
		"interval", d.config.Interval.String(),
		"lock", d.lock.Path)

	err := d.runner.Loop(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("sched: stop signal received, exiting cleanly")
		return nil
	}
	return err
}

// Status is the daemon state reported to the CLI and the HTTP listener.
type Status struct {
	PID      int       `json:"pid"`
	Running  bool      `json:"running"`
	Interval string    `json:"interval"`
	NextRun  time.Time `json:"next_run,omitempty"`
}

func (d *Daemon) status() Status {
	return Status{
		PID:      os.Getpid(),
		Running:  true,
		Interval: d.config.Interval.String(),
		NextRun:  d.runner.Next(),
	}
}

// Inspect reads the lock at dir and reports whether a daemon is active.
func Inspect(dir string, logger *slog.Logger) Status {
	lock := &Lock{Path: filepath.Join(dir, LockFile), Logger: logger}
	pid, ok := lock.ReadPID()
	if !ok {
		return Status{}
	}
	return Status{PID: pid, Running: processAlive(pid)}
}

// Stop signals the daemon recorded in dir's lock file.
func Stop(dir string, logger *slog.Logger) (int, error) {
	lock := &Lock{Path: filepath.Join(dir, LockFile), Logger: logger}
	return lock.StopDaemon()
}
