package sched

import (
	"context"
	"log/slog"
	"time"
)

// RunFunc executes one pipeline run.
type RunFunc func(ctx context.Context) error

// Config configures the run loop.
type Config struct {
	Interval Interval
	Run      RunFunc
	Logger   *slog.Logger

	// now and sleep are test seams.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.sleep == nil {
		c.sleep = func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		}
	}
}

// Runner repeats the pipeline on the fixed interval.
type Runner struct {
	config Config
	next   time.Time
}

// NewRunner validates the interval and builds a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if _, err := ParseInterval(cfg.Interval.Hours, cfg.Interval.Days); err != nil {
		return nil, err
	}
	cfg.defaults()
	return &Runner{config: cfg}, nil
}

// Next returns the upcoming scheduled run time, zero before Loop starts.
func (r *Runner) Next() time.Time {
	return r.next
}

// Loop runs until the context is cancelled. Each scheduled time is the
// previous scheduled time plus the interval, anchored to the loop
// start, so a slow run does not drift the schedule. A run that
// overshoots its slot triggers the next run immediately and the
// schedule re-anchors from there.
func (r *Runner) Loop(ctx context.Context) error {
	period := r.config.Interval.Duration()
	log := r.config.Logger
	r.next = r.config.now().Add(period)

	for {
		log.Info("sched: next run scheduled", "at", r.next, "interval", r.config.Interval.String())
		wait := r.next.Sub(r.config.now())
		if wait > 0 {
			if err := r.config.sleep(ctx, wait); err != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := r.config.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("sched: run failed, keeping schedule", "error", err)
		}

		r.next = r.next.Add(period)
		if now := r.config.now(); r.next.Before(now) {
			log.Warn("sched: run overran its slot, re-anchoring", "missed", r.next)
			r.next = now.Add(period)
		}
	}
}
