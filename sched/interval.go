// Package sched drives the pipeline repeatedly as a single-instance
// background process: interval validation, a pid lock file, a
// drift-corrected run loop, stream redirection before detaching, and a
// localhost status surface.
package sched

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel failures.
var (
	// ErrInvalidConfig marks out-of-range or contradictory interval
	// options. Nothing runs after it.
	ErrInvalidConfig = errors.New("sched: invalid configuration")
	// ErrLocked means another daemon instance holds the lock.
	ErrLocked = errors.New("sched: another instance is running")
)

// Interval bounds.
const (
	MinHours = 1
	MaxHours = 12
	MinDays  = 1
	MaxDays  = 5
)

// Interval is the validated scheduling period: hours or days, never
// both.
type Interval struct {
	Hours int
	Days  int
}

// ParseInterval validates the raw flag values. Specifying both units or
// leaving a chosen unit out of range is a configuration error, not a
// silent override.
func ParseInterval(hours, days int) (Interval, error) {
	switch {
	case hours != 0 && days != 0:
		return Interval{}, fmt.Errorf("%w: --hours and --days are mutually exclusive", ErrInvalidConfig)
	case hours == 0 && days == 0:
		return Interval{}, fmt.Errorf("%w: an interval requires --hours or --days", ErrInvalidConfig)
	case hours != 0 && (hours < MinHours || hours > MaxHours):
		return Interval{}, fmt.Errorf("%w: --hours must be %d..%d, got %d", ErrInvalidConfig, MinHours, MaxHours, hours)
	case days != 0 && (days < MinDays || days > MaxDays):
		return Interval{}, fmt.Errorf("%w: --days must be %d..%d, got %d", ErrInvalidConfig, MinDays, MaxDays, days)
	}
	return Interval{Hours: hours, Days: days}, nil
}

// Duration converts the interval to a period.
func (iv Interval) Duration() time.Duration {
	if iv.Days != 0 {
		return time.Duration(iv.Days) * 24 * time.Hour
	}
	return time.Duration(iv.Hours) * time.Hour
}

func (iv Interval) String() string {
	if iv.Days != 0 {
		return fmt.Sprintf("%dd", iv.Days)
	}
	return fmt.Sprintf("%dh", iv.Hours)
}
