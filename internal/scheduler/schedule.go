package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vyrodovalexey/vaultbackend/internal/config"
)

// Default schedule timings.
const (
	DefaultFrequency = time.Hour
	DefaultTimeout   = time.Hour
)

// Schedule tells when a task runs and how long one run may take.
type Schedule struct {
	// Frequency is the interval between runs. Ignored when Cron is set.
	Frequency time.Duration

	// Cron is a standard five-field cron expression.
	Cron string

	// Timeout bounds each run.
	Timeout time.Duration

	// InitialDelay moves the first run to this long after registration.
	InitialDelay time.Duration
}

// DefaultSchedule returns the hourly schedule with a one hour timeout.
func DefaultSchedule() Schedule {
	return Schedule{Frequency: DefaultFrequency, Timeout: DefaultTimeout}
}

// FromConfig resolves vault.schedule. ok is false when no schedule was
// configured. Fields missing from a custom schedule fall back to the defaults.
func FromConfig(c config.ScheduleConfig) (s Schedule, ok bool) {
	switch c.Kind {
	case config.ScheduleDefault:
		return DefaultSchedule(), true
	case config.ScheduleCustom:
		s = Schedule{
			Frequency:    c.Frequency.Duration(),
			Cron:         c.Cron,
			Timeout:      c.Timeout.Duration(),
			InitialDelay: c.InitialDelay.Duration(),
		}
		if s.Frequency == 0 && s.Cron == "" {
			s.Frequency = DefaultFrequency
		}
		if s.Timeout == 0 {
			s.Timeout = DefaultTimeout
		}
		return s, true
	default:
		return Schedule{}, false
	}
}

// String returns the string representation of the schedule.
func (s Schedule) String() string {
	if s.Cron != "" {
		return fmt.Sprintf("cron %q timeout %s", s.Cron, s.timeout())
	}
	return fmt.Sprintf("every %s timeout %s", s.frequency(), s.timeout())
}

func (s Schedule) frequency() time.Duration {
	if s.Frequency <= 0 {
		return DefaultFrequency
	}
	return s.Frequency
}

func (s Schedule) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

// cronSchedule builds the cron.Schedule for s, starting from now.
func (s Schedule) cronSchedule(now time.Time) (cron.Schedule, error) {
	var next cron.Schedule
	if s.Cron != "" {
		parsed, err := cron.ParseStandard(s.Cron)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", s.Cron, err)
		}
		next = parsed
	} else {
		next = cron.Every(s.frequency())
	}

	if s.InitialDelay > 0 {
		return &delayedSchedule{first: now.Add(s.InitialDelay), then: next}, nil
	}
	return next, nil
}

// delayedSchedule fires once at first and then follows the wrapped schedule.
type delayedSchedule struct {
	first time.Time
	then  cron.Schedule
}

// Next implements cron.Schedule.
func (d *delayedSchedule) Next(t time.Time) time.Time {
	if t.Before(d.first) {
		return d.first
	}
	return d.then.Next(t)
}
