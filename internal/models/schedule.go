package models

import (
	"time"
)

// ScheduleKind distinguishes manual from periodic schedules.
type ScheduleKind string

const (
	ScheduleManual   ScheduleKind = "manual"
	SchedulePeriodic ScheduleKind = "periodic"
)

// Schedule says when a playlist is re-evaluated. Periodic schedules fire at
// Anchor + k*Interval for integer k.
type Schedule struct {
	Kind     ScheduleKind
	Interval time.Duration
	Anchor   time.Time
}

// ManualSchedule returns a schedule that only fires on explicit triggers.
func ManualSchedule() Schedule {
	return Schedule{Kind: ScheduleManual}
}

// Periodic returns a schedule firing every interval starting at anchor.
func Periodic(interval time.Duration, anchor time.Time) Schedule {
	return Schedule{Kind: SchedulePeriodic, Interval: interval, Anchor: anchor.UTC()}
}

func Hourly(anchor time.Time) Schedule { return Periodic(time.Hour, anchor) }
func Daily(anchor time.Time) Schedule  { return Periodic(24*time.Hour, anchor) }
func Weekly(anchor time.Time) Schedule { return Periodic(7*24*time.Hour, anchor) }

// IsManual reports whether the schedule never fires on its own.
func (s Schedule) IsManual() bool {
	return s.Kind != SchedulePeriodic
}

// Equal reports whether both schedules fire at the same instants.
func (s Schedule) Equal(o Schedule) bool {
	if s.IsManual() || o.IsManual() {
		return s.IsManual() == o.IsManual()
	}
	return s.Interval == o.Interval && s.Anchor.Equal(o.Anchor)
}

// NextFire returns the earliest scheduled instant strictly after now.
func (s Schedule) NextFire(now time.Time) (time.Time, bool) {
	if s.IsManual() || s.Interval <= 0 {
		return time.Time{}, false
	}
	if now.Before(s.Anchor) {
		return s.Anchor, true
	}
	k := now.Sub(s.Anchor)/s.Interval + 1
	return s.Anchor.Add(k * s.Interval), true
}

// Previous returns the latest scheduled instant at or before now.
func (s Schedule) Previous(now time.Time) (time.Time, bool) {
	if s.IsManual() || s.Interval <= 0 || now.Before(s.Anchor) {
		return time.Time{}, false
	}
	k := now.Sub(s.Anchor) / s.Interval
	return s.Anchor.Add(k * s.Interval), true
}

func (s Schedule) validate(add func(string, ...any)) {
	switch s.Kind {
	case ScheduleManual, "":
	case SchedulePeriodic:
		if s.Interval <= 0 {
			add("schedule: interval must be positive")
		} else if s.Interval%time.Second != 0 {
			add("schedule: interval must be a whole number of seconds")
		}
		if s.Anchor.Unix() < 0 {
			add("schedule: anchor must not precede the unix epoch")
		}
	default:
		add("schedule: unknown kind %q", s.Kind)
	}
}
