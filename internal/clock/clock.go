// Package clock provides a wall-clock interface (Real, Fixed) and the
// cron and HH:MM helpers used by Scheduler, SLAMonitor, the dispatcher
// and validate. Those components read time.Now directly; none of them
// takes an injected Clock.
package clock

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Clock is the narrow time source every periodic loop depends on.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock, a thin wrapper over time.Now.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fixed is a Clock for tests that always returns the same instant.
type Fixed struct{ At time.Time }

func (f Fixed) Now() time.Time { return f.At }

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron validates a 5-field cron expression (minute hour
// day-of-month month day-of-week), supporting *, */N, ranges and comma
// lists via robfig/cron's standard parser.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// NextFireTimes returns every fire time in (after, until], walking in
// loc's local time as required by spec §4.5/§9: it repeatedly calls
// cron.Schedule.Next on the previous fire (or `after` for the first
// call), each already expressed in loc, so DST offset changes are
// resolved the way a human reading the schedule in that timezone would
// expect instead of by naive UTC arithmetic. Returned times are in UTC,
// matching how the Store persists them.
//
// A fire time that would fall in a spring-forward gap never appears
// because cron.Schedule.Next only ever returns real instants; an
// ambiguous fire time during fall-back is produced once, at the earliest
// of the two UTC instants that share that wall-clock reading, because
// time.Date resolves a Location's ambiguous wall time using its first
// (pre-transition) offset.
func NextFireTimes(sched cron.Schedule, loc *time.Location, after, until time.Time) []time.Time {
	var fires []time.Time
	cursor := after.In(loc)
	for {
		next := sched.Next(cursor)
		if next.After(until) {
			return fires
		}
		fires = append(fires, next.UTC())
		cursor = next
	}
}

// InWindow reports whether now's local time-of-day (in loc) falls within
// [start, end], both "HH:MM". A window that wraps midnight (end < start)
// is treated as spanning to the next day.
func InWindow(now time.Time, loc *time.Location, start, end string) (bool, error) {
	local := now.In(loc)
	minutesNow := local.Hour()*60 + local.Minute()

	startMin, err := ParseHHMM(start)
	if err != nil {
		return false, err
	}
	endMin, err := ParseHHMM(end)
	if err != nil {
		return false, err
	}

	if startMin <= endMin {
		return minutesNow >= startMin && minutesNow <= endMin, nil
	}
	// wraps midnight
	return minutesNow >= startMin || minutesNow <= endMin, nil
}

// ParseHHMM parses a "HH:MM" string into minutes since midnight, shared by
// InWindow and SLAMonitor's expected_daily_time check.
func ParseHHMM(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid HH:MM value %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid HH:MM value %q", s)
	}
	return h*60 + m, nil
}
