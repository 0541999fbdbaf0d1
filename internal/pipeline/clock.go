// Package pipeline orchestrates the harvest cycle: it wakes at fixed daily
// clock points, resumes unfinished work from the checkpoint ledger and runs
// the full or incremental harvest for the current point.
package pipeline

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/merchflow/harvester/internal/store"
)

// pointSpec fires at the eight daily clock points.
const pointSpec = "0 0,3,6,9,12,15,18,21 * * *"

var pointSchedule = mustSchedule(pointSpec)

func mustSchedule(spec string) cron.Schedule {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		panic(err)
	}
	return schedule
}

// Clock computes harvest clock points in the configured timezone.
type Clock struct {
	loc *time.Location
}

// NewClock creates a clock for the given timezone.
func NewClock(loc *time.Location) Clock {
	return Clock{loc: loc}
}

// Now returns the current time in the clock's timezone.
func (c Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// PointStart returns the start of the clock point containing t.
func (c Clock) PointStart(t time.Time) time.Time {
	t = t.In(c.loc)
	hour := t.Hour() / 3 * 3
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, c.loc)
}

// NextPoint returns the first clock point strictly after t.
func (c Clock) NextPoint(t time.Time) time.Time {
	return pointSchedule.Next(t.In(c.loc))
}

// DayStart returns midnight of t's day shifted by shiftDays.
func (c Clock) DayStart(t time.Time, shiftDays int) time.Time {
	return store.DayStart(t, c.loc, shiftDays)
}
