package scheduler

import "time"

// Cadence yields the next wall-clock firing time for a job. Cadence is
// best-effort: correctness across the fleet comes from the lock, never from
// firing alignment.
type Cadence interface {
	Next(after time.Time) time.Time
}

type intervalCadence struct {
	every time.Duration
}

func (c intervalCadence) Next(after time.Time) time.Time {
	return after.Add(c.every)
}

// Every fires at a fixed interval measured from the previous evaluation.
func Every(d time.Duration) Cadence {
	if d <= 0 {
		d = time.Minute
	}
	return intervalCadence{every: d}
}

type dailyCadence struct {
	hour   int
	minute int
}

func (c dailyCadence) Next(after time.Time) time.Time {
	after = after.UTC()
	next := time.Date(after.Year(), after.Month(), after.Day(), c.hour, c.minute, 0, 0, time.UTC)
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// DailyAt fires once per day at the given UTC time.
func DailyAt(hour, minute int) Cadence {
	if hour < 0 || hour > 23 {
		hour = 0
	}
	if minute < 0 || minute > 59 {
		minute = 0
	}
	return dailyCadence{hour: hour, minute: minute}
}
