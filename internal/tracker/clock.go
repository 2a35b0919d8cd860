package tracker

import "time"

// Clock schedules the re-entry into the poll loop. Tests substitute a clock
// that fires immediately and records the requested delays.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// After waits for d on the wall clock.
func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
