package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job every Interval, measured from the previous
// start.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule returns nil for a non-positive interval so Register
// rejects it with ErrNilSchedule.
func NewIntervalSchedule(interval time.Duration) Schedule {
	if interval <= 0 {
		return nil
	}
	return &IntervalSchedule{Interval: interval}
}

func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}
