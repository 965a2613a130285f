package util

import "time"

// Clock abstracts time for components with timer-driven behavior (the
// snapshot scheduler), so tests can drive ticks deterministically.
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }
