package finder

import (
	"time"

	"k8s.io/utils/clock"
)

// Clock is the time source for a poll loop. The loop reads Now before each
// query and waits on After between polls; a test clock can advance
// synchronously so stability timing is exercised without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock returns the wall clock.
func RealClock() Clock {
	return clock.RealClock{}
}
