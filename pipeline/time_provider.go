package pipeline

import "time"

// TimeProvider is an interface for reading the current time and creating
// timers. This allows injecting a mock time provider for deterministic
// testing of the scheduling loop.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time
	// AfterFunc arranges for fn to run after d, returning the timer.
	AfterFunc(d time.Duration, fn func()) *time.Timer
}

// RealTimeProvider implements TimeProvider using the actual system time.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

// AfterFunc delegates to the standard library.
func (RealTimeProvider) AfterFunc(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, fn)
}
