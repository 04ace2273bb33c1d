package ratelimit

import "time"

// Clock supplies the current time. Window arithmetic goes through it so
// tests can drive time without real waits.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
