package clock

import "time"

// Clock provides current time abstraction for deterministic tests.
// Params: none.
// Returns: current wall-clock time.
type Clock interface {
	Now() time.Time
}

// RealClock reads current UTC time from system clock.
// Params: none.
// Returns: current UTC timestamp.
type RealClock struct{}

// Now returns current UTC time.
// Params: none.
// Returns: current UTC timestamp.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Func adapts a plain time function into a Clock.
// Params: function producing the current time.
// Returns: Clock implementation for tests with controlled time.
type Func func() time.Time

// Now invokes the wrapped time function.
// Params: none.
// Returns: timestamp produced by the function.
func (f Func) Now() time.Time {
	return f()
}
