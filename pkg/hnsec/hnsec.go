// Package hnsec provides a time duration type counted in hectonanoseconds
// (100ns), the unit the commutation engine reports comm periods in.
// Keeping the unit in the type avoids silent unit confusion when converting
// to floating-point seconds for the filter and slope calculations.
package hnsec

import "time"

// Ticks is a duration in hectonanosecond units.
type Ticks uint64

// PerSec is the number of ticks in one second.
const PerSec Ticks = 10_000_000

const nanosPerTick = 100

// FromDuration converts a time.Duration to ticks, truncating towards zero.
func FromDuration(d time.Duration) Ticks {
	if d <= 0 {
		return 0
	}
	return Ticks(d.Nanoseconds() / nanosPerTick)
}

// Duration converts ticks back to a time.Duration.
func (t Ticks) Duration() time.Duration {
	return time.Duration(t) * nanosPerTick * time.Nanosecond
}

// Seconds returns the duration as floating-point seconds.
func (t Ticks) Seconds() float64 {
	return float64(t) / float64(PerSec)
}

var epoch = time.Now()

// Now returns the time since process start on the monotonic clock.
// time.Since always uses the monotonic reading, so wall-clock jumps
// cannot distort the control loop's dt.
func Now() Ticks {
	return FromDuration(time.Since(epoch))
}
