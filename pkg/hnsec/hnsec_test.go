package hnsec

import (
	"testing"
	"time"
)

func TestFromDuration(t *testing.T) {
	if got := FromDuration(time.Second); got != PerSec {
		t.Errorf("1s = %d ticks, expected %d", got, PerSec)
	}
	if got := FromDuration(time.Millisecond); got != 10_000 {
		t.Errorf("1ms = %d ticks, expected 10000", got)
	}
	if got := FromDuration(150 * time.Nanosecond); got != 1 {
		t.Errorf("150ns = %d ticks, expected 1 (truncation)", got)
	}
	if got := FromDuration(-time.Second); got != 0 {
		t.Errorf("negative duration = %d ticks, expected 0", got)
	}
}

func TestDurationRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{0, time.Microsecond, time.Millisecond, time.Second, time.Minute} {
		if got := FromDuration(d).Duration(); got != d {
			t.Errorf("round trip of %v gave %v", d, got)
		}
	}
}

func TestSeconds(t *testing.T) {
	if got := PerSec.Seconds(); got != 1.0 {
		t.Errorf("PerSec.Seconds() = %v, expected 1.0", got)
	}
	if got := Ticks(5_000).Seconds(); got != 0.0005 {
		t.Errorf("5000 ticks = %v s, expected 0.0005", got)
	}
}

func TestNowIsMonotonic(t *testing.T) {
	a := Now()
	time.Sleep(time.Millisecond)
	b := Now()
	if b <= a {
		t.Errorf("Now() did not advance: %d then %d", a, b)
	}
}
