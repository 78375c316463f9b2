package motorctl

import "github.com/kestrel-team/kestrel/go-escd/pkg/hnsec"

// Each mechanical revolution produces poles*6 electrical commutation
// events, so rpm = (120 * ticksPerSecond) / (poles * 6 * commPeriod).

// CommPeriodToRPM converts an electrical commutation period into
// mechanical RPM, truncating. A zero period (stopped motor) is zero RPM;
// a non-positive pole count is a programming error and panics.
func CommPeriodToRPM(cp hnsec.Ticks, poles int) uint {
	if poles <= 0 {
		panic("motorctl: pole count must be positive")
	}
	if cp == 0 {
		return 0
	}
	x := 120 * uint64(hnsec.PerSec) / uint64(poles*6)
	return uint(x / uint64(cp))
}

// RPMToCommPeriod is the inverse mapping, also truncating.
func RPMToCommPeriod(rpm uint, poles int) hnsec.Ticks {
	if poles <= 0 {
		panic("motorctl: pole count must be positive")
	}
	if rpm == 0 {
		return 0
	}
	x := 120 * uint64(hnsec.PerSec) / uint64(poles*6)
	return hnsec.Ticks(x / uint64(rpm))
}
