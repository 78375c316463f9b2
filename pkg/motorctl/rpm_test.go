package motorctl

import "testing"

func TestCommPeriodRPMRoundTrip(t *testing.T) {
	for _, poles := range []int{2, 14, 24} {
		for _, rpm := range []uint{500, 1000, 2000, 5000, 10000} {
			cp := RPMToCommPeriod(rpm, poles)
			rt := RPMToCommPeriod(CommPeriodToRPM(cp, poles), poles)

			diff := int64(rt) - int64(cp)
			if diff < -1 || diff > 1 {
				t.Errorf("poles=%d rpm=%d: cp %d round-tripped to %d", poles, rpm, cp, rt)
			}
		}
	}
}

func TestCommPeriodToRPM14Poles(t *testing.T) {
	// 14 poles, 1000 RPM: 120*10^7/(14*6) = 14285714, cp = 14285.
	cp := RPMToCommPeriod(1000, 14)
	if cp != 14285 {
		t.Errorf("comm period for 1000 RPM = %d, expected 14285", cp)
	}
	rpm := CommPeriodToRPM(cp, 14)
	if rpm < 999 || rpm > 1001 {
		t.Errorf("comm period %d = %d RPM, expected 1000 +/- 1", cp, rpm)
	}
}

func TestZeroCommPeriodIsZeroRPM(t *testing.T) {
	if got := CommPeriodToRPM(0, 14); got != 0 {
		t.Errorf("zero comm period = %d RPM, expected 0", got)
	}
	if got := RPMToCommPeriod(0, 14); got != 0 {
		t.Errorf("zero RPM = comm period %d, expected 0", got)
	}
}

func TestNonPositivePolesPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for non-positive pole count")
		}
	}()
	CommPeriodToRPM(1000, 0)
}
