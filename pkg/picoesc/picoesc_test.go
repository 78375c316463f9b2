package picoesc

import "testing"

func TestDutyToRaw(t *testing.T) {
	for _, tc := range []struct {
		in   float64
		want uint16
	}{
		{-1, 0},
		{0, 0},
		{0.5, 0x7FFF},
		{1, 0xFFFF},
		{2, 0xFFFF},
	} {
		if got := dutyToRaw(tc.in); got != tc.want {
			t.Errorf("dutyToRaw(%v) = 0x%04x, expected 0x%04x", tc.in, got, tc.want)
		}
	}
}
