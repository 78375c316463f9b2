package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "escd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
motor:
  poles: 24
  reverse: true
  rpm_min: 800
can:
  enabled: true
  interface: vcan0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Motor.Poles != 24 || !cfg.Motor.Reverse || cfg.Motor.RPMMin != 800 {
		t.Errorf("motor overrides not applied: %+v", cfg.Motor)
	}
	// Untouched fields keep the firmware defaults.
	if cfg.Motor.SpinupVoltage != 2.0 || cfg.Motor.ControlPeriodUS != 1000 {
		t.Errorf("defaults lost: %+v", cfg.Motor)
	}
	if !cfg.CAN.Enabled || cfg.CAN.Interface != "vcan0" || cfg.CAN.IntervalMS != 100 {
		t.Errorf("can config wrong: %+v", cfg.CAN)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	for _, body := range []string{
		"motor:\n  poles: 0\n",
		"motor:\n  dc_step_max: 1.5\n",
		"motor:\n  min_valid_voltage: 50.0\n",
		"driver:\n  kind: serial\n",
		"unknown_section:\n  x: 1\n",
	} {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("Load accepted bad config %q", body)
		}
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load accepted a missing file")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	if got := cfg.Motor.ControlPeriod(); got != time.Millisecond {
		t.Errorf("control period = %v, expected 1ms", got)
	}
	if got := cfg.CAN.Interval(); got != 100*time.Millisecond {
		t.Errorf("can interval = %v, expected 100ms", got)
	}
}
